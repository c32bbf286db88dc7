package profile

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/CrestNiraj12/nwitter/app"
	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/tui/common"
	"github.com/CrestNiraj12/nwitter/tui/feed"
)

// Profiles is the profile surface the view drives.
type Profiles interface {
	RenameDisplayName(ctx context.Context, name string) (domain.Account, error)
	ChangeAvatar(ctx context.Context, photo domain.Photo) (domain.Account, error)
}

type field int

const (
	noField field = iota
	nameField
	avatarField
)

type resultMsg struct {
	account domain.Account
	done    string
	err     error
}

// Model shows the signed-in account and its own posts.
type Model struct {
	profiles Profiles
	account  domain.Account
	feed     feed.Model
	keys     common.KeyMap
	editing  field
	input    textinput.Model
	busy     bool
	err      string
	notice   string
}

// New creates the profile view for acct. The embedded feed is scoped to the
// account's own posts.
func New(profiles Profiles, session app.Session, sub feed.Subscriber, posts feed.Posts, acct domain.Account) Model {
	in := textinput.New()
	in.Width = 50
	return Model{
		profiles: profiles,
		account:  acct,
		feed:     feed.New(sub, posts, session, domain.ByAuthor(acct.ID), "My posts"),
		keys:     common.DefaultKeyMap(),
		input:    in,
	}
}

// Open subscribes the embedded feed.
func (m *Model) Open() tea.Cmd {
	return m.feed.Open()
}

// Close tears the embedded feed down.
func (m *Model) Close() {
	m.feed.Close()
}

// Capturing reports whether keys go to an inline input.
func (m Model) Capturing() bool {
	return m.editing != noField || m.feed.Capturing()
}

// Account returns the account as last confirmed by the gateway.
func (m Model) Account() domain.Account {
	return m.account
}

// SetStatus forwards a transient message to the embedded feed.
func (m *Model) SetStatus(text string, isErr bool) {
	m.feed.SetStatus(text, isErr)
}

// Update handles messages for the profile view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resultMsg:
		m.busy = false
		if msg.err != nil {
			m.err = common.ErrorText(msg.err)
			return m, nil
		}
		m.account = msg.account
		m.editing = noField
		m.input.Blur()
		m.notice = msg.done
		return m, nil

	case tea.KeyMsg:
		if m.editing != noField {
			return m.handleInput(msg)
		}
		if !m.feed.Capturing() {
			switch {
			case key.Matches(msg, m.keys.Rename):
				return m.startEditing(nameField, m.account.DisplayName)
			case key.Matches(msg, m.keys.Avatar):
				return m.startEditing(avatarField, "")
			}
		}
	}

	var cmd tea.Cmd
	m.feed, cmd = m.feed.Update(msg)
	return m, cmd
}

func (m Model) startEditing(f field, value string) (Model, tea.Cmd) {
	m.editing = f
	m.err = ""
	m.notice = ""
	m.input.SetValue(value)
	m.input.CursorEnd()
	if f == nameField {
		m.input.Placeholder = "display name"
	} else {
		m.input.Placeholder = "path to an image (max 1MB)"
	}
	return m, m.input.Focus()
}

func (m Model) handleInput(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if !m.busy {
			m.editing = noField
			m.err = ""
			m.input.Blur()
		}
		return m, nil
	case "enter":
		return m.submit()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	profiles := m.profiles
	switch m.editing {
	case nameField:
		name := m.input.Value()
		if err := domain.ValidateRename(name); err != nil {
			m.err = domain.Describe(err)
			return m, nil
		}
		m.busy = true
		m.err = ""
		return m, func() tea.Msg {
			acct, err := profiles.RenameDisplayName(context.Background(), name)
			return resultMsg{account: acct, done: "Name updated.", err: err}
		}
	case avatarField:
		photo, err := common.LoadPhoto(strings.TrimSpace(m.input.Value()))
		if err != nil {
			m.err = common.ErrorText(err)
			return m, nil
		}
		m.busy = true
		m.err = ""
		return m, func() tea.Msg {
			acct, err := profiles.ChangeAvatar(context.Background(), photo)
			return resultMsg{account: acct, done: "Avatar updated.", err: err}
		}
	}
	return m, nil
}
