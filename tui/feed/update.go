package feed

import (
	"context"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/infra/auth"
	"github.com/CrestNiraj12/nwitter/tui/common"
)

// Update handles messages for the feed view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ensureCursorVisible()
		return m, nil

	case spinner.TickMsg:
		if !m.loading && !m.busy {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		if msg.feed != m.id || msg.seq != m.seq {
			return m, nil
		}
		glog.V(2).Infof("feed %s: snapshot with %d posts", m.scope.Key(), len(msg.snapshot.Posts))
		m.apply(msg.snapshot)
		return m, m.stream.next(m.id, m.seq)

	case subscribeErrMsg:
		if msg.feed != m.id || msg.seq != m.seq {
			return m, nil
		}
		m.loading = false
		m.err = msg.err
		return m, nil

	case opResultMsg:
		if msg.feed != m.id {
			return m, nil
		}
		m.busy = false
		if msg.err != nil {
			m.SetStatus(common.ErrorText(msg.err), true)
			return m, nil
		}
		m.SetStatus(msg.done, false)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.photoPrompt {
		return m.handlePhotoPrompt(msg)
	}
	if m.confirmDelete {
		switch msg.String() {
		case "y":
			m.confirmDelete = false
			if p, own := m.ownsSelected(); own {
				return m.startOp(m.deletePost(p), "Deleting...")
			}
		default:
			// Any other key cancels.
			m.confirmDelete = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		m.ensureCursorVisible()

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
		m.ensureCursorVisible()

	case key.Matches(msg, m.keys.ToggleHints):
		m.showHints = !m.showHints

	case key.Matches(msg, m.keys.Edit), key.Matches(msg, m.keys.EditInline):
		p, own := m.ownsSelected()
		if !own || m.busy {
			break
		}
		inline := key.Matches(msg, m.keys.EditInline)
		return m, func() tea.Msg { return EditPostMsg{Post: p, UseInline: inline} }

	case key.Matches(msg, m.keys.Delete):
		if _, own := m.ownsSelected(); own && !m.busy {
			m.confirmDelete = true
		}

	case key.Matches(msg, m.keys.AttachPhoto):
		if _, own := m.ownsSelected(); own && !m.busy {
			m.photoPrompt = true
			m.photoInput.SetValue("")
			m.photoInput.Focus()
			return m, nil
		}

	case key.Matches(msg, m.keys.RemovePhoto):
		p, own := m.ownsSelected()
		if !own || m.busy {
			break
		}
		if !p.HasPhoto() {
			m.SetStatus(domain.Describe(domain.ErrNoPhoto), true)
			break
		}
		return m.startOp(m.removePhoto(p), "Removing photo...")

	case key.Matches(msg, m.keys.Open):
		if p, ok := m.Selected(); ok && p.HasPhoto() {
			return m, openURL(p.PhotoURL)
		}
	}

	return m, nil
}

func (m Model) handlePhotoPrompt(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.photoPrompt = false
		m.photoInput.Blur()
		return m, nil
	case "enter":
		p, own := m.ownsSelected()
		if !own {
			m.photoPrompt = false
			return m, nil
		}
		photo, err := common.LoadPhoto(m.photoInput.Value())
		if err != nil {
			// Stay in the prompt so the path can be fixed.
			m.SetStatus(common.ErrorText(err), true)
			return m, nil
		}
		m.photoPrompt = false
		m.photoInput.Blur()
		return m.startOp(m.replacePhoto(p, photo), "Uploading photo...")
	}
	var cmd tea.Cmd
	m.photoInput, cmd = m.photoInput.Update(msg)
	return m, cmd
}

func (m Model) startOp(op tea.Cmd, status string) (Model, tea.Cmd) {
	m.busy = true
	m.SetStatus(status, false)
	return m, tea.Batch(op, m.spinner.Tick)
}

func (m Model) deletePost(p domain.Post) tea.Cmd {
	posts, feed := m.posts, m.id
	return func() tea.Msg {
		err := posts.Delete(context.Background(), p)
		return opResultMsg{feed: feed, done: "Post deleted.", err: err}
	}
}

func (m Model) replacePhoto(p domain.Post, photo domain.Photo) tea.Cmd {
	posts, feed := m.posts, m.id
	return func() tea.Msg {
		_, err := posts.ReplacePhoto(context.Background(), p, photo)
		return opResultMsg{feed: feed, done: "Photo updated.", err: err}
	}
}

func (m Model) removePhoto(p domain.Post) tea.Cmd {
	posts, feed := m.posts, m.id
	return func() tea.Msg {
		_, err := posts.RemovePhoto(context.Background(), p)
		return opResultMsg{feed: feed, done: "Photo removed.", err: err}
	}
}

func openURL(rawURL string) tea.Cmd {
	return func() tea.Msg {
		if !isSafeExternalURL(rawURL) {
			return nil
		}
		if err := auth.OpenBrowser(rawURL); err != nil {
			glog.Warningf("feed: opening %s: %v", rawURL, err)
		}
		return nil
	}
}

func isSafeExternalURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
