package compose

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/tui/common"
)

// Posts is the post surface the composer submits to.
type Posts interface {
	Create(ctx context.Context, body string, photo *domain.Photo) (domain.Post, error)
	Edit(ctx context.Context, post domain.Post, body string) (domain.Post, error)
}

// Editor prepares the external editor round trip.
type Editor interface {
	Cmd(content string) (*exec.Cmd, string, error)
	ReadContent(path string) (string, error)
}

// --- Mode ---

type mode int

const (
	editorMode mode = iota
	inlineMode
)

// --- Messages ---

// DoneMsg is sent when composing is complete.
type DoneMsg struct {
	Post      domain.Post
	IsEdit    bool
	Cancelled bool
	// Err is set when the text was saved but the photo step failed.
	Err error
}

// editorFinishedMsg is sent after the external editor exits.
type editorFinishedMsg struct {
	tmpPath string
	err     error
}

type submitResultMsg struct {
	post domain.Post
	err  error
}

// --- Model ---

// Model holds the state for the compose view.
type Model struct {
	mode     mode
	posts    Posts
	editor   Editor
	status   string
	err      string
	busy     bool // Submissions while busy are ignored.
	textarea textarea.Model
	photo    textinput.Model // Path of a photo to attach; new posts only.
	focus    int             // 0: body, 1: photo path
	spinner  spinner.Model
	isEdit   bool
	post     domain.Post // Post being edited.
}

func newTextarea(content string) textarea.Model {
	ta := textarea.New()
	ta.Placeholder = "What is happening?!"
	ta.CharLimit = 0 // Length is validated on submit so drafts from $EDITOR are not cut.
	ta.ShowLineNumbers = false
	ta.SetWidth(72)
	ta.SetHeight(5)
	ta.SetValue(content)
	ta.Focus()
	return ta
}

func newModel(posts Posts, ed Editor, m mode) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#1D9BF0"))

	photo := textinput.New()
	photo.Placeholder = "optional: path to an image (max 1MB)"
	photo.Width = 60

	return Model{
		mode:     m,
		posts:    posts,
		editor:   ed,
		textarea: newTextarea(""),
		photo:    photo,
		spinner:  s,
	}
}

// NewEditor creates a compose model that opens $EDITOR via tea.ExecProcess.
func NewEditor(posts Posts, ed Editor) Model {
	m := newModel(posts, ed, editorMode)
	m.status = "Opening editor..."
	return m
}

// NewEditorForPost creates a compose model for editing post in $EDITOR.
func NewEditorForPost(posts Posts, ed Editor, post domain.Post) Model {
	m := NewEditor(posts, ed)
	m.isEdit = true
	m.post = post
	m.textarea.SetValue(post.Body)
	return m
}

// NewInline creates a compose model with an inline textarea.
func NewInline(posts Posts, ed Editor) Model {
	return newModel(posts, ed, inlineMode)
}

// NewInlineForPost creates a compose model for editing post inline.
func NewInlineForPost(posts Posts, ed Editor, post domain.Post) Model {
	m := NewInline(posts, ed)
	m.isEdit = true
	m.post = post
	m.textarea.SetValue(post.Body)
	return m
}

// Init returns the initial command for the active mode.
func (m Model) Init() tea.Cmd {
	switch m.mode {
	case editorMode:
		return m.launchEditor()
	case inlineMode:
		return textarea.Blink
	}
	return nil
}

// Busy reports whether a submission is in flight.
func (m Model) Busy() bool {
	return m.busy
}

// launchEditor prepares the editor command and uses tea.ExecProcess so Bubble
// Tea releases the terminal while the editor runs.
func (m Model) launchEditor() tea.Cmd {
	cmd, tmpPath, err := m.editor.Cmd(m.textarea.Value())
	if err != nil {
		return func() tea.Msg {
			return editorFinishedMsg{err: fmt.Errorf("preparing editor: %w", err)}
		}
	}
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return editorFinishedMsg{tmpPath: tmpPath, err: err}
	})
}

// Update handles messages for the compose view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {

	// --- Editor mode messages ---

	case editorFinishedMsg:
		if msg.err != nil {
			// Fall back to the inline form so the draft is not lost.
			m.mode = inlineMode
			m.err = "Editor failed: " + msg.err.Error()
			return m, nil
		}
		content, err := m.editor.ReadContent(msg.tmpPath)
		if err != nil {
			m.mode = inlineMode
			m.err = err.Error()
			return m, nil
		}
		if content == "" || (m.isEdit && content == m.post.Body) {
			return m, done(DoneMsg{IsEdit: m.isEdit, Cancelled: true})
		}
		m.textarea.SetValue(content)
		var cmd tea.Cmd
		m, cmd = m.submit()
		if m.err != "" {
			// Invalid body: let the user fix it inline.
			m.mode = inlineMode
		}
		return m, cmd

	case submitResultMsg:
		m.busy = false
		m.status = ""
		var photoErr *domain.PhotoError
		if msg.err != nil && !errors.As(msg.err, &photoErr) {
			m.mode = inlineMode
			m.err = domain.Describe(msg.err)
			return m, nil
		}
		return m, done(DoneMsg{Post: msg.post, IsEdit: m.isEdit, Err: msg.err})

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	// --- Inline mode messages ---

	case tea.KeyMsg:
		if m.mode != inlineMode {
			break
		}

		switch msg.String() {
		case "esc":
			if m.busy {
				return m, nil
			}
			return m, done(DoneMsg{IsEdit: m.isEdit, Cancelled: true})

		case "ctrl+d":
			if m.isEdit && m.textarea.Value() == m.post.Body {
				return m, done(DoneMsg{IsEdit: true, Cancelled: true})
			}
			return m.submit()

		case "tab":
			if !m.isEdit {
				m.toggleFocus()
				return m, nil
			}
		}

		var cmd tea.Cmd
		if m.focus == 1 {
			m.photo, cmd = m.photo.Update(msg)
		} else {
			m.textarea, cmd = m.textarea.Update(msg)
		}
		return m, cmd
	}

	// Pass through any remaining messages in inline mode.
	if m.mode == inlineMode {
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) toggleFocus() {
	if m.focus == 0 {
		m.focus = 1
		m.textarea.Blur()
		m.photo.Focus()
		return
	}
	m.focus = 0
	m.photo.Blur()
	m.textarea.Focus()
}

// submit validates locally and starts the gateway call. Validation failures
// never reach the network.
func (m Model) submit() (Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	body := m.textarea.Value()
	if err := domain.ValidateBody(body); err != nil {
		m.err = domain.Describe(err)
		return m, nil
	}

	var photo *domain.Photo
	if path := m.photo.Value(); !m.isEdit && path != "" {
		p, err := common.LoadPhoto(path)
		if err != nil {
			m.err = common.ErrorText(err)
			return m, nil
		}
		photo = &p
	}

	m.busy = true
	m.err = ""
	if m.isEdit {
		m.status = "Updating..."
	} else {
		m.status = "Posting..."
	}

	posts, post, isEdit := m.posts, m.post, m.isEdit
	call := func() tea.Msg {
		if isEdit {
			updated, err := posts.Edit(context.Background(), post, body)
			return submitResultMsg{post: updated, err: err}
		}
		created, err := posts.Create(context.Background(), body, photo)
		return submitResultMsg{post: created, err: err}
	}
	return m, tea.Batch(call, m.spinner.Tick)
}

// done wraps a DoneMsg into a tea.Cmd for immediate delivery.
func done(msg DoneMsg) tea.Cmd {
	return func() tea.Msg { return msg }
}
