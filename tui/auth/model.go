package auth

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CrestNiraj12/nwitter/app"
	"github.com/CrestNiraj12/nwitter/domain"
)

// Accounts is the account surface the auth screens drive.
type Accounts interface {
	Register(ctx context.Context, r domain.Registration) error
	SignIn(ctx context.Context, email, password string) (domain.Account, error)
	SignInWithProvider(ctx context.Context, provider domain.Provider) (domain.Account, error)
	SendPasswordReset(ctx context.Context, email string) error
}

type screen int

const (
	loginScreen screen = iota
	registerScreen
	resetScreen
)

// --- Messages ---

// SignedInMsg tells the root the session is established.
type SignedInMsg struct {
	Account domain.Account
}

type signInResultMsg struct {
	account domain.Account
	err     error
}

type registerResultMsg struct {
	email string
	err   error
}

type resetResultMsg struct {
	err error
}

// --- Model ---

// Model holds the sign-in, registration and password reset forms.
type Model struct {
	accounts Accounts
	keys     keyMap
	screen   screen
	inputs   []textinput.Model
	focus    int
	busy     bool // Submissions while busy are ignored.
	err      string
	notice   string
	spinner  spinner.Model
}

type keyMap struct {
	Next     key.Binding
	Prev     key.Binding
	Submit   key.Binding
	Google   key.Binding
	Register key.Binding
	Login    key.Binding
	Forgot   key.Binding
	Back     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Next:     key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next")),
		Prev:     key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev")),
		Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
		Google:   key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "continue with Google")),
		Register: key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "create account")),
		Login:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "sign in")),
		Forgot:   key.NewBinding(key.WithKeys("ctrl+f"), key.WithHelp("ctrl+f", "forgot password")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	}
}

// NewLogin creates the sign-in form, prefilled with the last used e-mail.
func NewLogin(accounts Accounts, lastEmail string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#1D9BF0"))
	m := Model{accounts: accounts, keys: defaultKeys(), spinner: s}
	m.show(loginScreen, lastEmail)
	return m
}

// NewRegister creates the registration form.
func NewRegister(accounts Accounts) Model {
	m := NewLogin(accounts, "")
	m.show(registerScreen, "")
	return m
}

// Route reports which guarded screen is showing.
func (m Model) Route() app.Route {
	if m.screen == registerScreen {
		return app.RouteRegister
	}
	return app.RouteLogin
}

// Busy reports whether a submission is in flight.
func (m Model) Busy() bool {
	return m.busy
}

// Email returns the e-mail currently typed into the form.
func (m Model) Email() string {
	for _, in := range m.inputs {
		if in.Placeholder == emailPlaceholder {
			return strings.TrimSpace(in.Value())
		}
	}
	return ""
}

const emailPlaceholder = "you@example.com"

func newInput(placeholder string, secret bool) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 128
	ti.Width = 40
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return ti
}

func (m *Model) show(s screen, email string) {
	m.screen = s
	m.focus = 0
	m.err = ""
	switch s {
	case loginScreen:
		m.inputs = []textinput.Model{newInput(emailPlaceholder, false), newInput("password", true)}
	case registerScreen:
		m.inputs = []textinput.Model{newInput("display name", false), newInput(emailPlaceholder, false), newInput("password", true), newInput("confirm password", true)}
	case resetScreen:
		m.inputs = []textinput.Model{newInput(emailPlaceholder, false)}
	}
	for i := range m.inputs {
		if m.inputs[i].Placeholder == emailPlaceholder {
			m.inputs[i].SetValue(email)
		}
	}
	if email != "" && s == loginScreen {
		m.focus = 1
	}
	m.inputs[m.focus].Focus()
}

func (m *Model) setFocus(i int) {
	n := len(m.inputs)
	m.focus = ((i % n) + n) % n
	for j := range m.inputs {
		if j == m.focus {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the auth forms.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case signInResultMsg:
		m.busy = false
		if msg.err != nil {
			m.err = domain.Describe(msg.err)
			return m, nil
		}
		acct := msg.account
		return m, func() tea.Msg { return SignedInMsg{Account: acct} }

	case registerResultMsg:
		m.busy = false
		if msg.err != nil {
			m.err = domain.Describe(msg.err)
			return m, nil
		}
		m.show(loginScreen, msg.email)
		m.notice = "Account created. Verify your e-mail, then sign in."
		return m, nil

	case resetResultMsg:
		m.busy = false
		if msg.err != nil {
			m.err = domain.Describe(msg.err)
			return m, nil
		}
		email := m.Email()
		m.show(loginScreen, email)
		m.notice = "If that account exists, a reset link is on its way."
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Next):
		m.setFocus(m.focus + 1)
		return m, nil
	case key.Matches(msg, m.keys.Prev):
		m.setFocus(m.focus - 1)
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	case key.Matches(msg, m.keys.Google):
		if m.busy || m.screen == resetScreen {
			return m, nil
		}
		return m.start(m.signInWithGoogle())
	case key.Matches(msg, m.keys.Register):
		if !m.busy && m.screen != registerScreen {
			m.notice = ""
			m.show(registerScreen, m.Email())
		}
		return m, nil
	case key.Matches(msg, m.keys.Login):
		if !m.busy && m.screen != loginScreen {
			m.notice = ""
			m.show(loginScreen, m.Email())
		}
		return m, nil
	case key.Matches(msg, m.keys.Forgot):
		if !m.busy && m.screen == loginScreen {
			m.notice = ""
			m.show(resetScreen, m.Email())
		}
		return m, nil
	case key.Matches(msg, m.keys.Back):
		if !m.busy && m.screen == resetScreen {
			m.show(loginScreen, m.Email())
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) submit() (Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.notice = ""
	switch m.screen {
	case loginScreen:
		return m.start(m.signIn(m.Email(), m.inputs[1].Value()))
	case registerScreen:
		reg := domain.Registration{
			Name:            m.inputs[0].Value(),
			Email:           m.Email(),
			Password:        m.inputs[2].Value(),
			ConfirmPassword: m.inputs[3].Value(),
		}
		return m.start(m.register(reg))
	case resetScreen:
		return m.start(m.reset(m.Email()))
	}
	return m, nil
}

func (m Model) start(cmd tea.Cmd) (Model, tea.Cmd) {
	m.busy = true
	m.err = ""
	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m Model) signIn(email, password string) tea.Cmd {
	accounts := m.accounts
	return func() tea.Msg {
		acct, err := accounts.SignIn(context.Background(), email, password)
		return signInResultMsg{account: acct, err: err}
	}
}

func (m Model) signInWithGoogle() tea.Cmd {
	accounts := m.accounts
	return func() tea.Msg {
		acct, err := accounts.SignInWithProvider(context.Background(), domain.ProviderGoogle)
		return signInResultMsg{account: acct, err: err}
	}
}

func (m Model) register(reg domain.Registration) tea.Cmd {
	accounts := m.accounts
	return func() tea.Msg {
		err := accounts.Register(context.Background(), reg)
		return registerResultMsg{email: reg.Email, err: err}
	}
}

func (m Model) reset(email string) tea.Cmd {
	accounts := m.accounts
	return func() tea.Msg {
		return resetResultMsg{err: accounts.SendPasswordReset(context.Background(), email)}
	}
}
