package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/app"
	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/infra/config"
	authui "github.com/CrestNiraj12/nwitter/tui/auth"
	"github.com/CrestNiraj12/nwitter/tui/common"
	"github.com/CrestNiraj12/nwitter/tui/compose"
	"github.com/CrestNiraj12/nwitter/tui/feed"
	"github.com/CrestNiraj12/nwitter/tui/profile"
)

// Accounts is the account surface of the whole TUI.
type Accounts interface {
	authui.Accounts
	SignOut(ctx context.Context) error
}

// Posts is the post surface shared by the feeds and the composer.
type Posts interface {
	compose.Posts
	feed.Posts
}

// Deps holds all dependencies the TUI needs. Plain struct, not a DI container.
type Deps struct {
	Guard    app.Guard
	Session  app.Session
	Accounts Accounts
	Posts    Posts
	Profiles profile.Profiles
	// Store backs one feed subscriber per open feed view.
	Store  app.DocumentStore
	Editor compose.Editor

	UIState     config.UIState
	SaveUIState func(config.UIState) error
}

type activeView int

const (
	loadingView activeView = iota
	authView
	homeView
	profileView
	composeView
)

type readyMsg struct {
	err error
}

type signedOutMsg struct {
	err error
}

// App is the root Bubble Tea model. It routes between sub-views.
type App struct {
	deps      Deps
	active    activeView
	returnTo  activeView // View to restore when composing ends.
	route     app.Route
	auth      authui.Model
	home      feed.Model
	profile   profile.Model
	compose   compose.Model
	homeOpen  bool
	profOpen  bool
	keys      common.KeyMap
	spinner   spinner.Model
	lastEmail string
	width     int
	height    int
}

// NewApp creates the root model with all dependencies wired.
func NewApp(deps Deps) App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = common.ScopeStyle
	return App{
		deps:      deps,
		active:    loadingView,
		keys:      common.DefaultKeyMap(),
		spinner:   s,
		lastEmail: deps.UIState.LastEmail,
	}
}

// Init waits for the first definitive auth state before any screen renders.
func (a App) Init() tea.Cmd {
	guard := a.deps.Guard
	return tea.Batch(a.spinner.Tick, func() tea.Msg {
		return readyMsg{err: guard.Ready(context.Background())}
	})
}

func startRoute(screen string) app.Route {
	if screen == app.RouteProfile.String() {
		return app.RouteProfile
	}
	return app.RouteHome
}

// Update handles messages and routes to the active sub-model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case readyMsg:
		if msg.err != nil {
			glog.Warningf("tui: auth state not ready: %v", msg.err)
		}
		return a.navigate(startRoute(a.deps.UIState.Screen))

	case authui.SignedInMsg:
		a.lastEmail = msg.Account.Email
		return a.navigate(app.RouteHome)

	case signedOutMsg:
		if msg.err != nil {
			glog.Warningf("tui: sign out: %v", msg.err)
		}
		return a.navigate(app.RouteLogin)

	case feed.EditPostMsg:
		if msg.UseInline {
			a.compose = compose.NewInlineForPost(a.deps.Posts, a.deps.Editor, msg.Post)
		} else {
			a.compose = compose.NewEditorForPost(a.deps.Posts, a.deps.Editor, msg.Post)
		}
		return a.startCompose()

	case compose.DoneMsg:
		a.active = a.returnTo
		switch {
		case msg.Cancelled:
			a.setStatus("Cancelled.", false)
		case msg.Err != nil:
			a.setStatus(common.ErrorText(msg.Err), true)
		case msg.IsEdit:
			a.setStatus("Post updated.", false)
		default:
			a.setStatus("Posted!", false)
		}
		return a, nil

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a.broadcast(msg)
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.ForceQuit) {
		return a.quit()
	}

	var cmd tea.Cmd
	switch a.active {
	case authView:
		a.auth, cmd = a.auth.Update(msg)
		return a, cmd
	case composeView:
		a.compose, cmd = a.compose.Update(msg)
		return a, cmd
	case homeView, profileView:
	default:
		return a, nil
	}

	if !a.capturing() {
		switch {
		case key.Matches(msg, a.keys.Quit):
			return a.quit()
		case key.Matches(msg, a.keys.NewEditor):
			a.compose = compose.NewEditor(a.deps.Posts, a.deps.Editor)
			return a.startCompose()
		case key.Matches(msg, a.keys.NewInline):
			a.compose = compose.NewInline(a.deps.Posts, a.deps.Editor)
			return a.startCompose()
		case key.Matches(msg, a.keys.Profile) && a.active != profileView:
			return a.navigate(app.RouteProfile)
		case key.Matches(msg, a.keys.Home) && a.active != homeView:
			return a.navigate(app.RouteHome)
		case key.Matches(msg, a.keys.SignOut):
			a.closeFeeds()
			accounts := a.deps.Accounts
			return a, func() tea.Msg {
				return signedOutMsg{err: accounts.SignOut(context.Background())}
			}
		}
	}

	if a.active == homeView {
		a.home, cmd = a.home.Update(msg)
	} else {
		a.profile, cmd = a.profile.Update(msg)
	}
	return a, cmd
}

// broadcast hands a non-key message to every live sub-model. Feed messages
// carry their feed's identity, so a model ignores pushes meant for another.
func (a App) broadcast(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	if a.active == loadingView {
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}
	if a.active == authView {
		a.auth, cmd = a.auth.Update(msg)
		cmds = append(cmds, cmd)
	}
	if a.homeOpen {
		a.home, cmd = a.home.Update(msg)
		cmds = append(cmds, cmd)
	}
	if a.profOpen {
		a.profile, cmd = a.profile.Update(msg)
		cmds = append(cmds, cmd)
	}
	if a.active == composeView {
		a.compose, cmd = a.compose.Update(msg)
		cmds = append(cmds, cmd)
	}
	return a, tea.Batch(cmds...)
}

// navigate shows route, or whatever the guard redirects it to.
func (a App) navigate(route app.Route) (tea.Model, tea.Cmd) {
	resolved := a.deps.Guard.Resolve(route)
	if resolved != route {
		glog.V(1).Infof("tui: %s redirected to %s", route, resolved)
	}
	a.closeFeeds()
	a.route = resolved

	var cmd tea.Cmd
	switch resolved {
	case app.RouteLogin:
		a.auth = authui.NewLogin(a.deps.Accounts, a.lastEmail)
		a.active = authView
		cmd = a.auth.Init()
	case app.RouteRegister:
		a.auth = authui.NewRegister(a.deps.Accounts)
		a.active = authView
		cmd = a.auth.Init()
	case app.RouteHome:
		a.home = feed.New(app.NewFeedSubscriber(a.deps.Store), a.deps.Posts, a.deps.Session, domain.Global, "Timeline")
		a.homeOpen = true
		a.active = homeView
		cmd = a.home.Open()
	case app.RouteProfile:
		acct, _ := a.deps.Session.Current()
		a.profile = profile.New(a.deps.Profiles, a.deps.Session, app.NewFeedSubscriber(a.deps.Store), a.deps.Posts, acct)
		a.profOpen = true
		a.active = profileView
		cmd = a.profile.Open()
	}
	return a, tea.Batch(cmd, a.resize())
}

func (a App) resize() tea.Cmd {
	if a.width == 0 {
		return nil
	}
	w, h := a.width, a.height
	return func() tea.Msg { return tea.WindowSizeMsg{Width: w, Height: h} }
}

func (a App) startCompose() (tea.Model, tea.Cmd) {
	if a.active != composeView {
		a.returnTo = a.active
	}
	a.active = composeView
	return a, a.compose.Init()
}

func (a App) capturing() bool {
	switch a.active {
	case homeView:
		return a.home.Capturing()
	case profileView:
		return a.profile.Capturing()
	}
	return true
}

func (a *App) setStatus(text string, isErr bool) {
	switch a.active {
	case homeView:
		a.home.SetStatus(text, isErr)
	case profileView:
		a.profile.SetStatus(text, isErr)
	}
}

func (a *App) closeFeeds() {
	if a.homeOpen {
		a.home.Close()
		a.homeOpen = false
	}
	if a.profOpen {
		a.profile.Close()
		a.profOpen = false
	}
}

func (a App) quit() (tea.Model, tea.Cmd) {
	a.closeFeeds()
	if a.active == authView && a.auth.Email() != "" {
		a.lastEmail = a.auth.Email()
	}
	if a.deps.SaveUIState != nil {
		st := config.UIState{LastEmail: a.lastEmail}
		if a.route == app.RouteHome || a.route == app.RouteProfile {
			st.Screen = a.route.String()
		}
		if err := a.deps.SaveUIState(st); err != nil {
			glog.Warningf("tui: saving ui state: %v", err)
		}
	}
	return a, tea.Quit
}

// View delegates to the active sub-model.
func (a App) View() string {
	switch a.active {
	case authView:
		return a.auth.View()
	case homeView:
		return a.home.View()
	case profileView:
		return a.profile.View()
	case composeView:
		return a.compose.View()
	}
	return "\n  " + a.spinner.View() + " Connecting..."
}
