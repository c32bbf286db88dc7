package tui

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/CrestNiraj12/nwitter/app"
	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/infra/config"
	authui "github.com/CrestNiraj12/nwitter/tui/auth"
	"github.com/CrestNiraj12/nwitter/tui/compose"
)

type stubAuth struct {
	acct     domain.Account
	signedIn bool
	signOuts int
}

func (s *stubAuth) Current() (domain.Account, bool)             { return s.acct, s.signedIn }
func (s *stubAuth) AwaitReady(context.Context) error            { return nil }
func (s *stubAuth) SendVerificationEmail(context.Context) error { return nil }
func (s *stubAuth) SendPasswordResetEmail(context.Context, string) error {
	return nil
}
func (s *stubAuth) CreateAccount(context.Context, string, string) (domain.Account, error) {
	return s.acct, nil
}
func (s *stubAuth) SignIn(context.Context, string, string) (domain.Account, error) {
	s.signedIn = true
	return s.acct, nil
}
func (s *stubAuth) SignInWithProvider(context.Context, domain.Provider) (domain.Account, error) {
	s.signedIn = true
	return s.acct, nil
}
func (s *stubAuth) SignOut(context.Context) error {
	s.signOuts++
	s.signedIn = false
	return nil
}
func (s *stubAuth) UpdateProfile(context.Context, domain.ProfileUpdate) (domain.Account, error) {
	return s.acct, nil
}

type stubAccounts struct{ auth *stubAuth }

func (s stubAccounts) Register(context.Context, domain.Registration) error { return nil }
func (s stubAccounts) SignIn(ctx context.Context, email, password string) (domain.Account, error) {
	return s.auth.SignIn(ctx, email, password)
}
func (s stubAccounts) SignInWithProvider(ctx context.Context, p domain.Provider) (domain.Account, error) {
	return s.auth.SignInWithProvider(ctx, p)
}
func (s stubAccounts) SendPasswordReset(context.Context, string) error { return nil }
func (s stubAccounts) SignOut(ctx context.Context) error               { return s.auth.SignOut(ctx) }

type stubStore struct {
	subscribed []domain.Query
}

func (s *stubStore) AddRecord(context.Context, string, map[string]any) (string, error) {
	return "p1", nil
}
func (s *stubStore) UpdateRecord(context.Context, string, string, map[string]any) error { return nil }
func (s *stubStore) DeleteRecord(context.Context, string, string) error                 { return nil }
func (s *stubStore) Query(context.Context, domain.Query) ([]domain.Record, error)       { return nil, nil }
func (s *stubStore) Subscribe(_ context.Context, q domain.Query, _ func([]domain.Record, error)) (func(), error) {
	s.subscribed = append(s.subscribed, q)
	return func() {}, nil
}

type stubPosts struct{}

func (stubPosts) Create(_ context.Context, body string, _ *domain.Photo) (domain.Post, error) {
	return domain.Post{ID: "p1", Body: body}, nil
}
func (stubPosts) Edit(_ context.Context, p domain.Post, body string) (domain.Post, error) {
	p.Body = body
	return p, nil
}
func (stubPosts) Delete(context.Context, domain.Post) error { return nil }
func (stubPosts) ReplacePhoto(_ context.Context, p domain.Post, _ domain.Photo) (domain.Post, error) {
	return p, nil
}
func (stubPosts) RemovePhoto(_ context.Context, p domain.Post) (domain.Post, error) { return p, nil }

type stubProfiles struct{}

func (stubProfiles) RenameDisplayName(_ context.Context, name string) (domain.Account, error) {
	return domain.Account{DisplayName: name}, nil
}
func (stubProfiles) ChangeAvatar(context.Context, domain.Photo) (domain.Account, error) {
	return domain.Account{}, nil
}

type stubEditor struct{}

func (stubEditor) Cmd(string) (*exec.Cmd, string, error) { return exec.Command("true"), "/tmp/x", nil }
func (stubEditor) ReadContent(string) (string, error)    { return "", nil }

type fixture struct {
	auth  *stubAuth
	store *stubStore
	saved []config.UIState
}

func newApp(t *testing.T, signedIn bool, st config.UIState) (App, *fixture) {
	t.Helper()
	f := &fixture{
		auth:  &stubAuth{acct: domain.Account{ID: "u1", Email: "neo@matrix.io"}, signedIn: signedIn},
		store: &stubStore{},
	}
	a := NewApp(Deps{
		Guard:    app.NewGuard(f.auth),
		Session:  f.auth,
		Accounts: stubAccounts{auth: f.auth},
		Posts:    stubPosts{},
		Profiles: stubProfiles{},
		Store:    f.store,
		Editor:   stubEditor{},
		UIState:  st,
		SaveUIState: func(s config.UIState) error {
			f.saved = append(f.saved, s)
			return nil
		},
	})
	return a, f
}

func update(a App, msg tea.Msg) (App, tea.Cmd) {
	m, cmd := a.Update(msg)
	return m.(App), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestReadySignedOutShowsLogin(t *testing.T) {
	a, _ := newApp(t, false, config.UIState{Screen: "profile", LastEmail: "neo@matrix.io"})
	if a.active != loadingView {
		t.Fatalf("nothing should render before the auth state is known")
	}
	a, _ = update(a, readyMsg{})
	if a.active != authView || a.route != app.RouteLogin {
		t.Fatalf("expected login, got view %d route %s", a.active, a.route)
	}
	if a.auth.Email() != "neo@matrix.io" {
		t.Fatalf("login should be prefilled, got %q", a.auth.Email())
	}
}

func TestReadyRestoresLastScreen(t *testing.T) {
	a, _ := newApp(t, true, config.UIState{Screen: "profile"})
	a, _ = update(a, readyMsg{})
	if a.active != profileView {
		t.Fatalf("expected profile, got %d", a.active)
	}
	if !a.profOpen || a.homeOpen {
		t.Fatal("only the profile feed should be open")
	}
}

func TestSignedInNavigatesHome(t *testing.T) {
	a, f := newApp(t, false, config.UIState{})
	a, _ = update(a, readyMsg{})
	f.auth.signedIn = true
	a, _ = update(a, authui.SignedInMsg{Account: f.auth.acct})
	if a.active != homeView || a.lastEmail != "neo@matrix.io" {
		t.Fatalf("expected home after sign in, got %d", a.active)
	}
}

func TestQuitSavesState(t *testing.T) {
	a, f := newApp(t, true, config.UIState{})
	a, _ = update(a, readyMsg{})
	_, cmd := update(a, runes("q"))
	if cmd == nil {
		t.Fatal("expected quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit message")
	}
	if len(f.saved) != 1 || f.saved[0].Screen != "home" {
		t.Fatalf("unexpected saved state %+v", f.saved)
	}
}

func TestQuitKeyIsTextOnLogin(t *testing.T) {
	a, f := newApp(t, false, config.UIState{})
	a, _ = update(a, readyMsg{})
	a, _ = update(a, runes("q"))
	if len(f.saved) != 0 || a.active != authView {
		t.Fatal("q must not quit from a form")
	}
}

func TestComposeReturnsToFeedWithStatus(t *testing.T) {
	a, _ := newApp(t, true, config.UIState{})
	a, _ = update(a, readyMsg{})
	a, _ = update(a, runes("P"))
	if a.active != composeView {
		t.Fatalf("expected composer, got %d", a.active)
	}
	a, _ = update(a, compose.DoneMsg{Cancelled: true})
	if a.active != homeView {
		t.Fatalf("expected home, got %d", a.active)
	}
	if !strings.Contains(a.View(), "Cancelled.") {
		t.Fatalf("expected status in view:\n%s", a.View())
	}
}

func TestSignOutReturnsToLogin(t *testing.T) {
	a, f := newApp(t, true, config.UIState{})
	a, _ = update(a, readyMsg{})
	a, cmd := update(a, tea.KeyMsg{Type: tea.KeyCtrlO})
	if a.homeOpen {
		t.Fatal("feed should be closed on sign out")
	}
	a, _ = update(a, cmd())
	if f.auth.signOuts != 1 || a.active != authView {
		t.Fatalf("expected login after sign out, got %d", a.active)
	}
}

func TestGuardRedirectsProfileWhenSignedOut(t *testing.T) {
	a, _ := newApp(t, false, config.UIState{})
	a, _ = update(a, readyMsg{})
	next, _ := a.navigate(app.RouteProfile)
	if next.(App).active != authView {
		t.Fatal("profile must redirect to login")
	}
}
