package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/app"
	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/infra/auth"
	"github.com/CrestNiraj12/nwitter/infra/config"
	"github.com/CrestNiraj12/nwitter/infra/editor"
	"github.com/CrestNiraj12/nwitter/infra/emulator"
	"github.com/CrestNiraj12/nwitter/infra/gateway"
	"github.com/CrestNiraj12/nwitter/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `nwitter: a tiny social timeline in your terminal.

Usage:
    nwitter [--local] [--seed]
    nwitter -h | --help
    nwitter -v | --version

Options:
    -h --help       Show this screen.
    -v --version    Show version.
    --local         Run against an in-process gateway emulator.
    --seed          With --local, start with a demo account and a few posts.`

type cliMode int

const (
	cliRun cliMode = iota
	cliVersion
	cliHelp
	cliInvalid
)

type cliOptions struct {
	mode  cliMode
	local bool
	seed  bool
	msg   string
}

func parseCLIArgs(args []string) cliOptions {
	parser := &docopt.Parser{HelpHandler: docopt.NoHelpHandler}
	opts, err := parser.ParseArgs(usage, args, "")
	if err != nil {
		return cliOptions{mode: cliInvalid, msg: fmt.Sprintf("unexpected argument: %s", strings.Join(args, " "))}
	}
	// docopt answers --help itself and hands back no options.
	if opts == nil {
		return cliOptions{mode: cliHelp}
	}
	if help, _ := opts.Bool("--help"); help {
		return cliOptions{mode: cliHelp}
	}
	if v, _ := opts.Bool("--version"); v {
		return cliOptions{mode: cliVersion}
	}
	local, _ := opts.Bool("--local")
	seed, _ := opts.Bool("--seed")
	if seed && !local {
		return cliOptions{mode: cliInvalid, msg: "--seed requires --local"}
	}
	return cliOptions{mode: cliRun, local: local, seed: seed}
}

func resolveVersionInfo(v, c, d, moduleVersion string, settings map[string]string) (string, string, string) {
	if v == "dev" {
		mv := strings.TrimSpace(moduleVersion)
		if mv != "" && mv != "(devel)" {
			v = mv
		}
	}
	if c == "none" {
		rev := strings.TrimSpace(settings["vcs.revision"])
		if rev != "" {
			if len(rev) > 12 {
				rev = rev[:12]
			}
			c = rev
		}
	}
	if d == "unknown" {
		t := strings.TrimSpace(settings["vcs.time"])
		if t != "" {
			d = t
		}
	}
	return v, c, d
}

func buildSettingsMap(in []debug.BuildSetting) map[string]string {
	out := make(map[string]string, len(in))
	for _, s := range in {
		out[s.Key] = s.Value
	}
	return out
}

func resolvedRuntimeVersionInfo(v, c, d string) (string, string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return v, c, d
	}
	return resolveVersionInfo(v, c, d, info.Main.Version, buildSettingsMap(info.Settings))
}

// setupLogging sends glog output to files only; the terminal belongs to the TUI.
func setupLogging(cfg config.Config) error {
	if err := os.MkdirAll(cfg.LogDir, 0o700); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	for name, value := range map[string]string{
		"log_dir":         cfg.LogDir,
		"logtostderr":     "false",
		"stderrthreshold": "FATAL",
		"v":               strconv.Itoa(cfg.LogVerbosity),
	} {
		if err := flag.Set(name, value); err != nil {
			return fmt.Errorf("setting glog flag %s: %w", name, err)
		}
	}
	return nil
}

// startEmulator runs the local gateway until ctx is done and returns its URL.
func startEmulator(ctx context.Context, cfg config.Config) (*emulator.Server, string, error) {
	srv := emulator.New(emulator.Options{
		RequireVerification: cfg.BotVerification,
		AutoVerify:          true,
	})
	ready := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(ctx, "127.0.0.1:0", func(url string) { ready <- url })
	}()
	select {
	case url := <-ready:
		return srv, url, nil
	case err := <-errCh:
		return nil, "", fmt.Errorf("starting emulator: %w", err)
	case <-time.After(5 * time.Second):
		return nil, "", fmt.Errorf("starting emulator: timed out")
	}
}

type staticSession struct {
	acct domain.Account
}

func (s staticSession) Current() (domain.Account, bool) { return s.acct, true }

var demoPosts = []string{
	"Welcome to nwitter! Press p to write your first post.",
	"Posts are short. 180 characters, no more.",
	"Attach a photo with a to any post you own, or open one with o.",
}

// seed signs up a demo account on the emulator and posts through the same
// controller the TUI uses.
func seed(ctx context.Context, srv *emulator.Server, baseURL string, verify bool) error {
	token, err := srv.Accounts.SignUp("demo@nwitter.local", "nwitter-demo")
	if err != nil {
		return fmt.Errorf("creating demo account: %w", err)
	}
	acct, err := auth.AccountFromToken(token)
	if err != nil {
		return err
	}
	name := "demo"
	if token, err = srv.Accounts.UpdateProfile(acct.ID, &name, nil); err != nil {
		return fmt.Errorf("naming demo account: %w", err)
	}
	acct.DisplayName = name

	client := gateway.NewClient(baseURL)
	client.SetToken(token)
	var verifier app.Verifier
	if verify {
		verifier = gateway.NewVerifier(client)
	}
	store := gateway.NewRecordStore(client)
	posts := app.NewPostController(staticSession{acct: acct}, store, gateway.NewBlobStore(client), verifier)
	for _, body := range demoPosts {
		if _, err := posts.Create(ctx, body, nil); err != nil {
			return fmt.Errorf("seeding post: %w", err)
		}
	}

	snap, err := app.NewFeedSubscriber(store).Fetch(ctx, domain.Global)
	if err != nil {
		return err
	}
	glog.Infof("seed: timeline has %d posts", len(snap.Posts))
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code so deferred cleanup always happens.
func run(args []string) int {
	opts := parseCLIArgs(args)
	switch opts.mode {
	case cliVersion:
		v, c, d := resolvedRuntimeVersionInfo(version, commit, date)
		fmt.Printf("nwitter %s\ncommit: %s\nbuilt: %s\n", v, c, d)
		return 0
	case cliHelp:
		fmt.Println(usage)
		return 0
	case cliInvalid:
		fmt.Fprintf(os.Stderr, "%s\n%s\n", opts.msg, usage)
		return 2
	}

	// 1. Load config from environment.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if err := setupLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return 1
	}
	defer glog.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Pick the gateway. The emulator gets its own session file since its
	// tokens die with the process.
	gatewayURL, sessionPath := cfg.GatewayURL, cfg.SessionPath
	if opts.local {
		srv, url, err := startEmulator(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "nwitter: %v\n", err)
			return 1
		}
		gatewayURL = url
		sessionPath = filepath.Join(cfg.ConfigDir, "session.local")
		if opts.seed {
			if err := seed(ctx, srv, url, cfg.BotVerification); err != nil {
				fmt.Fprintf(os.Stderr, "nwitter: %v\n", err)
				return 1
			}
		}
	}
	glog.Infof("nwitter %s using gateway %s", version, gatewayURL)

	// 3. Build infrastructure.
	client := gateway.NewClient(gatewayURL)
	authSvc := gateway.NewAuthService(client, auth.NewFileTokenStore(sessionPath), cfg.OAuthCallbackPort)
	records := gateway.NewRecordStore(client)
	blobs := gateway.NewBlobStore(client)
	var verifier app.Verifier
	if cfg.BotVerification {
		verifier = gateway.NewVerifier(client)
	}

	// 4. Build controllers.
	accounts := app.NewAccountController(authSvc, verifier, cfg.EmailDomain)
	posts := app.NewPostController(authSvc, records, blobs, verifier)
	profiles := app.NewProfileController(authSvc, blobs)

	uiState, err := config.LoadUIState(cfg.UIStatePath)
	if err != nil {
		glog.Warningf("ui state: %v", err)
	}

	// 5. Wire root TUI model.
	rootModel := tui.NewApp(tui.Deps{
		Guard:    app.NewGuard(authSvc),
		Session:  authSvc,
		Accounts: accounts,
		Posts:    posts,
		Profiles: profiles,
		Store:    records,
		Editor:   editor.NewEnvEditor(),
		UIState:  uiState,
		SaveUIState: func(st config.UIState) error {
			return config.SaveUIState(cfg.UIStatePath, st)
		},
	})

	// 6. Run.
	p := tea.NewProgram(rootModel, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		glog.Errorf("tui: %v", err)
		fmt.Fprintf(os.Stderr, "nwitter: %v\n", err)
		return 1
	}
	return 0
}
