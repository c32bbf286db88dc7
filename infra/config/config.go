package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultGatewayURL        = "https://gateway.nwitter.dev"
	DefaultOAuthCallbackPort = 45150
)

// Config holds application-level configuration.
type Config struct {
	GatewayURL        string // e.g. "https://gateway.nwitter.dev"
	ConfigDir         string
	SessionPath       string // ID token of the signed-in account
	UIStatePath       string
	LogDir            string
	LogVerbosity      int
	OAuthCallbackPort int
	BotVerification   bool
	EmailDomain       string // Restricts sign-up when set
}

// Load reads configuration from environment variables, after merging an
// optional .env file from the working directory. Variables already set in
// the environment take precedence over the file.
//
//	NWITTER_GATEWAY              Gateway URL (default: https://gateway.nwitter.dev)
//	NWITTER_CONFIG_DIR           Config directory (default: ~/.config/nwitter)
//	NWITTER_OAUTH_CALLBACK_PORT  Loopback port for social sign-in (default: 45150)
//	NWITTER_BOT_VERIFICATION     Require a verification token on sign-up and posting
//	NWITTER_EMAIL_DOMAIN         Only accept sign-ups from this mail domain
//	NWITTER_LOG_DIR              Log directory (default: <config dir>/logs)
//	NWITTER_LOG_VERBOSITY        glog -v level (default: 0)
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading .env: %w", err)
	}

	gateway, err := parseGatewayURL(envOr("NWITTER_GATEWAY", DefaultGatewayURL))
	if err != nil {
		return Config{}, err
	}

	dir := os.Getenv("NWITTER_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".config", "nwitter")
	}

	port := DefaultOAuthCallbackPort
	if raw := os.Getenv("NWITTER_OAUTH_CALLBACK_PORT"); raw != "" {
		port, err = strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid NWITTER_OAUTH_CALLBACK_PORT: %q", raw)
		}
	}

	bot := false
	if raw := os.Getenv("NWITTER_BOT_VERIFICATION"); raw != "" {
		bot, err = strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid NWITTER_BOT_VERIFICATION: %q", raw)
		}
	}

	verbosity := 0
	if raw := os.Getenv("NWITTER_LOG_VERBOSITY"); raw != "" {
		verbosity, err = strconv.Atoi(raw)
		if err != nil || verbosity < 0 {
			return Config{}, fmt.Errorf("invalid NWITTER_LOG_VERBOSITY: %q", raw)
		}
	}

	return Config{
		GatewayURL:        gateway,
		ConfigDir:         dir,
		SessionPath:       filepath.Join(dir, "session"),
		UIStatePath:       filepath.Join(dir, "ui_state.json"),
		LogDir:            envOr("NWITTER_LOG_DIR", filepath.Join(dir, "logs")),
		LogVerbosity:      verbosity,
		OAuthCallbackPort: port,
		BotVerification:   bot,
		EmailDomain:       strings.TrimPrefix(strings.TrimSpace(os.Getenv("NWITTER_EMAIL_DOMAIN")), "@"),
	}, nil
}

// parseGatewayURL normalizes the gateway URL. Plain http is only accepted for
// loopback hosts, which is what the local emulator listens on.
func parseGatewayURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid NWITTER_GATEWAY: must be an absolute URL")
	}
	switch parsed.Scheme {
	case "https":
	case "http":
		if !isLoopback(parsed.Hostname()) {
			return "", fmt.Errorf("invalid NWITTER_GATEWAY: http is only allowed for loopback hosts")
		}
	default:
		return "", fmt.Errorf("invalid NWITTER_GATEWAY: unsupported scheme %q", parsed.Scheme)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
