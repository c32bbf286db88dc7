package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/domain"
)

// LoginTimeout bounds how long the loopback listener waits for the browser.
const LoginTimeout = 2 * time.Minute

type oauthTokenResponse struct {
	IDToken string `json:"id_token"`
}

// Opener shows the authorization URL to the user, normally in a browser.
type Opener func(authURL string) error

// FederatedSignIn runs a PKCE authorization-code flow against the gateway
// for the given identity provider, receiving the code on a loopback
// listener. It returns the gateway ID token. A callbackPort of 0 picks a free
// port.
func FederatedSignIn(ctx context.Context, gatewayURL string, provider domain.Provider, callbackPort int, open Opener) (string, error) {
	if open == nil {
		open = OpenBrowser
	}
	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	codeVerifier, err := randomCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("generating oauth code verifier: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", callbackPort))
	if err != nil {
		return "", fmt.Errorf("oauth callback listener: %w", err)
	}
	redirectURI := fmt.Sprintf("http://%s/callback", ln.Addr().String())

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{Handler: callbackHandler(state, codeCh, errCh)}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- fmt.Errorf("oauth callback server: %w", err):
			default:
			}
		}
	}()
	defer srv.Shutdown(context.Background())

	authURL := gatewayURL + "/v1/oauth/" + url.PathEscape(string(provider)) + "/authorize?" + url.Values{
		"response_type":         {"code"},
		"redirect_uri":          {redirectURI},
		"state":                 {state},
		"code_challenge_method": {"S256"},
		"code_challenge":        {codeChallengeS256(codeVerifier)},
	}.Encode()

	glog.Infof("oauth: waiting for %s sign-in at %s", provider, authURL)
	if err := open(authURL); err != nil {
		glog.Warningf("oauth: could not open browser: %v", err)
	}

	timeout := time.NewTimer(LoginTimeout)
	defer timeout.Stop()

	var code string
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errCh:
		return "", err
	case code = <-codeCh:
	case <-timeout.C:
		return "", errors.New("oauth login timed out")
	}

	return exchangeCode(ctx, gatewayURL, provider, code, codeVerifier, redirectURI)
}

func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	fail := func(w http.ResponseWriter, msg string, err error) {
		http.Error(w, msg, http.StatusBadRequest)
		select {
		case errCh <- err:
		default:
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("state") != state {
			fail(w, "invalid oauth state", errors.New("oauth state mismatch"))
			return
		}
		if e := q.Get("error"); e != "" {
			fail(w, "authorization denied", fmt.Errorf("oauth authorization error: %s", e))
			return
		}
		code := q.Get("code")
		if code == "" {
			fail(w, "missing oauth code", errors.New("oauth callback missing code"))
			return
		}
		_, _ = io.WriteString(w, "nwitter sign-in complete. You can return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	})
}

func exchangeCode(ctx context.Context, gatewayURL string, provider domain.Provider, code, codeVerifier, redirectURI string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("provider", string(provider))
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("code_verifier", codeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gatewayURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating oauth token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := (&http.Client{Timeout: 15 * time.Second}).Do(req)
	if err != nil {
		return "", fmt.Errorf("exchanging oauth code: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading oauth token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("oauth token exchange failed: %d %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var tr oauthTokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", fmt.Errorf("parsing oauth token response: %w", err)
	}
	if strings.TrimSpace(tr.IDToken) == "" {
		return "", errors.New("oauth token response missing id token")
	}
	return strings.TrimSpace(tr.IDToken), nil
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func randomState() (string, error) {
	return randomToken(24)
}

func randomCodeVerifier() (string, error) {
	// 32 random bytes -> 43 chars with RawURLEncoding, valid PKCE verifier length.
	return randomToken(32)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func codeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// CodeChallengeMatches reports whether verifier hashes to challenge under S256.
func CodeChallengeMatches(verifier, challenge string) bool {
	return verifier != "" && codeChallengeS256(verifier) == challenge
}
