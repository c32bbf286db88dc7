package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/infra/auth"
)

// AuthService implements app.AuthGateway on top of the gateway's account API.
// The session is the gateway ID token, mirrored to a TokenStore.
type AuthService struct {
	client       *Client
	store        auth.TokenStore
	callbackPort int
	opener       auth.Opener

	now func() time.Time

	mu       sync.RWMutex
	acct     domain.Account
	signedIn bool

	readyOnce sync.Once
	readyErr  error
}

// NewAuthService creates the auth adapter. callbackPort is the loopback port
// used by federated sign-in.
func NewAuthService(client *Client, store auth.TokenStore, callbackPort int) *AuthService {
	return &AuthService{client: client, store: store, callbackPort: callbackPort, now: time.Now}
}

// WithOpener overrides how the federated sign-in URL is presented.
func (s *AuthService) WithOpener(open auth.Opener) *AuthService {
	s.opener = open
	return s
}

func (s *AuthService) Current() (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acct, s.signedIn
}

// AwaitReady restores the stored session and checks it against the gateway.
// It resolves once; later calls return the first result. A gateway that
// cannot be reached keeps the stored session so the app can start offline.
func (s *AuthService) AwaitReady(ctx context.Context) error {
	s.readyOnce.Do(func() {
		s.readyErr = s.restore(ctx)
	})
	return s.readyErr
}

func (s *AuthService) restore(ctx context.Context) error {
	token, err := s.store.Load()
	if err != nil {
		return err
	}
	if token == "" {
		glog.V(1).Infof("auth: no stored session")
		return nil
	}
	claims, err := auth.ParseIDToken(token)
	if err != nil {
		glog.Warningf("auth: discarding unreadable session: %v", err)
		return s.forget()
	}
	if claims.Expired(s.now()) {
		glog.Infof("auth: stored session expired, signing out")
		return s.forget()
	}
	if err := s.adopt(token, false); err != nil {
		glog.Warningf("auth: discarding unreadable session: %v", err)
		return s.forget()
	}

	var resp TokenResponse
	err = s.client.doJSON(ctx, "session", http.MethodGet, "/v1/accounts/me", nil, &resp)
	switch {
	case err == nil:
		if resp.IDToken != "" {
			return s.adopt(resp.IDToken, true)
		}
		return nil
	case IsUnauthorized(err):
		glog.Infof("auth: stored session rejected, signing out")
		return s.forget()
	default:
		glog.Warningf("auth: could not validate session, keeping it: %v", err)
		return nil
	}
}

func (s *AuthService) CreateAccount(ctx context.Context, email, password string) (domain.Account, error) {
	return s.credentials(ctx, "signup", "/v1/accounts/signup", email, password)
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (domain.Account, error) {
	return s.credentials(ctx, "signin", "/v1/accounts/signin", email, password)
}

func (s *AuthService) credentials(ctx context.Context, op, path, email, password string) (domain.Account, error) {
	var resp TokenResponse
	err := s.client.doJSON(ctx, op, http.MethodPost, path, CredentialsRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.adopt(resp.IDToken, true); err != nil {
		return domain.Account{}, err
	}
	acct, _ := s.Current()
	return acct, nil
}

// SignInWithProvider runs the browser loopback flow for provider.
func (s *AuthService) SignInWithProvider(ctx context.Context, provider domain.Provider) (domain.Account, error) {
	token, err := auth.FederatedSignIn(ctx, s.client.BaseURL(), provider, s.callbackPort, s.opener)
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.adopt(token, true); err != nil {
		return domain.Account{}, err
	}
	acct, _ := s.Current()
	return acct, nil
}

// SignOut drops the session locally. ID tokens are stateless; there is
// nothing to revoke on the gateway.
func (s *AuthService) SignOut(context.Context) error {
	return s.forget()
}

func (s *AuthService) SendVerificationEmail(ctx context.Context) error {
	if _, ok := s.Current(); !ok {
		return domain.ErrUnauthorized
	}
	return s.client.doJSON(ctx, "verification email", http.MethodPost, "/v1/accounts/me/verification-email", nil, nil)
}

func (s *AuthService) SendPasswordResetEmail(ctx context.Context, email string) error {
	return s.client.doJSON(ctx, "password reset", http.MethodPost, "/v1/accounts/password-reset", EmailRequest{Email: email}, nil)
}

// UpdateProfile patches the account. The gateway answers with a re-issued
// token carrying the new claims.
func (s *AuthService) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (domain.Account, error) {
	if _, ok := s.Current(); !ok {
		return domain.Account{}, domain.ErrUnauthorized
	}
	var resp TokenResponse
	req := ProfileRequest{DisplayName: update.DisplayName, PhotoURL: update.AvatarURL}
	if err := s.client.doJSON(ctx, "update profile", http.MethodPatch, "/v1/accounts/me", req, &resp); err != nil {
		return domain.Account{}, err
	}
	if err := s.adopt(resp.IDToken, true); err != nil {
		return domain.Account{}, err
	}
	acct, _ := s.Current()
	return acct, nil
}

// adopt makes token the active session, persisting it when asked.
func (s *AuthService) adopt(token string, persist bool) error {
	if token == "" {
		return errors.New("gateway returned no id token")
	}
	acct, err := auth.AccountFromToken(token)
	if err != nil {
		return err
	}
	if persist {
		if err := s.store.Save(token); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
	}
	s.client.SetToken(token)
	s.mu.Lock()
	s.acct, s.signedIn = acct, true
	s.mu.Unlock()
	glog.V(1).Infof("auth: signed in as %s", acct.ID)
	return nil
}

func (s *AuthService) forget() error {
	s.client.SetToken("")
	s.mu.Lock()
	s.acct, s.signedIn = domain.Account{}, false
	s.mu.Unlock()
	return s.store.Clear()
}
