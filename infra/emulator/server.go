package emulator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/infra/auth"
	"github.com/CrestNiraj12/nwitter/infra/gateway"
)

// Options configure the emulator.
type Options struct {
	// RequireVerification makes sign-up and post creation demand a token
	// from /v1/verification.
	RequireVerification bool
	// AutoVerify marks accounts verified as soon as a verification mail is
	// requested.
	AutoVerify bool
	// PingInterval of live query sockets. Zero means 20s.
	PingInterval time.Duration
	// PasswordCost is the bcrypt cost. Zero means bcrypt.DefaultCost.
	PasswordCost int
}

// Server is a local, in-memory stand-in for the gateway.
type Server struct {
	Store    *Store
	Accounts *Accounts
	Blobs    *Blobs

	opts     Options
	router   *mux.Router
	upgrader websocket.Upgrader

	mu            sync.Mutex
	verifications map[string]struct{}
	grants        map[string]grant
}

type grant struct {
	challenge   string
	redirectURI string
	provider    string
}

type ctxKey struct{}

func New(opts Options) *Server {
	if opts.PingInterval == 0 {
		opts.PingInterval = 20 * time.Second
	}
	s := &Server{
		Store:         NewStore(),
		Accounts:      NewAccounts(opts.AutoVerify),
		Blobs:         NewBlobs(),
		opts:          opts,
		verifications: map[string]struct{}{},
		grants:        map[string]grant{},
	}
	if opts.PasswordCost != 0 {
		s.Accounts.cost = opts.PasswordCost
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Listen serves on addr until ctx is done. It returns the bound address
// through ready once the listener is up.
func (s *Server) Listen(ctx context.Context, addr string, ready func(baseURL string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	if ready != nil {
		ready("http://" + ln.Addr().String())
	}
	glog.Infof("emulator: listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/accounts/signup", s.verified(s.handleSignUp)).Methods("POST")
	r.HandleFunc("/v1/accounts/signin", s.handleSignIn).Methods("POST")
	r.HandleFunc("/v1/accounts/me", s.authed(s.handleMe)).Methods("GET")
	r.HandleFunc("/v1/accounts/me", s.authed(s.handleUpdateProfile)).Methods("PATCH")
	r.HandleFunc("/v1/accounts/me/verification-email", s.authed(s.handleSendVerification)).Methods("POST")
	r.HandleFunc("/v1/accounts/verify", s.handleConfirmEmail).Methods("GET")
	r.HandleFunc("/v1/accounts/password-reset", s.handlePasswordReset).Methods("POST")
	r.HandleFunc("/v1/accounts/password-reset/confirm", s.handlePasswordResetConfirm).Methods("POST")

	r.HandleFunc("/v1/oauth/{provider}/authorize", s.handleAuthorize).Methods("GET")
	r.HandleFunc("/v1/oauth/token", s.handleOAuthToken).Methods("POST")

	r.HandleFunc("/v1/verification", s.handleVerification).Methods("POST")

	r.HandleFunc("/v1/collections/{collection}/records", s.authed(s.handleAdd)).Methods("POST")
	r.HandleFunc("/v1/collections/{collection}/records/{id}", s.authed(s.handleUpdate)).Methods("PATCH")
	r.HandleFunc("/v1/collections/{collection}/records/{id}", s.authed(s.handleDelete)).Methods("DELETE")
	r.HandleFunc("/v1/collections/{collection}/query", s.authed(s.handleQuery)).Methods("POST")
	r.HandleFunc("/v1/collections/{collection}/listen", s.authed(s.handleListen)).Methods("GET")

	r.HandleFunc("/v1/blobs/{path:.+}", s.authed(s.handlePutBlob)).Methods("PUT")
	r.HandleFunc("/v1/blobs/{path:.+}", s.authed(s.handleDeleteBlob)).Methods("DELETE")
	r.HandleFunc("/v1/blob-url", s.authed(s.handleBlobURL)).Methods("GET")
	r.HandleFunc("/v1/files/{token}", s.handleFile).Methods("GET")
	return r
}

// authed rejects requests without a valid bearer token and exposes the
// caller's claims to h.
func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Sign in required.")
			return
		}
		claims, err := s.Accounts.Authenticate(strings.TrimSpace(header[7:]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid-token", "Session expired. Please sign in again.")
			return
		}
		h(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	}
}

func caller(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(ctxKey{}).(*auth.Claims)
	return claims
}

// verified demands a single-use verification token when enabled.
func (s *Server) verified(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.RequireVerification && !s.consumeVerification(r.Header.Get(gateway.VerificationHeader)) {
			writeError(w, http.StatusForbidden, "verification-required", "Verification failed. Try again.")
			return
		}
		h(w, r)
	}
}

func (s *Server) consumeVerification(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.verifications[token]; !ok || token == "" {
		return false
	}
	delete(s.verifications, token)
	return true
}

func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	token := uuid.NewString()
	s.mu.Lock()
	s.verifications[token] = struct{}{}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, gateway.VerificationResponse{Token: token})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req gateway.CredentialsRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := domain.ValidateEmail(req.Email, ""); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-email", domain.Describe(err))
		return
	}
	if len(req.Password) < domain.MinPasswordLen {
		writeError(w, http.StatusBadRequest, "weak-password", domain.Describe(domain.ErrPasswordTooShort))
		return
	}
	token, err := s.Accounts.SignUp(req.Email, req.Password)
	if errors.Is(err, ErrEmailExists) {
		writeError(w, http.StatusConflict, "email-already-in-use", "E-mail already in use.")
		return
	}
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.TokenResponse{IDToken: token})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req gateway.CredentialsRequest
	if !readJSON(w, r, &req) {
		return
	}
	token, err := s.Accounts.SignIn(req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, "invalid-credential", "Wrong e-mail or password.")
		return
	}
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.TokenResponse{IDToken: token})
}

// handleMe answers with a fresh token so the client picks up claim changes,
// such as a confirmed e-mail.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token, err := s.Accounts.Refresh(caller(r).Subject)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.TokenResponse{IDToken: token})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req gateway.ProfileRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.DisplayName != nil {
		if err := domain.ValidateRename(*req.DisplayName); err != nil {
			writeError(w, http.StatusBadRequest, "invalid-name", domain.Describe(err))
			return
		}
	}
	token, err := s.Accounts.UpdateProfile(caller(r).Subject, req.DisplayName, req.PhotoURL)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.TokenResponse{IDToken: token})
}

func (s *Server) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	if err := s.Accounts.SendVerification(caller(r).Subject); err != nil {
		writeInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.Accounts.ConfirmEmail(r.URL.Query().Get("token")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-link", "This link is invalid or was already used.")
		return
	}
	_, _ = io.WriteString(w, "E-mail verified. You can sign in now.")
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req gateway.EmailRequest
	if !readJSON(w, r, &req) {
		return
	}
	s.Accounts.SendPasswordReset(req.Email)
	w.WriteHeader(http.StatusNoContent)
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !readJSON(w, r, &req) {
		return
	}
	if len(req.Password) < domain.MinPasswordLen {
		writeError(w, http.StatusBadRequest, "weak-password", domain.Describe(domain.ErrPasswordTooShort))
		return
	}
	if err := s.Accounts.ResetPassword(req.Token, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-link", "This link is invalid or was already used.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAuthorize stands in for the identity provider's consent page and
// approves immediately.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Scheme != "http" || !isLoopbackHost(redirect.Hostname()) {
		writeError(w, http.StatusBadRequest, "invalid-redirect", "Redirect must be a loopback address.")
		return
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		writeError(w, http.StatusBadRequest, "invalid-request", "PKCE S256 challenge required.")
		return
	}
	code := uuid.NewString()
	s.mu.Lock()
	s.grants[code] = grant{challenge: q.Get("code_challenge"), redirectURI: redirect.String(), provider: mux.Vars(r)["provider"]}
	s.mu.Unlock()

	back := redirect.Query()
	back.Set("code", code)
	back.Set("state", q.Get("state"))
	redirect.RawQuery = back.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (s *Server) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request", "Malformed form.")
		return
	}
	code := r.PostForm.Get("code")
	s.mu.Lock()
	g, ok := s.grants[code]
	delete(s.grants, code)
	s.mu.Unlock()
	if !ok || g.redirectURI != r.PostForm.Get("redirect_uri") || !auth.CodeChallengeMatches(r.PostForm.Get("code_verifier"), g.challenge) {
		writeError(w, http.StatusBadRequest, "invalid-grant", "Sign-in was not completed.")
		return
	}
	email := "demo@" + strings.TrimSuffix(g.provider, ".com") + ".test"
	token, err := s.Accounts.Federated(email, "")
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id_token": token})
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request", "Malformed request body.")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("emulator: writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, gateway.ErrorBody{Error: gateway.ErrorDetail{Code: code, Message: message}})
}

func writeInternal(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "not-found", "Not found.")
		return
	}
	glog.Errorf("emulator: %v", err)
	writeError(w, http.StatusInternalServerError, "internal", "Something went wrong.")
}
