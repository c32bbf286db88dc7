package emulator

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/CrestNiraj12/nwitter/infra/auth"
)

const tokenTTL = 24 * time.Hour

type account struct {
	id       string
	email    string
	hash     []byte
	name     string
	photo    string
	verified bool
}

// Mail is a message the emulator would have sent. Link tokens are delivered
// here instead of to an inbox.
type Mail struct {
	To    string
	Kind  string // "verify" or "reset"
	Token string
}

// Accounts is the emulator's identity provider. ID tokens are HS256 JWTs
// signed with a per-process secret.
type Accounts struct {
	mu      sync.Mutex
	byID    map[string]*account
	byEmail map[string]*account
	links   map[string]Mail
	outbox  []Mail

	secret     []byte
	cost       int
	autoVerify bool
	now        func() time.Time
}

func NewAccounts(autoVerify bool) *Accounts {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("emulator: reading random secret: %v", err))
	}
	return &Accounts{
		byID:       map[string]*account{},
		byEmail:    map[string]*account{},
		links:      map[string]Mail{},
		secret:     secret,
		cost:       bcrypt.DefaultCost,
		autoVerify: autoVerify,
		now:        time.Now,
	}
}

// SignUp creates a password account and returns its ID token.
func (a *Accounts) SignUp(email, password string) (string, error) {
	key := strings.ToLower(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byEmail[key]; ok {
		return "", ErrEmailExists
	}
	acct := &account{id: ulid.Make().String(), email: email, hash: hash}
	a.byID[acct.id] = acct
	a.byEmail[key] = acct
	glog.V(1).Infof("emulator: account %s created for %s", acct.id, email)
	return a.issueLocked(acct)
}

func (a *Accounts) SignIn(email, password string) (string, error) {
	a.mu.Lock()
	acct, ok := a.byEmail[strings.ToLower(email)]
	a.mu.Unlock()
	if !ok || acct.hash == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issueLocked(acct)
}

// Federated signs in (creating on first use) an account vouched for by an
// identity provider. Such accounts are verified from the start.
func (a *Accounts) Federated(email, name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.byEmail[strings.ToLower(email)]
	if !ok {
		acct = &account{id: ulid.Make().String(), email: email, name: name}
		a.byID[acct.id] = acct
		a.byEmail[strings.ToLower(email)] = acct
	}
	acct.verified = true
	return a.issueLocked(acct)
}

// Authenticate verifies an ID token and returns its claims.
func (a *Accounts) Authenticate(token string) (*auth.Claims, error) {
	claims := &auth.Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byID[claims.Subject]; !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh re-issues a token with the account's current claims.
func (a *Accounts) Refresh(id string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.byID[id]
	if !ok {
		return "", ErrNotFound
	}
	return a.issueLocked(acct)
}

// UpdateProfile patches the display name and photo; nil leaves a field as is.
func (a *Accounts) UpdateProfile(id string, name, photo *string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.byID[id]
	if !ok {
		return "", ErrNotFound
	}
	if name != nil {
		acct.name = *name
	}
	if photo != nil {
		acct.photo = *photo
	}
	return a.issueLocked(acct)
}

// SendVerification queues a verification link for the account.
func (a *Accounts) SendVerification(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.byID[id]
	if !ok {
		return ErrNotFound
	}
	if a.autoVerify {
		acct.verified = true
		glog.Infof("emulator: auto-verified %s", acct.email)
		return nil
	}
	a.mailLocked(acct.email, "verify")
	return nil
}

// SendPasswordReset queues a reset link. Unknown addresses are accepted
// silently so the endpoint does not reveal which accounts exist.
func (a *Accounts) SendPasswordReset(email string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.byEmail[strings.ToLower(email)]
	if !ok || acct.hash == nil {
		glog.V(1).Infof("emulator: reset requested for unknown %s", email)
		return
	}
	a.mailLocked(acct.email, "reset")
}

// ConfirmEmail consumes a verification link.
func (a *Accounts) ConfirmEmail(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.links[token]
	if !ok || m.Kind != "verify" {
		return ErrInvalidLink
	}
	delete(a.links, token)
	a.byEmail[strings.ToLower(m.To)].verified = true
	return nil
}

// ResetPassword consumes a reset link and sets a new password.
func (a *Accounts) ResetPassword(token, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.links[token]
	if !ok || m.Kind != "reset" {
		return ErrInvalidLink
	}
	delete(a.links, token)
	a.byEmail[strings.ToLower(m.To)].hash = hash
	return nil
}

// Outbox returns the mail sent so far.
func (a *Accounts) Outbox() []Mail {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Mail(nil), a.outbox...)
}

func (a *Accounts) mailLocked(to, kind string) {
	m := Mail{To: to, Kind: kind, Token: uuid.NewString()}
	a.links[m.Token] = m
	a.outbox = append(a.outbox, m)
	glog.Infof("emulator: %s link for %s: %s", kind, to, m.Token)
}

func (a *Accounts) issueLocked(acct *account) (string, error) {
	now := a.now()
	claims := auth.Claims{
		Email:         acct.email,
		EmailVerified: acct.verified,
		Name:          acct.name,
		Picture:       acct.photo,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.id,
			Issuer:    "nwitter-emulator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing id token: %w", err)
	}
	return signed, nil
}

var (
	ErrNotFound           = errors.New("not found")
	ErrEmailExists        = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid id token")
	ErrInvalidLink        = errors.New("invalid or used link")
)
