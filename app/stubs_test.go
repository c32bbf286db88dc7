package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/CrestNiraj12/nwitter/domain"
)

type stubSession struct {
	acct     domain.Account
	signedIn bool
}

func (s *stubSession) Current() (domain.Account, bool) { return s.acct, s.signedIn }

func signedIn(id, name string) *stubSession {
	return &stubSession{acct: domain.Account{ID: id, DisplayName: name, EmailVerified: true}, signedIn: true}
}

type stubAuth struct {
	stubSession
	calls []string

	createErr  error
	signInAcct domain.Account
	signInErr  error
	verifyErr  error
	resetErr   error
	updateErr  error
	signOutErr error

	lastCtx    context.Context
	lastUpdate domain.ProfileUpdate
}

func (a *stubAuth) AwaitReady(context.Context) error { return nil }

func (a *stubAuth) CreateAccount(ctx context.Context, email, _ string) (domain.Account, error) {
	a.calls = append(a.calls, "create")
	a.lastCtx = ctx
	if a.createErr != nil {
		return domain.Account{}, a.createErr
	}
	a.acct = domain.Account{ID: "new", Email: email}
	a.signedIn = true
	return a.acct, nil
}

func (a *stubAuth) SignIn(context.Context, string, string) (domain.Account, error) {
	a.calls = append(a.calls, "signin")
	if a.signInErr != nil {
		return domain.Account{}, a.signInErr
	}
	a.acct = a.signInAcct
	a.signedIn = true
	return a.acct, nil
}

func (a *stubAuth) SignInWithProvider(_ context.Context, p domain.Provider) (domain.Account, error) {
	a.calls = append(a.calls, "provider:"+string(p))
	return a.signInAcct, a.signInErr
}

func (a *stubAuth) SignOut(context.Context) error {
	a.calls = append(a.calls, "signout")
	a.signedIn = false
	return a.signOutErr
}

func (a *stubAuth) SendVerificationEmail(context.Context) error {
	a.calls = append(a.calls, "verify")
	return a.verifyErr
}

func (a *stubAuth) SendPasswordResetEmail(context.Context, string) error {
	a.calls = append(a.calls, "reset")
	return a.resetErr
}

func (a *stubAuth) UpdateProfile(_ context.Context, u domain.ProfileUpdate) (domain.Account, error) {
	a.calls = append(a.calls, "update")
	a.lastUpdate = u
	if a.updateErr != nil {
		return domain.Account{}, a.updateErr
	}
	if u.DisplayName != nil {
		a.acct.DisplayName = *u.DisplayName
	}
	if u.AvatarURL != nil {
		a.acct.AvatarURL = *u.AvatarURL
	}
	return a.acct, nil
}

// stubDocs is an in-memory DocumentStore that records every call in order.
type stubDocs struct {
	mu      sync.Mutex
	nextID  int
	records map[string]map[string]any
	calls   []string

	addErr    error
	updateErr error
	deleteErr error
	subErr    error

	lastCtx context.Context

	subs      []func([]domain.Record, error)
	cancelled int

	// subscribing, when set, runs before Subscribe registers a listener.
	subscribing func()
	// updating, when set, runs before UpdateRecord applies its fields.
	updating func(fields map[string]any)
}

func newStubDocs() *stubDocs {
	return &stubDocs{records: map[string]map[string]any{}}
}

func (d *stubDocs) AddRecord(ctx context.Context, _ string, fields map[string]any) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "add")
	d.lastCtx = ctx
	if d.addErr != nil {
		return "", d.addErr
	}
	d.nextID++
	id := fmt.Sprintf("p%d", d.nextID)
	copied := map[string]any{}
	for k, v := range fields {
		copied[k] = v
	}
	d.records[id] = copied
	return id, nil
}

func (d *stubDocs) UpdateRecord(_ context.Context, _ string, id string, fields map[string]any) error {
	if d.updating != nil {
		d.updating(fields)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "update")
	if d.updateErr != nil {
		return d.updateErr
	}
	rec, ok := d.records[id]
	if !ok {
		return errors.New("not found")
	}
	for k, v := range fields {
		if v == nil {
			delete(rec, k)
			continue
		}
		rec[k] = v
	}
	return nil
}

func (d *stubDocs) DeleteRecord(_ context.Context, _ string, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "delete")
	if d.deleteErr != nil {
		return d.deleteErr
	}
	delete(d.records, id)
	return nil
}

func (d *stubDocs) Query(context.Context, domain.Query) ([]domain.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Record, 0, len(d.records))
	for id, f := range d.records {
		out = append(out, domain.Record{ID: id, Fields: f})
	}
	return out, nil
}

func (d *stubDocs) Subscribe(_ context.Context, _ domain.Query, fn func([]domain.Record, error)) (func(), error) {
	if d.subscribing != nil {
		d.subscribing()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subErr != nil {
		return nil, d.subErr
	}
	d.subs = append(d.subs, fn)
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.cancelled++
			d.mu.Unlock()
		})
	}, nil
}

func (d *stubDocs) push(i int, records []domain.Record, err error) {
	d.mu.Lock()
	fn := d.subs[i]
	d.mu.Unlock()
	fn(records, err)
}

func (d *stubDocs) field(id, key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.records[id][key]
	return v, ok
}

type stubBlobs struct {
	calls     []string
	blobs     map[string]domain.Photo
	uploadErr error
	urlErr    error
	deleteErr error
}

func newStubBlobs() *stubBlobs {
	return &stubBlobs{blobs: map[string]domain.Photo{}}
}

func (b *stubBlobs) Upload(_ context.Context, path string, photo domain.Photo) (string, error) {
	b.calls = append(b.calls, "upload:"+path)
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	b.blobs[path] = photo
	return path, nil
}

func (b *stubBlobs) DownloadURL(_ context.Context, ref string) (string, error) {
	b.calls = append(b.calls, "url:"+ref)
	if b.urlErr != nil {
		return "", b.urlErr
	}
	return "https://blobs.test/" + ref, nil
}

func (b *stubBlobs) Delete(_ context.Context, path string) error {
	b.calls = append(b.calls, "delete:"+path)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.blobs, path)
	return nil
}

type stubVerifier struct {
	token string
	err   error
}

func (v stubVerifier) Token(context.Context) (string, error) { return v.token, v.err }

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func testPhoto() domain.Photo {
	return domain.Photo{Name: "cat.png", ContentType: "image/png", Data: pngHeader}
}

func record(id, author string, createdAt int64) domain.Record {
	return domain.Record{ID: id, Fields: map[string]any{
		domain.FieldBody:       "hello " + id,
		domain.FieldCreatedAt:  createdAt,
		domain.FieldAuthorName: "name-" + author,
		domain.FieldAuthorID:   author,
	}}
}
