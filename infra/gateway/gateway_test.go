package gateway_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/CrestNiraj12/nwitter/app"
	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/infra/auth"
	"github.com/CrestNiraj12/nwitter/infra/emulator"
	"github.com/CrestNiraj12/nwitter/infra/gateway"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func testPhoto() domain.Photo {
	return domain.Photo{Name: "cat.png", ContentType: "image/png", Data: pngHeader}
}

type harness struct {
	emu *emulator.Server
	url string
}

func newHarness(t *testing.T, opts emulator.Options) *harness {
	t.Helper()
	opts.PasswordCost = bcrypt.MinCost
	emu := emulator.New(opts)
	srv := httptest.NewServer(emu)
	t.Cleanup(srv.Close)
	return &harness{emu: emu, url: srv.URL}
}

// user is one client process talking to the emulator.
type user struct {
	client   *gateway.Client
	auth     *gateway.AuthService
	store    *auth.FileTokenStore
	accounts *app.AccountController
	posts    *app.PostController
	records  *gateway.RecordStore
	blobs    *gateway.BlobStore
}

func (h *harness) newUser(t *testing.T, verifier bool) *user {
	t.Helper()
	client := gateway.NewClient(h.url)
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "session"))
	authSvc := gateway.NewAuthService(client, store, 0)
	records := gateway.NewRecordStore(client).WithLiveSettings(gateway.LiveSettings{
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
		ReadTimeout:      5 * time.Second,
		ReconnectDelay:   50 * time.Millisecond,
	})
	blobs := gateway.NewBlobStore(client)
	var v app.Verifier
	if verifier {
		v = gateway.NewVerifier(client)
	}
	return &user{
		client:   client,
		auth:     authSvc,
		store:    store,
		accounts: app.NewAccountController(authSvc, v, ""),
		posts:    app.NewPostController(authSvc, records, blobs, v),
		records:  records,
		blobs:    blobs,
	}
}

func (u *user) signUp(t *testing.T, h *harness, name, email string) domain.Account {
	t.Helper()
	ctx := context.Background()
	err := u.accounts.Register(ctx, domain.Registration{Name: name, Email: email, Password: "redpill", ConfirmPassword: "redpill"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, m := range h.emu.Accounts.Outbox() {
		if m.To == email && m.Kind == "verify" {
			_ = h.emu.Accounts.ConfirmEmail(m.Token)
		}
	}
	acct, err := u.accounts.SignIn(ctx, email, "redpill")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	return acct
}

func TestRegisterRequiresVerifiedEmail(t *testing.T) {
	h := newHarness(t, emulator.Options{})
	u := h.newUser(t, false)
	ctx := context.Background()

	reg := domain.Registration{Name: "neo", Email: "neo@matrix.io", Password: "redpill", ConfirmPassword: "redpill"}
	if err := u.accounts.Register(ctx, reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := u.auth.Current(); ok {
		t.Fatal("must be signed out after registering")
	}
	if err := u.accounts.Register(ctx, reg); domain.Describe(err) != "E-mail already in use." {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	if _, err := u.accounts.SignIn(ctx, "neo@matrix.io", "redpill"); !errors.Is(err, domain.ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
	outbox := h.emu.Accounts.Outbox()
	if len(outbox) != 1 {
		t.Fatalf("expected one verification mail, got %d", len(outbox))
	}
	if err := h.emu.Accounts.ConfirmEmail(outbox[0].Token); err != nil {
		t.Fatal(err)
	}

	acct, err := u.accounts.SignIn(ctx, "neo@matrix.io", "redpill")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if acct.DisplayName != "neo" || !acct.EmailVerified {
		t.Fatalf("unexpected account: %+v", acct)
	}

	if _, err := u.accounts.SignIn(ctx, "neo@matrix.io", "bluepill"); !domain.IsGatewayError(err) {
		t.Fatalf("expected gateway rejection, got %v", err)
	}
}

func TestSessionRestoredOnNextStart(t *testing.T) {
	h := newHarness(t, emulator.Options{AutoVerify: true})
	u := h.newUser(t, false)
	acct := u.signUp(t, h, "neo", "neo@matrix.io")

	again := gateway.NewAuthService(gateway.NewClient(h.url), u.store, 0)
	if err := app.NewGuard(again).Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	got, ok := again.Current()
	if !ok || got.ID != acct.ID {
		t.Fatalf("expected restored session for %s, got %+v %v", acct.ID, got, ok)
	}
}

func TestRejectedSessionIsCleared(t *testing.T) {
	h := newHarness(t, emulator.Options{})
	other := newHarness(t, emulator.Options{AutoVerify: true})
	u := other.newUser(t, false)
	u.signUp(t, other, "neo", "neo@matrix.io")

	// The token was issued by a different gateway.
	svc := gateway.NewAuthService(gateway.NewClient(h.url), u.store, 0)
	if err := svc.AwaitReady(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if _, ok := svc.Current(); ok {
		t.Fatal("rejected session must be signed out")
	}
	if token, _ := u.store.Load(); token != "" {
		t.Fatal("rejected session must be removed from disk")
	}
}

func TestExpiredSessionIsClearedOffline(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	claims := auth.Claims{
		Email: "neo@matrix.io",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("any"))
	if err != nil {
		t.Fatal(err)
	}
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "session"))
	if err := store.Save(token); err != nil {
		t.Fatal(err)
	}

	svc := gateway.NewAuthService(gateway.NewClient(srv.URL), store, 0)
	if err := svc.AwaitReady(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if _, ok := svc.Current(); ok {
		t.Fatal("expired session must be signed out")
	}
	if token, _ := store.Load(); token != "" {
		t.Fatal("expired session must be removed from disk")
	}
	if requests != 0 {
		t.Fatalf("expired session needs no gateway round trip, got %d requests", requests)
	}
}

func TestCreatePostWithPhotoServesBytes(t *testing.T) {
	h := newHarness(t, emulator.Options{AutoVerify: true})
	u := h.newUser(t, false)
	acct := u.signUp(t, h, "neo", "neo@matrix.io")
	ctx := context.Background()

	text, err := u.posts.Create(ctx, "text only", nil)
	if err != nil || text.HasPhoto() {
		t.Fatalf("unexpected text post: %+v %v", text, err)
	}

	photo := testPhoto()
	post, err := u.posts.Create(ctx, "with photo", &photo)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.AuthorID != acct.ID || post.AuthorName != "neo" || !post.HasPhoto() {
		t.Fatalf("unexpected post: %+v", post)
	}
	resp, err := http.Get(post.PhotoURL)
	if err != nil {
		t.Fatalf("fetch photo: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(data, pngHeader) {
		t.Fatalf("photo URL served %d unexpected bytes", len(data))
	}

	if err := u.posts.Delete(ctx, post); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if h.emu.Blobs.Exists(post.PhotoPath()) {
		t.Fatal("blob should be deleted with the post")
	}
	if _, ok := h.emu.Store.Get(domain.PostsCollection, post.ID); ok {
		t.Fatal("record should be deleted")
	}
}

func TestGatewayEnforcesOwnership(t *testing.T) {
	h := newHarness(t, emulator.Options{AutoVerify: true})
	neo := h.newUser(t, false)
	neo.signUp(t, h, "neo", "neo@matrix.io")
	smith := h.newUser(t, false)
	smith.signUp(t, h, "smith", "smith@matrix.io")
	ctx := context.Background()

	post, err := neo.posts.Create(ctx, "mine", nil)
	if err != nil {
		t.Fatal(err)
	}

	err = smith.records.DeleteRecord(ctx, domain.PostsCollection, post.ID)
	var ge *domain.GatewayError
	if !errors.As(err, &ge) || ge.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	err = smith.records.UpdateRecord(ctx, domain.PostsCollection, post.ID, map[string]any{domain.FieldBody: "pwned"})
	if !errors.As(err, &ge) || ge.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if _, err := smith.blobs.Upload(ctx, post.PhotoPath(), testPhoto()); !domain.IsGatewayError(err) {
		t.Fatalf("expected blob rejection, got %v", err)
	}
}

func TestGatewayRejectsOversizedBlob(t *testing.T) {
	h := newHarness(t, emulator.Options{AutoVerify: true})
	u := h.newUser(t, false)
	acct := u.signUp(t, h, "neo", "neo@matrix.io")

	big := domain.Photo{ContentType: "image/png", Data: make([]byte, domain.MaxPhotoBytes+512)}
	_, err := u.blobs.Upload(context.Background(), acct.AvatarPath(), big)
	if domain.Describe(err) != "Attach an image smaller than 1MB." {
		t.Fatalf("expected size rejection, got %v", err)
	}
}

func TestBotVerification(t *testing.T) {
	h := newHarness(t, emulator.Options{AutoVerify: true, RequireVerification: true})
	ctx := context.Background()

	plain := h.newUser(t, false)
	err := plain.accounts.Register(ctx, domain.Registration{Name: "neo", Email: "neo@matrix.io", Password: "redpill", ConfirmPassword: "redpill"})
	if domain.Describe(err) != "Verification failed. Try again." {
		t.Fatalf("expected verification rejection, got %v", err)
	}

	u := h.newUser(t, true)
	u.signUp(t, h, "neo", "neo@matrix.io")
	if _, err := u.posts.Create(ctx, "verified post", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestProfileRenameAndAvatar(t *testing.T) {
	h := newHarness(t, emulator.Options{AutoVerify: true})
	u := h.newUser(t, false)
	u.signUp(t, h, "neo", "neo@matrix.io")
	profile := app.NewProfileController(u.auth, u.blobs)
	ctx := context.Background()

	acct, err := profile.RenameDisplayName(ctx, "N")
	if err != nil || acct.DisplayName != "N" {
		t.Fatalf("rename: %+v %v", acct, err)
	}
	acct, err = profile.ChangeAvatar(ctx, testPhoto())
	if err != nil || acct.AvatarURL == "" {
		t.Fatalf("avatar: %+v %v", acct, err)
	}
	if !h.emu.Blobs.Exists("avatars/" + acct.ID) {
		t.Fatal("avatar stored at the wrong location")
	}
	if current, _ := u.auth.Current(); current.AvatarURL != acct.AvatarURL {
		t.Fatal("session must carry the new avatar")
	}
}

func TestPasswordReset(t *testing.T) {
	h := newHarness(t, emulator.Options{AutoVerify: true})
	u := h.newUser(t, false)
	u.signUp(t, h, "neo", "neo@matrix.io")

	if err := u.accounts.SendPasswordReset(context.Background(), "neo@matrix.io"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	found := false
	for _, m := range h.emu.Accounts.Outbox() {
		found = found || m.Kind == "reset"
	}
	if !found {
		t.Fatal("expected reset mail")
	}
}

func waitSnapshot(t *testing.T, ch <-chan domain.FeedSnapshot, match func(domain.FeedSnapshot) bool) domain.FeedSnapshot {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snap := <-ch:
			if match(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestScopedSubscriptionNeverYieldsForeignPosts(t *testing.T) {
	h := newHarness(t, emulator.Options{AutoVerify: true})
	neo := h.newUser(t, false)
	neoAcct := neo.signUp(t, h, "neo", "neo@matrix.io")
	smith := h.newUser(t, false)
	smith.signUp(t, h, "smith", "smith@matrix.io")
	ctx := context.Background()

	feed := app.NewFeedSubscriber(neo.records)
	snaps := make(chan domain.FeedSnapshot, 64)
	if err := feed.Open(ctx, domain.ByAuthor(neoAcct.ID), func(s domain.FeedSnapshot) { snaps <- s }); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer feed.Close()

	if _, err := smith.posts.Create(ctx, "foreign", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := neo.posts.Create(ctx, "own", nil); err != nil {
		t.Fatal(err)
	}

	var seen []domain.FeedSnapshot
	snap := waitSnapshot(t, snaps, func(s domain.FeedSnapshot) bool {
		seen = append(seen, s)
		return len(s.Posts) == 1
	})
	if snap.Posts[0].Body != "own" {
		t.Fatalf("unexpected post %+v", snap.Posts[0])
	}
	for _, s := range seen {
		for _, p := range s.Posts {
			if p.AuthorID != neoAcct.ID {
				t.Fatalf("foreign post %s leaked into scoped feed", p.ID)
			}
		}
	}
	feed.Close()
	for {
		select {
		case s := <-snaps:
			for _, p := range s.Posts {
				if p.AuthorID != neoAcct.ID {
					t.Fatalf("foreign post %s leaked into scoped feed", p.ID)
				}
			}
		default:
			return
		}
	}
}

func TestGlobalSubscriptionSeesEditsAndDeletes(t *testing.T) {
	h := newHarness(t, emulator.Options{AutoVerify: true})
	u := h.newUser(t, false)
	u.signUp(t, h, "neo", "neo@matrix.io")
	ctx := context.Background()

	feed := app.NewFeedSubscriber(u.records)
	snaps := make(chan domain.FeedSnapshot, 64)
	if err := feed.Open(ctx, domain.Global, func(s domain.FeedSnapshot) { snaps <- s }); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer feed.Close()

	post, err := u.posts.Create(ctx, "first", nil)
	if err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, snaps, func(s domain.FeedSnapshot) bool { return len(s.Posts) == 1 && s.Posts[0].Body == "first" })

	if _, err := u.posts.Edit(ctx, post, "second"); err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, snaps, func(s domain.FeedSnapshot) bool { return len(s.Posts) == 1 && s.Posts[0].Body == "second" })

	if err := u.posts.Delete(ctx, post); err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, snaps, func(s domain.FeedSnapshot) bool { return len(s.Posts) == 0 })

	snap, err := feed.Fetch(ctx, domain.Global)
	if err != nil || len(snap.Posts) != 0 {
		t.Fatalf("fetch: %+v %v", snap, err)
	}
}

func TestSubscribeFailsWhenGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	records := gateway.NewRecordStore(gateway.NewClient(url))
	if _, err := records.Subscribe(context.Background(), domain.FeedQuery(domain.Global), func([]domain.Record, error) {}); err == nil {
		t.Fatal("expected dial error")
	}
}
