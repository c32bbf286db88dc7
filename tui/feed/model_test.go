package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/CrestNiraj12/nwitter/domain"
)

type stubSubscriber struct {
	scopes []domain.Scope
	fn     func(domain.FeedSnapshot)
	closed int
	err    error
}

func (s *stubSubscriber) Open(_ context.Context, scope domain.Scope, fn func(domain.FeedSnapshot)) error {
	s.scopes = append(s.scopes, scope)
	s.fn = fn
	return s.err
}

func (s *stubSubscriber) Close() { s.closed++ }

type stubPosts struct {
	deleted  []string
	replaced []string
	removed  []string
	err      error
}

func (s *stubPosts) Delete(_ context.Context, p domain.Post) error {
	s.deleted = append(s.deleted, p.ID)
	return s.err
}

func (s *stubPosts) ReplacePhoto(_ context.Context, p domain.Post, _ domain.Photo) (domain.Post, error) {
	s.replaced = append(s.replaced, p.ID)
	return p, s.err
}

func (s *stubPosts) RemovePhoto(_ context.Context, p domain.Post) (domain.Post, error) {
	s.removed = append(s.removed, p.ID)
	p.PhotoURL = ""
	return p, s.err
}

type stubSession struct {
	acct domain.Account
}

func (s stubSession) Current() (domain.Account, bool) {
	return s.acct, s.acct.ID != ""
}

func makePost(id, author string, age time.Duration) domain.Post {
	return domain.Post{
		ID:         id,
		AuthorID:   author,
		AuthorName: "name-" + author,
		Body:       "hello from " + author,
		CreatedAt:  time.Now().Add(-age),
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// openWith subscribes m and delivers snapshot as the first push.
func openWith(t *testing.T, m Model, sub *stubSubscriber, posts ...domain.Post) Model {
	t.Helper()
	cmd := m.Open()
	batch, ok := cmd().(tea.BatchMsg)
	if !ok || len(batch) < 2 {
		t.Fatalf("expected open batch, got %T", cmd())
	}
	if msg := batch[0](); msg != nil {
		t.Fatalf("unexpected open result %v", msg)
	}
	sub.fn(domain.FeedSnapshot{Scope: m.scope, Posts: posts})
	m, _ = m.Update(batch[1]())
	return m
}

func runOp(t *testing.T, cmd tea.Cmd) opResultMsg {
	t.Helper()
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected batch")
	}
	for _, c := range batch {
		if res, ok := c().(opResultMsg); ok {
			return res
		}
	}
	t.Fatalf("no op result")
	return opResultMsg{}
}

func newFeed(sub *stubSubscriber, posts *stubPosts, me string) Model {
	return New(sub, posts, stubSession{acct: domain.Account{ID: me}}, domain.Global, "Timeline")
}

func TestOpen_AppliesSnapshotsInOrder(t *testing.T) {
	sub := &stubSubscriber{}
	m := openWith(t, newFeed(sub, &stubPosts{}, "u1"), sub, makePost("p2", "u1", time.Minute), makePost("p1", "u2", time.Hour))
	if m.Loading() || len(m.Posts()) != 2 {
		t.Fatalf("expected first snapshot applied, got %d posts", len(m.Posts()))
	}

	m, _ = m.Update(keyMsg("down"))
	if p, _ := m.Selected(); p.ID != "p1" {
		t.Fatalf("expected p1 selected")
	}

	// A newer post arrives on top; the cursor stays on p1.
	sub.fn(domain.FeedSnapshot{Posts: []domain.Post{makePost("p3", "u2", 0), makePost("p2", "u1", time.Minute), makePost("p1", "u2", time.Hour)}})
	sub.fn(domain.FeedSnapshot{Posts: []domain.Post{makePost("p3", "u2", 0), makePost("p1", "u2", time.Hour)}})
	m, _ = m.Update(m.stream.next(m.id, m.seq)())
	if len(m.Posts()) != 3 {
		t.Fatalf("expected pushes applied in order, got %d posts", len(m.Posts()))
	}
	m, _ = m.Update(m.stream.next(m.id, m.seq)())
	if len(m.Posts()) != 2 {
		t.Fatalf("expected second push applied, got %d posts", len(m.Posts()))
	}
	if p, _ := m.Selected(); p.ID != "p1" {
		t.Fatalf("cursor should follow p1, got %s", p.ID)
	}
}

func TestSnapshotFromOldSubscriptionIsIgnored(t *testing.T) {
	sub := &stubSubscriber{}
	m := openWith(t, newFeed(sub, &stubPosts{}, "u1"), sub, makePost("p1", "u1", 0))
	stale := snapshotMsg{feed: m.id, seq: m.seq - 1, snapshot: domain.FeedSnapshot{}}
	m, cmd := m.Update(stale)
	if cmd != nil || len(m.Posts()) != 1 {
		t.Fatalf("stale snapshot must be dropped")
	}
	other := snapshotMsg{feed: m.id + 1000, seq: m.seq}
	if m, _ = m.Update(other); len(m.Posts()) != 1 {
		t.Fatalf("snapshot of another feed must be dropped")
	}
}

func TestPushErrorIsShownAndPostsKept(t *testing.T) {
	sub := &stubSubscriber{}
	m := openWith(t, newFeed(sub, &stubPosts{}, "u1"), sub, makePost("p1", "u1", 0))
	sub.fn(domain.FeedSnapshot{Err: &domain.GatewayError{Op: "listen", Message: "Permission denied."}})
	m, _ = m.Update(m.stream.next(m.id, m.seq)())
	if m.Err() == nil || len(m.Posts()) != 1 {
		t.Fatalf("expected error with posts kept")
	}
	if !strings.Contains(m.View(), "Permission denied.") {
		t.Fatalf("error should be rendered")
	}
}

func TestSubscribeFailure(t *testing.T) {
	sub := &stubSubscriber{err: errors.New("dial refused")}
	m := newFeed(sub, &stubPosts{}, "u1")
	cmd := m.Open()
	batch := cmd().(tea.BatchMsg)
	m, _ = m.Update(batch[0]())
	if m.Loading() || m.Err() == nil {
		t.Fatalf("expected subscribe error")
	}
	if msg := batch[1](); msg != nil {
		t.Fatalf("stream of a failed subscription must end, got %v", msg)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sub := &stubSubscriber{}
	m := openWith(t, newFeed(sub, &stubPosts{}, "u1"), sub)
	m.Close()
	m.Close()
	if sub.closed != 2 {
		t.Fatalf("expected close forwarded, got %d", sub.closed)
	}
	if msg := m.stream.next(m.id, m.seq)(); msg != nil {
		t.Fatalf("closed stream must not deliver")
	}
	sub.fn(domain.FeedSnapshot{}) // Must not block after close.
}

func TestForeignPostHasNoOwnerActions(t *testing.T) {
	sub := &stubSubscriber{}
	posts := &stubPosts{}
	m := openWith(t, newFeed(sub, posts, "u1"), sub, makePost("p1", "u2", 0))

	for _, k := range []string{"e", "E", "x"} {
		if _, cmd := m.Update(keyMsg(k)); cmd != nil {
			t.Fatalf("%q on a foreign post must do nothing", k)
		}
	}
	if m, _ = m.Update(keyMsg("d")); m.confirmDelete {
		t.Fatalf("delete confirmation must not open for a foreign post")
	}
	if m, _ = m.Update(keyMsg("a")); m.photoPrompt {
		t.Fatalf("photo prompt must not open for a foreign post")
	}
}

func TestEditEmitsEditPostMsg(t *testing.T) {
	sub := &stubSubscriber{}
	m := openWith(t, newFeed(sub, &stubPosts{}, "u1"), sub, makePost("p1", "u1", 0))
	_, cmd := m.Update(keyMsg("E"))
	msg, ok := cmd().(EditPostMsg)
	if !ok || msg.Post.ID != "p1" || !msg.UseInline {
		t.Fatalf("unexpected edit msg %+v", msg)
	}
}

func TestDeleteAfterConfirmation(t *testing.T) {
	sub := &stubSubscriber{}
	posts := &stubPosts{}
	m := openWith(t, newFeed(sub, posts, "u1"), sub, makePost("p1", "u1", 0))

	m, _ = m.Update(keyMsg("d"))
	if !m.confirmDelete || !m.Capturing() {
		t.Fatalf("expected delete confirmation")
	}
	m, _ = m.Update(keyMsg("n"))
	if m.confirmDelete || len(posts.deleted) != 0 {
		t.Fatalf("n must cancel without deleting")
	}

	m, _ = m.Update(keyMsg("d"))
	m, cmd := m.Update(keyMsg("y"))
	if !m.busy {
		t.Fatalf("expected busy while deleting")
	}
	if _, again := m.Update(keyMsg("d")); again != nil {
		t.Fatalf("no new operation while busy")
	}
	res := runOp(t, cmd)
	if len(posts.deleted) != 1 || posts.deleted[0] != "p1" {
		t.Fatalf("unexpected deletes %v", posts.deleted)
	}
	m, _ = m.Update(res)
	if m.busy || m.status != "Post deleted." {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestDeleteOrphanedPhotoIsReported(t *testing.T) {
	sub := &stubSubscriber{}
	m := openWith(t, newFeed(sub, &stubPosts{}, "u1"), sub)
	m.busy = true
	m, _ = m.Update(opResultMsg{feed: m.id, err: &domain.PhotoError{PostID: "p1", Orphaned: true, Err: errors.New("503")}})
	if !m.statusErr || m.status != "Post deleted, but its photo could not be removed." {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestPhotoPrompt(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.png")
	if err := os.WriteFile(big, make([]byte, 2<<20), 0o600); err != nil {
		t.Fatal(err)
	}
	small := filepath.Join(dir, "cat.png")
	if err := os.WriteFile(small, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0o600); err != nil {
		t.Fatal(err)
	}

	sub := &stubSubscriber{}
	posts := &stubPosts{}
	m := openWith(t, newFeed(sub, posts, "u1"), sub, makePost("p1", "u1", 0))

	m, _ = m.Update(keyMsg("a"))
	m, _ = m.Update(keyMsg(big))
	m, cmd := m.Update(keyMsg("enter"))
	if cmd != nil || !m.photoPrompt || len(posts.replaced) != 0 {
		t.Fatalf("oversized photo must be rejected locally")
	}
	if m.status != "Attach an image smaller than 1MB." {
		t.Fatalf("unexpected status %q", m.status)
	}

	m.photoInput.SetValue(small)
	m, cmd = m.Update(keyMsg("enter"))
	if m.photoPrompt || !m.busy {
		t.Fatalf("expected upload to start")
	}
	runOp(t, cmd)
	if len(posts.replaced) != 1 {
		t.Fatalf("expected one replace call")
	}
}

func TestRemovePhotoWithoutPhoto(t *testing.T) {
	sub := &stubSubscriber{}
	posts := &stubPosts{}
	m := openWith(t, newFeed(sub, posts, "u1"), sub, makePost("p1", "u1", 0))
	m, cmd := m.Update(keyMsg("x"))
	if cmd != nil || len(posts.removed) != 0 || m.status != "This post has no photo." {
		t.Fatalf("expected local rejection, got %q", m.status)
	}

	withPhoto := makePost("p2", "u1", 0)
	withPhoto.PhotoURL = "https://files.example/p2"
	m = openWith(t, newFeed(sub, posts, "u1"), sub, withPhoto)
	_, cmd = m.Update(keyMsg("x"))
	runOp(t, cmd)
	if len(posts.removed) != 1 {
		t.Fatalf("expected remove call")
	}
}

func TestView(t *testing.T) {
	sub := &stubSubscriber{}
	m := openWith(t, newFeed(sub, &stubPosts{}, "u1"), sub)
	if !strings.Contains(m.View(), "No posts yet") {
		t.Fatalf("expected empty state")
	}
	p := makePost("p1", "u1", 0)
	p.PhotoURL = "https://files.example/p1"
	m = openWith(t, newFeed(sub, &stubPosts{}, "u1"), sub, p)
	out := m.View()
	for _, want := range []string{"name-u1", "(you)", "hello from u1", "https://files.example/p1", "just now"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
}

func TestIsSafeExternalURL(t *testing.T) {
	if !isSafeExternalURL("https://files.example/p1") || isSafeExternalURL("file:///etc/passwd") || isSafeExternalURL("javascript:alert(1)") {
		t.Fatalf("unexpected URL classification")
	}
}
