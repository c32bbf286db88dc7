package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CrestNiraj12/nwitter/app"
	"github.com/CrestNiraj12/nwitter/domain"
	"github.com/CrestNiraj12/nwitter/tui/common"
)

// Subscriber opens the live query behind a feed view.
type Subscriber interface {
	Open(ctx context.Context, scope domain.Scope, fn func(domain.FeedSnapshot)) error
	Close()
}

// Posts is the post surface the feed acts on.
type Posts interface {
	Delete(ctx context.Context, post domain.Post) error
	ReplacePhoto(ctx context.Context, post domain.Post, photo domain.Photo) (domain.Post, error)
	RemovePhoto(ctx context.Context, post domain.Post) (domain.Post, error)
}

// snapshotBuffer bounds pushes queued between the gateway reader and the
// Bubble Tea loop. A full buffer blocks the reader; pushes are never dropped.
const snapshotBuffer = 64

var nextFeedID atomic.Uint64

// --- Messages ---

// snapshotMsg delivers one push from a live query.
type snapshotMsg struct {
	feed     uint64
	seq      int
	snapshot domain.FeedSnapshot
}

type subscribeErrMsg struct {
	feed uint64
	seq  int
	err  error
}

type opResultMsg struct {
	feed uint64
	done string // Status shown on success.
	err  error
}

// EditPostMsg asks the root to open the composer for an own post.
type EditPostMsg struct {
	Post      domain.Post
	UseInline bool
}

// stream carries snapshots from the subscription callback into the update
// loop, in emission order.
type stream struct {
	ch   chan domain.FeedSnapshot
	done chan struct{}
	once sync.Once
}

func newStream() *stream {
	return &stream{ch: make(chan domain.FeedSnapshot, snapshotBuffer), done: make(chan struct{})}
}

func (s *stream) push(snap domain.FeedSnapshot) {
	select {
	case s.ch <- snap:
	case <-s.done:
	}
}

func (s *stream) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *stream) next(feed uint64, seq int) tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-s.ch:
			return snapshotMsg{feed: feed, seq: seq, snapshot: snap}
		case <-s.done:
			return nil
		}
	}
}

// --- Model ---

// Model holds the state for a live feed, global or scoped to one author.
type Model struct {
	id      uint64
	sub     Subscriber
	posts   Posts
	session app.Session
	scope   domain.Scope
	title   string
	keys    common.KeyMap
	now     func() time.Time

	seq    int // Current subscription; older pushes are ignored.
	stream *stream

	items   []domain.Post
	cursor  int
	start   int
	loading bool
	err     error

	busy          bool // A delete or photo operation is in flight.
	confirmDelete bool
	photoPrompt   bool
	photoInput    textinput.Model
	status        string
	statusErr     bool
	showHints     bool

	spinner spinner.Model
	width   int
	height  int
}

// New creates a feed over scope. Nothing is subscribed until Open.
func New(sub Subscriber, posts Posts, session app.Session, scope domain.Scope, title string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#1D9BF0"))

	in := textinput.New()
	in.Placeholder = "path to an image (max 1MB)"
	in.Width = 50

	return Model{
		id:         nextFeedID.Add(1),
		sub:        sub,
		posts:      posts,
		session:    session,
		scope:      scope,
		title:      title,
		keys:       common.DefaultKeyMap(),
		now:        time.Now,
		photoInput: in,
		spinner:    s,
	}
}

// Open (re)subscribes. Pushes from any earlier subscription are dropped.
func (m *Model) Open() tea.Cmd {
	if m.stream != nil {
		m.stream.stop()
	}
	m.seq++
	m.stream = newStream()
	m.loading = true
	m.err = nil

	sub, scope, st := m.sub, m.scope, m.stream
	feed, seq := m.id, m.seq
	open := func() tea.Msg {
		if err := sub.Open(context.Background(), scope, st.push); err != nil {
			st.stop()
			return subscribeErrMsg{feed: feed, seq: seq, err: err}
		}
		return nil
	}
	return tea.Batch(open, st.next(feed, seq), m.spinner.Tick)
}

// Close tears the subscription down. Safe to call more than once.
func (m *Model) Close() {
	m.sub.Close()
	if m.stream != nil {
		m.stream.stop()
	}
}

// Scope returns the feed's scope.
func (m Model) Scope() domain.Scope {
	return m.scope
}

// Posts returns the current snapshot.
func (m Model) Posts() []domain.Post {
	return m.items
}

// Loading reports whether the first snapshot is still pending.
func (m Model) Loading() bool {
	return m.loading
}

// Err returns the last subscription error, if any.
func (m Model) Err() error {
	return m.err
}

// Capturing reports whether keys go to an inline prompt.
func (m Model) Capturing() bool {
	return m.photoPrompt || m.confirmDelete
}

// SetStatus shows a transient message under the feed.
func (m *Model) SetStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

// Selected returns the highlighted post, if any.
func (m Model) Selected() (domain.Post, bool) {
	if len(m.items) == 0 {
		return domain.Post{}, false
	}
	return m.items[m.cursor], true
}

func (m Model) ownsSelected() (domain.Post, bool) {
	p, ok := m.Selected()
	if !ok {
		return domain.Post{}, false
	}
	acct, signedIn := m.session.Current()
	return p, signedIn && p.OwnedBy(acct.ID)
}

func (m Model) isOwn(p domain.Post) bool {
	acct, ok := m.session.Current()
	return ok && p.OwnedBy(acct.ID)
}

// apply replaces the snapshot wholesale, keeping the cursor on the same post
// when it is still present.
func (m *Model) apply(snap domain.FeedSnapshot) {
	m.loading = false
	if snap.Err != nil {
		m.err = snap.Err
		return
	}
	m.err = nil

	selected := ""
	if p, ok := m.Selected(); ok {
		selected = p.ID
	}
	m.items = snap.Posts
	m.cursor = 0
	found := false
	for i, p := range m.items {
		if p.ID == selected {
			m.cursor = i
			found = true
			break
		}
	}
	if !found {
		// The post a prompt was about is gone.
		m.confirmDelete = false
		m.photoPrompt = false
		m.photoInput.Blur()
	}
	m.ensureCursorVisible()
}
