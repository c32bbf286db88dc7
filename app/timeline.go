package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/domain"
)

// FeedSubscriber keeps at most one live feed query open on behalf of a view.
// Every push replaces the view's snapshot wholesale.
type FeedSubscriber struct {
	store DocumentStore

	mu     sync.Mutex
	gen    uint64 // Bumped on every open/close; stale pushes are dropped.
	cancel func()
	scope  domain.Scope
}

// NewFeedSubscriber creates a subscriber over the document store.
func NewFeedSubscriber(store DocumentStore) *FeedSubscriber {
	return &FeedSubscriber{store: store}
}

// Open subscribes to scope, closing any previous subscription first. fn is
// called with the full ordered window on every push, in emission order.
func (f *FeedSubscriber) Open(ctx context.Context, scope domain.Scope, fn func(domain.FeedSnapshot)) error {
	f.mu.Lock()
	prev := f.detachLocked()
	f.gen++
	gen := f.gen
	f.mu.Unlock()
	if prev != nil {
		prev()
	}

	cancel, err := f.store.Subscribe(ctx, domain.FeedQuery(scope), func(records []domain.Record, err error) {
		if !f.live(gen) {
			glog.V(2).Infof("feed: dropping push for closed subscription %s", scope.Key())
			return
		}
		if err != nil {
			glog.Errorf("feed: push error for %s: %v", scope.Key(), err)
			fn(domain.FeedSnapshot{Scope: scope, Err: err})
			return
		}
		fn(snapshotFrom(scope, records))
	})
	if err != nil {
		return fmt.Errorf("subscribing to feed: %w", err)
	}

	f.mu.Lock()
	if f.gen != gen {
		// Closed or reopened while we were subscribing.
		f.mu.Unlock()
		cancel()
		return nil
	}
	f.cancel = cancel
	f.scope = scope
	f.mu.Unlock()
	glog.V(1).Infof("feed: subscribed to %s", scope.Key())
	return nil
}

// Close tears down the active subscription. Safe to call repeatedly and on a
// subscriber that was never opened.
func (f *FeedSubscriber) Close() {
	f.mu.Lock()
	cancel := f.detachLocked()
	// An Open still dialing sees the new generation and cancels itself.
	f.gen++
	f.mu.Unlock()
	if cancel != nil {
		cancel()
		glog.V(1).Infof("feed: closed subscription")
	}
}

// Active reports whether a subscription is open, and for which scope.
func (f *FeedSubscriber) Active() (domain.Scope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scope, f.cancel != nil
}

// Fetch runs a one-shot read of the scope's window.
func (f *FeedSubscriber) Fetch(ctx context.Context, scope domain.Scope) (domain.FeedSnapshot, error) {
	records, err := f.store.Query(ctx, domain.FeedQuery(scope))
	if err != nil {
		return domain.FeedSnapshot{Scope: scope}, fmt.Errorf("fetching feed: %w", err)
	}
	return snapshotFrom(scope, records), nil
}

func (f *FeedSubscriber) live(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen == gen
}

func (f *FeedSubscriber) detachLocked() func() {
	cancel := f.cancel
	f.cancel = nil
	f.scope = domain.Scope{}
	return cancel
}

// snapshotFrom converts a pushed window into an ordered, bounded snapshot.
// Malformed records and records outside the scope are dropped.
func snapshotFrom(scope domain.Scope, records []domain.Record) domain.FeedSnapshot {
	posts := make([]domain.Post, 0, len(records))
	for _, r := range records {
		p, err := domain.PostFromRecord(r)
		if err != nil {
			glog.Warningf("feed: skipping record: %v", err)
			continue
		}
		if !scope.Admits(p) {
			glog.Warningf("feed: record %s outside scope %s", p.ID, scope.Key())
			continue
		}
		posts = append(posts, p)
	}
	domain.SortPosts(posts)
	if len(posts) > domain.FeedPageSize {
		posts = posts[:domain.FeedPageSize]
	}
	glog.V(2).Infof("feed: snapshot %s with %d posts", scope.Key(), len(posts))
	return domain.FeedSnapshot{Scope: scope, Posts: posts}
}
