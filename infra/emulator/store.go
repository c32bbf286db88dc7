package emulator

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/CrestNiraj12/nwitter/domain"
)

// ListenerBufferSize bounds the windows queued for a slow listener. Every
// window is complete, so when the buffer is full the oldest is dropped.
const ListenerBufferSize = 16

// Store is an in-memory document store with live queries.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	listeners   map[*Listener]struct{}
}

func NewStore() *Store {
	return &Store{
		collections: map[string]map[string]map[string]any{},
		listeners:   map[*Listener]struct{}{},
	}
}

// Listener receives the full window of its query after every change to the
// collection.
type Listener struct {
	store *Store
	query domain.Query
	c     chan []domain.Record
	once  sync.Once
}

// C delivers windows in emission order. It is closed by Close.
func (l *Listener) C() <-chan []domain.Record { return l.c }

// Close detaches the listener. Safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() {
		l.store.mu.Lock()
		delete(l.store.listeners, l)
		close(l.c)
		l.store.mu.Unlock()
	})
}

// Add inserts a record under a new time-ordered id.
func (s *Store) Add(collection string, fields map[string]any) (string, error) {
	clean, err := normalize(fields)
	if err != nil {
		return "", err
	}
	id := ulid.Make().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = map[string]map[string]any{}
		s.collections[collection] = coll
	}
	for k, v := range clean {
		if v == nil {
			delete(clean, k)
		}
	}
	coll[id] = clean
	s.notifyLocked(collection)
	return id, nil
}

// Update merges fields into an existing record; nil deletes a field.
func (s *Store) Update(collection, id string, fields map[string]any) error {
	clean, err := normalize(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range clean {
		if v == nil {
			delete(rec, k)
			continue
		}
		rec[k] = v
	}
	s.notifyLocked(collection)
	return nil
}

func (s *Store) Delete(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	s.notifyLocked(collection)
	return nil
}

// Get returns a copy of one record.
func (s *Store) Get(collection, id string) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections[collection][id]
	if !ok {
		return domain.Record{}, false
	}
	return domain.Record{ID: id, Fields: copyFields(rec)}, true
}

// Query evaluates q against the current state.
func (s *Store) Query(q domain.Query) []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowLocked(q)
}

// Listen registers a live query. The current window is queued immediately.
func (s *Store) Listen(q domain.Query) *Listener {
	l := &Listener{store: s, query: q, c: make(chan []domain.Record, ListenerBufferSize)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[l] = struct{}{}
	l.c <- s.windowLocked(q)
	return l
}

func (s *Store) notifyLocked(collection string) {
	for l := range s.listeners {
		if l.query.Collection != collection {
			continue
		}
		window := s.windowLocked(l.query)
		select {
		case l.c <- window:
		default:
			select {
			case <-l.c:
			default:
			}
			select {
			case l.c <- window:
			default:
			}
			glog.V(2).Infof("emulator: listener on %s lagging, dropped a window", collection)
		}
	}
}

func (s *Store) windowLocked(q domain.Query) []domain.Record {
	out := []domain.Record{}
	for id, rec := range s.collections[q.Collection] {
		if q.WhereField != "" {
			v, _ := rec[q.WhereField].(string)
			if v != q.WhereEquals {
				continue
			}
		}
		out = append(out, domain.Record{ID: id, Fields: copyFields(rec)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != "" {
			a, b := orderKey(out[i].Fields[q.OrderBy]), orderKey(out[j].Fields[q.OrderBy])
			if a != b {
				if q.Descending {
					return a > b
				}
				return a < b
			}
		}
		if q.Descending {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// orderKey supports the numeric ordering fields used by feeds.
func orderKey(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// normalize converts json.Number values so stored records hold plain numbers.
func normalize(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if n, ok := v.(json.Number); ok {
			i, err := n.Int64()
			if err != nil {
				f, ferr := n.Float64()
				if ferr != nil {
					return nil, fmt.Errorf("field %q: %w", k, ferr)
				}
				out[k] = f
				continue
			}
			out[k] = i
			continue
		}
		out[k] = v
	}
	return out, nil
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
