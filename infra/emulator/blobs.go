package emulator

import (
	"sync"

	"github.com/google/uuid"
)

type blob struct {
	data        []byte
	contentType string
	token       string
}

// Blobs is an in-memory file store. Each write gets a fresh download token,
// so a replaced file is served under a new URL.
type Blobs struct {
	mu      sync.Mutex
	byPath  map[string]*blob
	byToken map[string]string
}

func NewBlobs() *Blobs {
	return &Blobs{byPath: map[string]*blob{}, byToken: map[string]string{}}
}

// Put stores data at path, replacing any previous blob, and returns the ref.
func (b *Blobs) Put(path, contentType string, data []byte) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.byPath[path]; ok {
		delete(b.byToken, old.token)
	}
	nb := &blob{data: append([]byte(nil), data...), contentType: contentType, token: uuid.NewString()}
	b.byPath[path] = nb
	b.byToken[nb.token] = path
	return path
}

// Token returns the download token of the blob at ref.
func (b *Blobs) Token(ref string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	nb, ok := b.byPath[ref]
	if !ok {
		return "", false
	}
	return nb.token, true
}

func (b *Blobs) Delete(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	nb, ok := b.byPath[path]
	if !ok {
		return ErrNotFound
	}
	delete(b.byToken, nb.token)
	delete(b.byPath, path)
	return nil
}

// Open returns the blob behind a download token.
func (b *Blobs) Open(token string) ([]byte, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path, ok := b.byToken[token]
	if !ok {
		return nil, "", false
	}
	nb := b.byPath[path]
	return nb.data, nb.contentType, true
}

// Exists reports whether a blob is stored at path.
func (b *Blobs) Exists(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.byPath[path]
	return ok
}
