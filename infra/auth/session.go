package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TokenStore persists the ID token of the signed-in account between runs.
type TokenStore interface {
	// Load returns the stored token, or "" when nobody is signed in.
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileTokenStore keeps the token in a single 0600 file.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a TokenStore backed by the given file path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (f *FileTokenStore) Load() (string, error) {
	token, err := readToken(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading session from %s: %w", f.path, err)
	}
	return token, nil
}

func (f *FileTokenStore) Save(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("refusing to store empty session token")
	}
	return writeToken(f.path, token)
}

func (f *FileTokenStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func writeToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(token)), 0o600)
}
