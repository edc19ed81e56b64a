// file.go -- JSON-file token store: one file per identity under a directory.
//
// tokens/<identity>.json holds the token record plus the provider's full token response
// under "extra". Writes go to a temp file in
// the same directory and are renamed into place, so readers never see a partial file.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/MGallo-Code/famfit/internal/oauth"
)

// FileStore persists token records as JSON files. Safe for concurrent use within one process.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating token dir: %w", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) lock(identity string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.locks[identity]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[identity] = mu
	}
	return mu
}

func (s *FileStore) path(identity string) string {
	return filepath.Join(s.dir, identity+".json")
}

// SaveToken overwrites the file for identity with rec.
func (s *FileStore) SaveToken(_ context.Context, identity string, rec oauth.TokenRecord) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}

	mu := s.lock(identity)
	mu.Lock()
	defer mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, identity+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	// Remove is a no-op once the rename succeeded
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(identity)); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// GetToken reads the file for identity. Returns oauth.ErrTokenNotFound if there is none.
func (s *FileStore) GetToken(_ context.Context, identity string) (*oauth.TokenRecord, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(identity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, oauth.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var rec oauth.TokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", identity, err)
	}
	return &rec, nil
}

// CheckHealth verifies the token directory is still there.
func (s *FileStore) CheckHealth(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// validateIdentity accepts 1-128 characters from [A-Za-z0-9._-], excluding "." and "..".
// Provider user ids (e.g. Fitbit's "ABC123") fit comfortably.
func validateIdentity(identity string) error {
	if identity == "" || len(identity) > 128 || identity == "." || identity == ".." {
		return ErrInvalidIdentity
	}
	for _, c := range identity {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
		default:
			return ErrInvalidIdentity
		}
	}
	return nil
}
