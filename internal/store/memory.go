// memory.go -- In-process pending login store for single-instance deployments and tests.
package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	login     PendingLogin
	expiresAt time.Time
}

// MemoryStore keeps pending logins in a map with per-entry expiry.
// Expired entries are dropped on read and by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// SavePending stores p under its ID for ttl.
func (s *MemoryStore) SavePending(_ context.Context, p PendingLogin, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.ID] = memoryEntry{login: p, expiresAt: s.now().Add(ttl)}
	return nil
}

// TakePending returns and removes the pending login for id.
func (s *MemoryStore) TakePending(_ context.Context, id string) (*PendingLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrPendingNotFound
	}
	delete(s.entries, id)
	if !s.now().Before(e.expiresAt) {
		return nil, ErrPendingNotFound
	}
	p := e.login
	return &p, nil
}

// Sweep removes expired entries and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CheckHealth always succeeds.
func (s *MemoryStore) CheckHealth(context.Context) error {
	return nil
}
