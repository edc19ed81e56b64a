// stores.go
//
// Shared mock implementations of auth.PendingStore and oauth.TokenStore.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/MGallo-Code/famfit/internal/oauth"
	"github.com/MGallo-Code/famfit/internal/store"
)

// MockPendingStore implements auth.PendingStore for tests.
// Stateful, like a real store. Use *Err fields to inject errors for specific operations.
type MockPendingStore struct {
	// Error injection...zero value means no error
	SaveErr   error
	TakeErr   error
	HealthErr error

	Logins map[string]store.PendingLogin // keyed by attempt id
	TTLs   map[string]time.Duration

	mu sync.Mutex
}

// NewMockPendingStore returns an empty MockPendingStore.
func NewMockPendingStore() *MockPendingStore {
	return &MockPendingStore{
		Logins: make(map[string]store.PendingLogin),
		TTLs:   make(map[string]time.Duration),
	}
}

func (m *MockPendingStore) SavePending(_ context.Context, p store.PendingLogin, ttl time.Duration) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Logins == nil {
		m.Logins = make(map[string]store.PendingLogin)
		m.TTLs = make(map[string]time.Duration)
	}
	m.Logins[p.ID] = p
	m.TTLs[p.ID] = ttl
	return nil
}

func (m *MockPendingStore) TakePending(_ context.Context, id string) (*store.PendingLogin, error) {
	if m.TakeErr != nil {
		return nil, m.TakeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Logins[id]
	if !ok {
		return nil, store.ErrPendingNotFound
	}
	delete(m.Logins, id)
	return &p, nil
}

func (m *MockPendingStore) CheckHealth(context.Context) error {
	return m.HealthErr
}

// Only returns the single stored login, or nil if there are zero or several.
func (m *MockPendingStore) Only() *store.PendingLogin {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Logins) != 1 {
		return nil
	}
	for _, p := range m.Logins {
		return &p
	}
	return nil
}

// MockTokenStore implements oauth.TokenStore (and auth.HealthChecker) for tests.
type MockTokenStore struct {
	SaveErr   error
	GetErr    error
	HealthErr error

	Tokens map[string]oauth.TokenRecord // keyed by identity
	Saves  int

	mu sync.Mutex
}

// NewMockTokenStore returns an empty MockTokenStore.
func NewMockTokenStore() *MockTokenStore {
	return &MockTokenStore{Tokens: make(map[string]oauth.TokenRecord)}
}

func (m *MockTokenStore) SaveToken(_ context.Context, identity string, rec oauth.TokenRecord) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Tokens == nil {
		m.Tokens = make(map[string]oauth.TokenRecord)
	}
	m.Tokens[identity] = rec
	m.Saves++
	return nil
}

func (m *MockTokenStore) GetToken(_ context.Context, identity string) (*oauth.TokenRecord, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Tokens[identity]
	if !ok {
		return nil, oauth.ErrTokenNotFound
	}
	return &rec, nil
}

func (m *MockTokenStore) CheckHealth(context.Context) error {
	return m.HealthErr
}
