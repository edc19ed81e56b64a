// pending_test.go -- tests for the pending login stores (memory always, Redis when configured).
package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
)

type pendingStore interface {
	SavePending(ctx context.Context, p PendingLogin, ttl time.Duration) error
	TakePending(ctx context.Context, id string) (*PendingLogin, error)
}

func newPending(t *testing.T) PendingLogin {
	t.Helper()
	id, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("failed to generate UUID: %v", err)
	}
	return PendingLogin{
		ID:        id.String(),
		State:     "state-" + id.String(),
		Verifier:  "verifier-" + id.String(),
		CreatedAt: time.Now().Truncate(time.Second),
	}
}

func runPendingContract(t *testing.T, s pendingStore) {
	ctx := context.Background()

	t.Run("take returns what was saved", func(t *testing.T) {
		p := newPending(t)
		if err := s.SavePending(ctx, p, time.Minute); err != nil {
			t.Fatalf("SavePending failed: %v", err)
		}
		got, err := s.TakePending(ctx, p.ID)
		if err != nil {
			t.Fatalf("TakePending failed: %v", err)
		}
		if got.State != p.State || got.Verifier != p.Verifier {
			t.Errorf("expected %+v, got %+v", p, got)
		}
		if !got.CreatedAt.Equal(p.CreatedAt) {
			t.Errorf("CreatedAt: expected %v, got %v", p.CreatedAt, got.CreatedAt)
		}
	})

	t.Run("take is single use", func(t *testing.T) {
		p := newPending(t)
		s.SavePending(ctx, p, time.Minute)
		if _, err := s.TakePending(ctx, p.ID); err != nil {
			t.Fatalf("first TakePending failed: %v", err)
		}
		if _, err := s.TakePending(ctx, p.ID); !errors.Is(err, ErrPendingNotFound) {
			t.Errorf("second TakePending: expected ErrPendingNotFound, got %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := s.TakePending(ctx, "does-not-exist"); !errors.Is(err, ErrPendingNotFound) {
			t.Errorf("expected ErrPendingNotFound, got %v", err)
		}
	})

	t.Run("concurrent takes succeed once", func(t *testing.T) {
		p := newPending(t)
		s.SavePending(ctx, p, time.Minute)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.TakePending(ctx, p.ID); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if n := wins.Load(); n != 1 {
			t.Errorf("expected exactly one successful take, got %d", n)
		}
	})
}

// --- MemoryStore ---

func TestMemoryStore(t *testing.T) {
	runPendingContract(t, NewMemoryStore())
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	p := newPending(t)
	s.SavePending(ctx, p, 10*time.Minute)
	other := newPending(t)
	s.SavePending(ctx, other, time.Hour)

	now = now.Add(11 * time.Minute)

	t.Run("expired entry is not returned", func(t *testing.T) {
		if _, err := s.TakePending(ctx, p.ID); !errors.Is(err, ErrPendingNotFound) {
			t.Errorf("expected ErrPendingNotFound, got %v", err)
		}
	})

	t.Run("sweep drops only expired entries", func(t *testing.T) {
		expired := newPending(t)
		s.SavePending(ctx, expired, time.Minute)
		now = now.Add(2 * time.Minute)

		if n := s.Sweep(); n != 1 {
			t.Errorf("Sweep: expected 1 removed, got %d", n)
		}
		if s.Len() != 1 {
			t.Errorf("Len: expected 1 remaining, got %d", s.Len())
		}
		if _, err := s.TakePending(ctx, other.ID); err != nil {
			t.Errorf("live entry lost: %v", err)
		}
	})
}

// --- RedisStore ---

func TestRedisStore(t *testing.T) {
	requireRedis(t)
	runPendingContract(t, testRedis)

	t.Run("key expires with ttl", func(t *testing.T) {
		ctx := context.Background()
		p := newPending(t)
		if err := testRedis.SavePending(ctx, p, time.Minute); err != nil {
			t.Fatalf("SavePending failed: %v", err)
		}
		ttl, err := testRedis.rdb.TTL(ctx, pendingKey(p.ID)).Result()
		if err != nil {
			t.Fatalf("TTL failed: %v", err)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Errorf("ttl: expected (0, 1m], got %v", ttl)
		}
		testRedis.rdb.Del(ctx, pendingKey(p.ID))
	})

	t.Run("health check", func(t *testing.T) {
		if err := testRedis.CheckHealth(context.Background()); err != nil {
			t.Errorf("expected healthy, got %v", err)
		}
	})
}
