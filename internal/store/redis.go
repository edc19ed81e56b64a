// redis.go -- go-redis client and pending login store.
//
// Each login attempt is one key with TTL equal to the login lifetime. TakePending uses
// GETDEL so an attempt can be completed at most once, even across instances.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingKeyPrefix namespaces pending login keys.
const pendingKeyPrefix = "famfit:pending:"

// NewRedisClient connects to Redis and verifies the connection with a ping.
// Call once at startup from main.go; the returned client is safe for concurrent use.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	// Parse redisURL to get option values, if err return it
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)

	// Try and ping to make sure the client actually works
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// RedisStore keeps pending logins in Redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client. Closing the client is the caller's job.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func pendingKey(id string) string {
	return pendingKeyPrefix + id
}

// SavePending stores p under its ID for ttl.
func (s *RedisStore) SavePending(ctx context.Context, p PendingLogin, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling pending login: %w", err)
	}
	if err := s.rdb.Set(ctx, pendingKey(p.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("saving pending login: %w", err)
	}
	return nil
}

// TakePending atomically reads and deletes the pending login for id.
// Returns ErrPendingNotFound on a miss.
func (s *RedisStore) TakePending(ctx context.Context, id string) (*PendingLogin, error) {
	raw, err := s.rdb.GetDel(ctx, pendingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taking pending login: %w", err)
	}

	var p PendingLogin
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing pending login: %w", err)
	}
	return &p, nil
}

// CheckHealth pings Redis.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
