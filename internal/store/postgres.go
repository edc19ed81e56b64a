// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and token queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MGallo-Code/famfit/internal/oauth"
)

// The store used by program to connect with Postgres db
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a verified connection pool to PostgreSQL wrapped in a store.
// Call once at startup from main.go; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	// Create a pool w/ database url, return if err
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Ping db to make sure connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings the database.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveToken upserts the token row for identity. The row id is a UUID v7 assigned on
// first insert and kept on update.
func (s *PostgresStore) SaveToken(ctx context.Context, identity string, rec oauth.TokenRecord) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating token row id: %w", err)
	}

	// NULL when the provider sent no expiry
	var expiresAt *time.Time
	if !rec.Expiry.IsZero() {
		expiresAt = &rec.Expiry
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO provider_tokens (id, name, token, refresh_token, token_type, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			token = EXCLUDED.token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`,
		id, identity, rec.AccessToken, rec.RefreshToken, rec.TokenType, rec.Scope, expiresAt)
	if err != nil {
		return fmt.Errorf("saving token for %s: %w", identity, err)
	}
	return nil
}

// GetToken loads the token row for identity. Returns oauth.ErrTokenNotFound when missing.
func (s *PostgresStore) GetToken(ctx context.Context, identity string) (*oauth.TokenRecord, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	var (
		rec       oauth.TokenRecord
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT token, refresh_token, token_type, scope, expires_at
		FROM provider_tokens WHERE name = $1`,
		identity,
	).Scan(&rec.AccessToken, &rec.RefreshToken, &rec.TokenType, &rec.Scope, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oauth.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching token for %s: %w", identity, err)
	}
	if expiresAt != nil {
		rec.Expiry = *expiresAt
	}
	rec.UserID = identity
	return &rec, nil
}

// DeleteToken removes the token row for identity. Missing rows are not an error.
func (s *PostgresStore) DeleteToken(ctx context.Context, identity string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM provider_tokens WHERE name = $1", identity); err != nil {
		return fmt.Errorf("deleting token for %s: %w", identity, err)
	}
	return nil
}
