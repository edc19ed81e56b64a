// models.go -- Shared types and sentinels for the store package.
// Pending logins live in Redis (or memory); token records live in Postgres, SQLite or files.
package store

import (
	"errors"
	"time"
)

// ErrPendingNotFound is returned by TakePending when no login attempt exists for the id,
// either because it was never created, already consumed, or expired.
var ErrPendingNotFound = errors.New("pending login not found")

// ErrInvalidIdentity is returned by token stores when an identity is empty or not a safe key.
var ErrInvalidIdentity = errors.New("invalid identity")

// PendingLogin is the server-side half of one login attempt, keyed by the attempt ID
// carried in the signed login cookie. Single use: TakePending deletes it.
type PendingLogin struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Verifier  string    `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
}
