// errors.go -- Error kinds surfaced by the login flow.
//
// Every failure ends the attempt; none of these are retried here. Callers branch with
// errors.Is / errors.As.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrInvalidState is returned when the callback state does not match the pending attempt.
// The authorization code is discarded without reaching the token endpoint.
var ErrInvalidState = errors.New("invalid state value")

// ErrMissingCode is returned when a callback passes state validation but carries no code.
var ErrMissingCode = errors.New("missing authorization code")

// ErrNoRefreshToken is returned by Refresh when the record has no refresh token.
var ErrNoRefreshToken = errors.New("no refresh token available")

// ErrTokenNotFound is returned by a TokenStore when no record exists for an identity.
var ErrTokenNotFound = errors.New("token not found")

// ErrNoTokenStore is returned by FetchForIdentity when the flow has no TokenStore.
var ErrNoTokenStore = errors.New("token store not configured")

// maxErrorBody caps how much of an upstream body is echoed in Error() strings.
const maxErrorBody = 512

// TokenExchangeError means the token endpoint rejected the grant or returned a body
// without an access_token. StatusCode is 0 when no response was received.
type TokenExchangeError struct {
	StatusCode int
	Body       string
	Code       string // OAuth "error" field, when the provider sent one
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed: status %d: %s", e.StatusCode, truncate(e.Body))
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// UnauthorizedError means the resource endpoint rejected the bearer token (401/403).
// Kept apart from UpstreamError so a caller can decide whether to refresh.
type UnauthorizedError struct {
	StatusCode int
	Body       string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("resource endpoint rejected access token: status %d: %s", e.StatusCode, truncate(e.Body))
}

// UpstreamError is any other non-2xx response from the provider.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d: %s", e.StatusCode, truncate(e.Body))
}

// TimeoutError means an outbound call exceeded the configured bound.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("%s timed out: %v", e.Op, e.Err) }

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout lets TimeoutError satisfy net.Error-style checks.
func (e *TimeoutError) Timeout() bool { return true }

// isTimeout reports whether err came from a context deadline or a transport timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
