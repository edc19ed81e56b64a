// token.go -- Token record produced by the exchange and the store contract that persists it.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// expiryDelta treats a token as expired slightly early so it is not rejected in flight.
const expiryDelta = 30 * time.Second

// TokenRecord is the token material returned by the provider.
// UserID is the provider's user identifier when it sends one (Fitbit does).
// Extra is the provider's full JSON token response, provider-specific fields included.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expires_at,omitzero"`
	Scope        string    `json:"scope,omitempty"`
	UserID       string    `json:"user_id,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Expired reports whether the access token is past (or within expiryDelta of) its expiry.
// A zero Expiry never expires.
func (t TokenRecord) Expired(now time.Time) bool {
	return !t.Expiry.IsZero() && now.After(t.Expiry.Add(-expiryDelta))
}

// TokenStore persists token records per identity. Implementations serialize writes
// for the same identity.
type TokenStore interface {
	SaveToken(ctx context.Context, identity string, rec TokenRecord) error

	// GetToken returns ErrTokenNotFound when nothing is stored for identity.
	GetToken(ctx context.Context, identity string) (*TokenRecord, error)
}

// recordFromToken maps t onto a TokenRecord. raw is the token endpoint's body; it fills
// Extra when it is a JSON object and is ignored otherwise.
func recordFromToken(t *oauth2.Token, raw []byte) *TokenRecord {
	var extra map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &extra); err != nil {
			extra = nil
		}
	}
	return &TokenRecord{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
		Scope:        extraString(t, "scope"),
		UserID:       extraString(t, "user_id"),
		Extra:        extra,
	}
}

// extraString reads a provider-specific field from the raw token response.
func extraString(t *oauth2.Token, key string) string {
	switch v := t.Extra(key).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
