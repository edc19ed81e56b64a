// pkce.go -- PKCE (RFC 7636) verifier/challenge generation and CSRF state tokens.
package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// ChallengeMethodS256 is the only challenge method this service emits.
const ChallengeMethodS256 = "S256"

// PKCE holds a fresh verifier and its derived S256 challenge.
// The challenge is never stored on its own; recompute it with ChallengeFromVerifier.
type PKCE struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE returns a new verifier (32 random bytes, base64url without padding, 43 chars)
// and its S256 challenge. Panics only if crypto/rand fails, which is unrecoverable anyway.
func GeneratePKCE() PKCE {
	verifier := oauth2.GenerateVerifier()
	return PKCE{
		Verifier:  verifier,
		Challenge: ChallengeFromVerifier(verifier),
	}
}

// ChallengeFromVerifier returns base64url_nopad(SHA-256(verifier)).
func ChallengeFromVerifier(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateState returns a 256-bit random CSRF state token, base64url encoded.
func GenerateState() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating state with rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
