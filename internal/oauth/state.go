// state.go -- CSRF state validation.
package oauth

import "crypto/subtle"

// ValidateState reports whether the state echoed back by the provider matches the one
// issued for this login attempt. Comparison is constant-time; an empty expected value
// never validates.
func ValidateState(received, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), []byte(expected)) == 1
}
