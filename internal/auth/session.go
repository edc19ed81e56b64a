// session.go -- Signed, encrypted cookies: the attempt id between /login and /callback, and
// the provider identity a browser completed a login as.
//
// Cookie keys are derived from one server secret with HKDF, so rotating the secret
// invalidates every in-flight login at once.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

// LoginCookieName is the cookie that binds a browser to its pending login attempt.
const LoginCookieName = "famfit_login"

// IdentityCookieName is the cookie naming the provider identity whose stored token this
// browser may use.
const IdentityCookieName = "famfit_identity"

// DefaultIdentityTTL is how long a completed login grants access to the stored token.
const DefaultIdentityTTL = 24 * time.Hour

// ErrNoLoginCookie is returned by Read when the request carries no login cookie.
var ErrNoLoginCookie = errors.New("no login cookie")

// ErrNoIdentityCookie is returned by ReadIdentity when the request carries no identity cookie.
var ErrNoIdentityCookie = errors.New("no identity cookie")

// LoginCookies encodes and decodes the login and identity cookies.
type LoginCookies struct {
	codec    *securecookie.SecureCookie
	identity *securecookie.SecureCookie
	secure   bool
}

// NewLoginCookies derives the HMAC and AES keys from secret. secure sets the cookie's
// Secure attribute; maxAge bounds how long an encoded value is accepted.
func NewLoginCookies(secret []byte, secure bool, maxAge time.Duration) (*LoginCookies, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	hashKey, err := deriveKey(secret, "famfit login cookie hmac", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(secret, "famfit login cookie aes", 32)
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(maxAge.Seconds()))
	// Same keys; securecookie binds the cookie name into the MAC, so values don't cross over.
	identity := securecookie.New(hashKey, blockKey)
	identity.MaxAge(int(DefaultIdentityTTL.Seconds()))
	return &LoginCookies{codec: codec, identity: identity, secure: secure}, nil
}

func deriveKey(secret []byte, info string, n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("deriving cookie key: %w", err)
	}
	return key, nil
}

// Set writes the login cookie for attemptID, living for ttl.
// SameSite=Lax so the cookie survives the provider's top-level redirect back to /callback.
func (c *LoginCookies) Set(w http.ResponseWriter, attemptID string, ttl time.Duration) error {
	value, err := c.codec.Encode(LoginCookieName, attemptID)
	if err != nil {
		return fmt.Errorf("encoding login cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     LoginCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
	return nil
}

// Read returns the attempt id from the login cookie. Fails on a missing, tampered or
// expired cookie.
func (c *LoginCookies) Read(r *http.Request) (string, error) {
	ck, err := r.Cookie(LoginCookieName)
	if err != nil {
		return "", ErrNoLoginCookie
	}
	var attemptID string
	if err := c.codec.Decode(LoginCookieName, ck.Value, &attemptID); err != nil {
		return "", fmt.Errorf("decoding login cookie: %w", err)
	}
	if attemptID == "" {
		return "", errors.New("login cookie has no attempt id")
	}
	return attemptID, nil
}

// Clear overwrites the login cookie with MaxAge=-1 to trigger browser deletion.
func (c *LoginCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     LoginCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// SetIdentity writes the identity cookie for a browser that just completed a login.
func (c *LoginCookies) SetIdentity(w http.ResponseWriter, identity string) error {
	value, err := c.identity.Encode(IdentityCookieName, identity)
	if err != nil {
		return fmt.Errorf("encoding identity cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     IdentityCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(DefaultIdentityTTL.Seconds()),
	})
	return nil
}

// ReadIdentity returns the identity from the identity cookie. Fails on a missing,
// tampered or expired cookie.
func (c *LoginCookies) ReadIdentity(r *http.Request) (string, error) {
	ck, err := r.Cookie(IdentityCookieName)
	if err != nil {
		return "", ErrNoIdentityCookie
	}
	var identity string
	if err := c.identity.Decode(IdentityCookieName, ck.Value, &identity); err != nil {
		return "", fmt.Errorf("decoding identity cookie: %w", err)
	}
	if identity == "" {
		return "", errors.New("identity cookie is empty")
	}
	return identity, nil
}
