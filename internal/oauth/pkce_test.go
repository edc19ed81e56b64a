// pkce_test.go -- unit tests for GeneratePKCE, ChallengeFromVerifier, GenerateState.
package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func isURLSafe(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func TestGeneratePKCE(t *testing.T) {
	t.Run("challenge is base64url_nopad(sha256(verifier))", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			p := GeneratePKCE()
			sum := sha256.Sum256([]byte(p.Verifier))
			want := base64.RawURLEncoding.EncodeToString(sum[:])
			if p.Challenge != want {
				t.Fatalf("challenge: expected %q, got %q", want, p.Challenge)
			}
			if ChallengeFromVerifier(p.Verifier) != p.Challenge {
				t.Fatal("ChallengeFromVerifier is not deterministic")
			}
		}
	})

	t.Run("verifier meets PKCE length and alphabet", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			p := GeneratePKCE()
			if len(p.Verifier) < 43 || len(p.Verifier) > 128 {
				t.Fatalf("verifier length: expected 43-128, got %d", len(p.Verifier))
			}
			if !isURLSafe(p.Verifier) {
				t.Fatalf("verifier %q has characters outside the URL-safe alphabet", p.Verifier)
			}
			if !isURLSafe(p.Challenge) {
				t.Fatalf("challenge %q is not URL-safe or still padded", p.Challenge)
			}
		}
	})

	t.Run("verifiers are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			v := GeneratePKCE().Verifier
			if seen[v] {
				t.Fatalf("duplicate verifier %q", v)
			}
			seen[v] = true
		}
	})
}

func TestChallengeFromVerifier_KnownVector(t *testing.T) {
	// RFC 7636 Appendix B.
	got := ChallengeFromVerifier("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState failed: %v", err)
	}
	b, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState failed: %v", err)
	}
	if a == b {
		t.Error("expected distinct states")
	}
	if len(a) != 43 || !isURLSafe(a) {
		t.Errorf("state: expected 43 URL-safe chars, got %q", a)
	}
}
