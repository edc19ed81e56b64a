// provider.go -- Provider endpoints, client configuration, and issuer discovery.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DefaultTimeout bounds every outbound call to the provider when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// AuthMode selects how the client authenticates to the token endpoint.
type AuthMode string

const (
	// AuthPublic sends client_id in the form body only; no secret (public PKCE client).
	AuthPublic AuthMode = "public"
	// AuthConfidential sends HTTP Basic base64(client_id:client_secret).
	AuthConfidential AuthMode = "confidential"
)

// Endpoints are the provider's authorization and token URLs.
type Endpoints struct {
	AuthURL  string
	TokenURL string
}

// Config describes one registered OAuth client at one provider.
type Config struct {
	ClientID     string
	ClientSecret string // used only in AuthConfidential mode; never logged
	AuthMode     AuthMode
	RedirectURL  string
	Endpoints    Endpoints
	Scopes       []string // order is preserved in the authorization URL

	// Timeout bounds each outbound call. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient supplies the base transport for outbound calls. Optional.
	HTTPClient *http.Client
}

// Discover fetches the issuer's OpenID discovery document and returns its endpoints.
// Used when only an issuer URL is configured.
func Discover(ctx context.Context, issuer string) (Endpoints, error) {
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}
	ep := p.Endpoint()
	return Endpoints{AuthURL: ep.AuthURL, TokenURL: ep.TokenURL}, nil
}
