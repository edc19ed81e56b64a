// client.go -- Token endpoint client: code exchange and refresh.
package oauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// maxBodyBytes caps how much of any upstream response is read.
const maxBodyBytes = 1 << 20

// Client talks to one provider on behalf of one registered OAuth client.
// Safe for concurrent use; it holds no per-attempt state.
type Client struct {
	oauth   *oauth2.Config
	authURL string
	secret  string // confidential clients only; sent as raw Basic credentials
	timeout time.Duration
	base    http.RoundTripper
}

// NewClient validates cfg and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if cfg.Endpoints.AuthURL == "" || cfg.Endpoints.TokenURL == "" {
		return nil, errors.New("authorization and token endpoints are required")
	}

	oc := &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURL,
		Scopes:      cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.Endpoints.AuthURL,
			TokenURL: cfg.Endpoints.TokenURL,
		},
	}
	// x/oauth2 URL-escapes id and secret before Basic-encoding them, so the secret stays
	// out of oauth2.Config and responseCapture sets the header from the raw values.
	oc.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	var secret string
	switch cfg.AuthMode {
	case AuthConfidential:
		if cfg.ClientSecret == "" {
			return nil, errors.New("client secret is required for confidential clients")
		}
		secret = cfg.ClientSecret
	case AuthPublic, "":
	default:
		return nil, fmt.Errorf("unknown client auth mode %q", cfg.AuthMode)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}

	return &Client{oauth: oc, authURL: cfg.Endpoints.AuthURL, secret: secret, timeout: timeout, base: base}, nil
}

// AuthCodeURL builds the authorization URL for this client with the given state and challenge.
func (c *Client) AuthCodeURL(state, challenge string) (string, error) {
	return BuildRedirect(AuthRequest{
		AuthURL:     c.authURL,
		ClientID:    c.oauth.ClientID,
		RedirectURI: c.oauth.RedirectURL,
		State:       state,
		Challenge:   challenge,
		Scopes:      c.oauth.Scopes,
	})
}

// Exchange trades an authorization code + PKCE verifier for tokens.
// The form carries grant_type, code, redirect_uri, code_verifier and client_id; confidential
// clients additionally send HTTP Basic credentials.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*TokenRecord, error) {
	ctx, capture, cancel := c.tokenContext(ctx)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code,
		oauth2.VerifierOption(verifier),
		oauth2.SetAuthURLParam("client_id", c.oauth.ClientID),
	)
	if err != nil {
		return nil, tokenEndpointError("token exchange", err, capture)
	}
	return recordFromToken(tok, capture.body), nil
}

// Refresh redeems rec.RefreshToken for a new token. Fields the provider omits from the
// refresh response (refresh_token, user_id, scope) carry over from rec.
func (c *Client) Refresh(ctx context.Context, rec *TokenRecord) (*TokenRecord, error) {
	if rec == nil || rec.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	ctx, capture, cancel := c.tokenContext(ctx)
	defer cancel()

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		return nil, tokenEndpointError("token refresh", err, capture)
	}
	fresh := recordFromToken(tok, capture.body)
	if fresh.UserID == "" {
		fresh.UserID = rec.UserID
	}
	if fresh.Scope == "" {
		fresh.Scope = rec.Scope
	}
	return fresh, nil
}

// tokenContext bounds ctx by the client timeout and installs a per-call HTTP client that
// authenticates confidential clients and records the token endpoint's raw response.
func (c *Client) tokenContext(ctx context.Context) (context.Context, *responseCapture, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	capture := &responseCapture{base: c.base}
	if c.secret != "" {
		capture.clientID, capture.secret = c.oauth.ClientID, c.secret
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: c.timeout, Transport: capture})
	return ctx, capture, cancel
}

// tokenEndpointError maps an x/oauth2 failure onto TimeoutError or TokenExchangeError.
func tokenEndpointError(op string, err error, capture *responseCapture) error {
	if isTimeout(err) {
		return &TimeoutError{Op: op, Err: err}
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := capture.status
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &TokenExchangeError{StatusCode: status, Body: string(re.Body), Code: re.ErrorCode, Err: err}
	}
	// 2xx without access_token, or a transport failure (status 0).
	return &TokenExchangeError{StatusCode: capture.status, Body: string(capture.body), Err: err}
}

// responseCapture is a one-shot RoundTripper that keeps a copy of the response body.
// When secret is set it adds "Authorization: Basic base64(clientID:secret)" unescaped.
// One instance per call; not shared across goroutines.
type responseCapture struct {
	base             http.RoundTripper
	clientID, secret string
	status           int
	body             []byte
}

func (rc *responseCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	if rc.secret != "" {
		req = req.Clone(req.Context())
		req.SetBasicAuth(rc.clientID, rc.secret)
	}
	resp, err := rc.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}
	rc.status = resp.StatusCode
	rc.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
