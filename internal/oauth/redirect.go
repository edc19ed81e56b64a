// redirect.go -- Authorization URL construction.
package oauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// AuthRequest is everything needed to build the provider's authorization URL.
type AuthRequest struct {
	AuthURL     string
	ClientID    string
	RedirectURI string
	State       string
	Challenge   string
	Scopes      []string
}

// BuildRedirect assembles the authorization URL. Query keys come out sorted, so the
// result is stable for a given input. scope is space-joined and encoded as %20, and is
// omitted when Scopes is empty. No network call.
func BuildRedirect(req AuthRequest) (string, error) {
	switch {
	case req.AuthURL == "":
		return "", errors.New("authorization URL is required")
	case req.ClientID == "":
		return "", errors.New("client ID is required")
	case req.State == "":
		return "", errors.New("state is required")
	case req.Challenge == "":
		return "", errors.New("code challenge is required")
	}

	cfg := oauth2.Config{
		ClientID:    req.ClientID,
		RedirectURL: req.RedirectURI,
		Scopes:      req.Scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: req.AuthURL},
	}
	raw := cfg.AuthCodeURL(req.State,
		oauth2.SetAuthURLParam("code_challenge", req.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethodS256),
	)

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing authorization URL: %w", err)
	}
	// url.Values encodes spaces as '+'; literal '+' is already %2B, so this is lossless.
	u.RawQuery = strings.ReplaceAll(u.RawQuery, "+", "%20")
	return u.String(), nil
}
