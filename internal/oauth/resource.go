// resource.go -- Bearer-authenticated fetch of the protected resource.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Resource is the protected resource response, relayed as-is.
type Resource struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Pretty returns the body re-indented with four spaces. Errors if the body is not JSON.
func (r *Resource) Pretty() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Body, "", "    "); err != nil {
		return nil, fmt.Errorf("resource body is not valid JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// Fetch GETs resourceURL with "Authorization: Bearer <accessToken>".
// 401/403 -> *UnauthorizedError, other non-2xx -> *UpstreamError, deadline -> *TimeoutError.
func (c *Client) Fetch(ctx context.Context, resourceURL, accessToken string) (*Resource, error) {
	if accessToken == "" {
		return nil, errors.New("resource fetch: access token is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("resource fetch: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	hc := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.base,
		},
	}
	resp, err := hc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Op: "resource fetch", Err: err}
		}
		return nil, fmt.Errorf("resource fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Op: "resource fetch", Err: err}
		}
		return nil, fmt.Errorf("resource fetch: reading body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &UnauthorizedError{StatusCode: resp.StatusCode, Body: string(body)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return &Resource{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
