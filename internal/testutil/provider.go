// provider.go
//
// FakeProvider is an httptest OAuth provider with /authorize, /token and /resource endpoints.
// Shared by handler tests and the root smoke/e2e tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
)

// DefaultTokenBody is a Fitbit-shaped token response.
const DefaultTokenBody = `{"access_token":"abc","refresh_token":"def","token_type":"Bearer","expires_in":28800,"scope":"activity heartrate","user_id":"ABC123"}`

// FakeProvider records calls and serves configurable responses.
// Set fields before the first request; they are read without locking.
type FakeProvider struct {
	*httptest.Server

	TokenStatus    int
	TokenBody      string
	ResourceStatus int
	ResourceBody   string

	TokenCalls    atomic.Int32
	ResourceCalls atomic.Int32

	mu        sync.Mutex
	lastForm  url.Values
	lastBasic [2]string
	lastAuthz string
}

// NewFakeProvider starts a provider that accepts every exchange and returns {"steps":100}.
func NewFakeProvider(t *testing.T) *FakeProvider {
	t.Helper()
	p := &FakeProvider{
		TokenStatus:    http.StatusOK,
		TokenBody:      DefaultTokenBody,
		ResourceStatus: http.StatusOK,
		ResourceBody:   `{"steps":100}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		// Consent is implicit: bounce straight back with a code.
		q := r.URL.Query()
		back, err := url.Parse(q.Get("redirect_uri"))
		if err != nil {
			http.Error(w, "bad redirect_uri", http.StatusBadRequest)
			return
		}
		bq := back.Query()
		bq.Set("code", "fake-code")
		bq.Set("state", q.Get("state"))
		back.RawQuery = bq.Encode()
		http.Redirect(w, r, back.String(), http.StatusFound)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.TokenCalls.Add(1)
		r.ParseForm()
		user, pass, _ := r.BasicAuth()
		p.mu.Lock()
		p.lastForm = r.PostForm
		p.lastBasic = [2]string{user, pass}
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.TokenStatus)
		w.Write([]byte(p.TokenBody))
	})
	mux.HandleFunc("/resource", func(w http.ResponseWriter, r *http.Request) {
		p.ResourceCalls.Add(1)
		p.mu.Lock()
		p.lastAuthz = r.Header.Get("Authorization")
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.ResourceStatus)
		w.Write([]byte(p.ResourceBody))
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// AuthURL is the provider's authorization endpoint.
func (p *FakeProvider) AuthURL() string { return p.URL + "/authorize" }

// TokenURL is the provider's token endpoint.
func (p *FakeProvider) TokenURL() string { return p.URL + "/token" }

// ResourceURL is the protected resource.
func (p *FakeProvider) ResourceURL() string { return p.URL + "/resource" }

// LastTokenForm returns the form of the most recent token request.
func (p *FakeProvider) LastTokenForm() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastForm
}

// LastBasicAuth returns the Basic credentials of the most recent token request.
func (p *FakeProvider) LastBasicAuth() (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastBasic[0], p.lastBasic[1]
}

// LastAuthorization returns the Authorization header of the most recent resource request.
func (p *FakeProvider) LastAuthorization() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuthz
}
