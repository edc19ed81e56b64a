// flow_test.go -- tests for the login attempt lifecycle.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProvider serves /token and /resource for flow tests.
type fakeProvider struct {
	*httptest.Server
	tokenCalls    atomic.Int32
	resourceCalls atomic.Int32
	tokenBody     string
	resourceCode  int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{tokenBody: okTokenBody, resourceCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(p.tokenBody))
	})
	mux.HandleFunc("/resource", func(w http.ResponseWriter, r *http.Request) {
		p.resourceCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.resourceCode)
		w.Write([]byte(`{"steps":100,"bearer":"` + r.Header.Get("Authorization") + `"}`))
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// memTokens is a minimal in-package TokenStore.
type memTokens struct {
	mu      sync.Mutex
	records map[string]TokenRecord
	saves   int
	saveErr error
}

func (m *memTokens) SaveToken(_ context.Context, identity string, rec TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.records == nil {
		m.records = make(map[string]TokenRecord)
	}
	m.records[identity] = rec
	m.saves++
	return nil
}

func (m *memTokens) GetToken(_ context.Context, identity string) (*TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[identity]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &rec, nil
}

func newTestFlow(t *testing.T, p *fakeProvider, tokens TokenStore) *Flow {
	t.Helper()
	return &Flow{
		Client:      newTestClient(t, p.URL+"/token", AuthPublic, ""),
		ResourceURL: p.URL + "/resource",
		Tokens:      tokens,
	}
}

// --- Start ---

func TestFlowStart(t *testing.T) {
	p := newFakeProvider(t)
	f := newTestFlow(t, p, nil)

	a, redirect, err := f.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if a.Stage != StageRedirected {
		t.Errorf("stage: expected %s, got %s", StageRedirected, a.Stage)
	}
	if a.ID == "" || a.State == "" || a.Verifier == "" {
		t.Errorf("attempt missing fields: %+v", a)
	}

	u, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("redirect is not a URL: %v", err)
	}
	q := u.Query()
	if q.Get("state") != a.State {
		t.Errorf("state: expected %q, got %q", a.State, q.Get("state"))
	}
	if q.Get("code_challenge") != ChallengeFromVerifier(a.Verifier) {
		t.Error("code_challenge does not match the attempt verifier")
	}

	b, _, _ := f.Start()
	if a.ID == b.ID || a.State == b.State || a.Verifier == b.Verifier {
		t.Error("expected independent attempts")
	}
}

func TestFlowStart_StaticState(t *testing.T) {
	p := newFakeProvider(t)
	f := newTestFlow(t, p, nil)
	f.StaticState = "configured-state"

	a, redirect, err := f.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if a.State != "configured-state" {
		t.Errorf("state: expected %q, got %q", "configured-state", a.State)
	}
	u, _ := url.Parse(redirect)
	if u.Query().Get("state") != "configured-state" {
		t.Errorf("redirect state: got %q", u.Query().Get("state"))
	}
}

// --- Complete ---

func TestFlowComplete_Success(t *testing.T) {
	p := newFakeProvider(t)
	tokens := &memTokens{}
	f := newTestFlow(t, p, tokens)

	a, _, _ := f.Start()
	res, err := f.Complete(context.Background(), a, "the-code", a.State)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if a.Stage != StageResourceFetched || !a.Stage.Terminal() {
		t.Errorf("stage: expected %s, got %s", StageResourceFetched, a.Stage)
	}
	if a.Verifier != "" {
		t.Error("verifier not cleared after completion")
	}
	if res.Token.AccessToken != "abc" {
		t.Errorf("access token: got %q", res.Token.AccessToken)
	}
	if p.resourceCalls.Load() != 1 {
		t.Errorf("resource calls: expected 1, got %d", p.resourceCalls.Load())
	}
	if _, err := tokens.GetToken(context.Background(), "ABC123"); err != nil {
		t.Errorf("token not persisted under user id: %v", err)
	}
}

func TestFlowComplete_WrongStateNeverCallsTokenEndpoint(t *testing.T) {
	p := newFakeProvider(t)
	f := newTestFlow(t, p, nil)

	a, _, _ := f.Start()
	_, err := f.Complete(context.Background(), a, "the-code", "WRONG")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if a.Stage != StageRejected {
		t.Errorf("stage: expected %s, got %s", StageRejected, a.Stage)
	}
	if n := p.tokenCalls.Load(); n != 0 {
		t.Errorf("token endpoint called %d times, expected 0", n)
	}
	if a.Verifier != "" {
		t.Error("verifier not cleared after rejection")
	}
}

func TestFlowComplete_MissingCode(t *testing.T) {
	p := newFakeProvider(t)
	f := newTestFlow(t, p, nil)

	a, _, _ := f.Start()
	if _, err := f.Complete(context.Background(), a, "", a.State); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("expected ErrMissingCode, got %v", err)
	}
	if p.tokenCalls.Load() != 0 {
		t.Error("token endpoint called without a code")
	}
}

func TestFlowComplete_ExchangeFailure(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenBody = `{"token_type":"Bearer"}`
	f := newTestFlow(t, p, nil)

	a, _, _ := f.Start()
	_, err := f.Complete(context.Background(), a, "code", a.State)
	var te *TokenExchangeError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TokenExchangeError, got %v", err)
	}
	if a.Stage != StageFailed {
		t.Errorf("stage: expected %s, got %s", StageFailed, a.Stage)
	}
	if p.resourceCalls.Load() != 0 {
		t.Error("resource fetched after a failed exchange")
	}
}

func TestFlowComplete_ResourceFailure(t *testing.T) {
	p := newFakeProvider(t)
	p.resourceCode = http.StatusUnauthorized
	f := newTestFlow(t, p, nil)

	a, _, _ := f.Start()
	_, err := f.Complete(context.Background(), a, "code", a.State)
	var ue *UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UnauthorizedError, got %v", err)
	}
	if a.Stage != StageFailed {
		t.Errorf("stage: expected %s, got %s", StageFailed, a.Stage)
	}
}

func TestFlowComplete_SaveFailureIsNotFatal(t *testing.T) {
	p := newFakeProvider(t)
	f := newTestFlow(t, p, &memTokens{saveErr: errors.New("disk full")})

	a, _, _ := f.Start()
	if _, err := f.Complete(context.Background(), a, "code", a.State); err != nil {
		t.Fatalf("expected success despite store failure, got %v", err)
	}
}

// --- FetchForIdentity ---

func TestFetchForIdentity(t *testing.T) {
	t.Run("no store", func(t *testing.T) {
		p := newFakeProvider(t)
		f := newTestFlow(t, p, nil)
		if _, err := f.FetchForIdentity(context.Background(), "ABC123"); !errors.Is(err, ErrNoTokenStore) {
			t.Errorf("expected ErrNoTokenStore, got %v", err)
		}
	})

	t.Run("unknown identity", func(t *testing.T) {
		p := newFakeProvider(t)
		f := newTestFlow(t, p, &memTokens{})
		if _, err := f.FetchForIdentity(context.Background(), "nobody"); !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("expected ErrTokenNotFound, got %v", err)
		}
	})

	t.Run("valid token is used as-is", func(t *testing.T) {
		p := newFakeProvider(t)
		tokens := &memTokens{}
		tokens.SaveToken(context.Background(), "ABC123", TokenRecord{AccessToken: "abc", Expiry: time.Now().Add(time.Hour)})
		f := newTestFlow(t, p, tokens)

		if _, err := f.FetchForIdentity(context.Background(), "ABC123"); err != nil {
			t.Fatalf("FetchForIdentity failed: %v", err)
		}
		if p.tokenCalls.Load() != 0 {
			t.Error("refreshed a valid token")
		}
	})

	t.Run("expired token is refreshed once under concurrency", func(t *testing.T) {
		p := newFakeProvider(t)
		tokens := &memTokens{}
		tokens.SaveToken(context.Background(), "ABC123", TokenRecord{
			AccessToken:  "stale",
			RefreshToken: "def",
			UserID:       "ABC123",
			Expiry:       time.Now().Add(-time.Minute),
		})
		f := newTestFlow(t, p, tokens)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.FetchForIdentity(context.Background(), "ABC123"); err != nil {
					t.Errorf("FetchForIdentity failed: %v", err)
				}
			}()
		}
		wg.Wait()

		if n := p.tokenCalls.Load(); n != 1 {
			t.Errorf("token endpoint calls: expected 1, got %d", n)
		}
		rec, _ := tokens.GetToken(context.Background(), "ABC123")
		if rec.AccessToken != "abc" {
			t.Errorf("stored token: expected refreshed %q, got %q", "abc", rec.AccessToken)
		}
	})
}

func TestStageTerminal(t *testing.T) {
	terminal := map[Stage]bool{
		StageStarted:          false,
		StageRedirected:       false,
		StageCallbackReceived: false,
		StageStateValidated:   false,
		StageTokenExchanged:   false,
		StageRejected:         true,
		StageFailed:           true,
		StageResourceFetched:  true,
	}
	for s, want := range terminal {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal(): expected %v, got %v", s, want, s.Terminal())
		}
	}
}
