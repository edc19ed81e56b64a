// flow.go -- The login attempt lifecycle, shared by every HTTP entry point.
//
//	STARTED -> REDIRECTED -> CALLBACK_RECEIVED -> STATE_VALIDATED | REJECTED
//	        -> TOKEN_EXCHANGED | FAILED -> RESOURCE_FETCHED | FAILED
//
// REJECTED, FAILED and RESOURCE_FETCHED are terminal. Nothing is retried.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Stage is the position of one login attempt in its lifecycle.
type Stage string

const (
	StageStarted          Stage = "STARTED"
	StageRedirected       Stage = "REDIRECTED"
	StageCallbackReceived Stage = "CALLBACK_RECEIVED"
	StageStateValidated   Stage = "STATE_VALIDATED"
	StageRejected         Stage = "REJECTED"
	StageTokenExchanged   Stage = "TOKEN_EXCHANGED"
	StageResourceFetched  Stage = "RESOURCE_FETCHED"
	StageFailed           Stage = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageRejected || s == StageFailed || s == StageResourceFetched
}

// Attempt is one pending login: its CSRF state and PKCE verifier, scoped to a single
// browser round-trip. The verifier is cleared once the attempt is completed either way.
type Attempt struct {
	ID        string
	State     string
	Verifier  string
	CreatedAt time.Time
	Stage     Stage
}

// Result is what a successful attempt yields.
type Result struct {
	Token    *TokenRecord
	Resource *Resource
}

// Flow wires the protocol pieces into the login lifecycle.
type Flow struct {
	Client      *Client
	ResourceURL string

	// StaticState, when set, is issued as the state of every attempt instead of a fresh
	// random value. Validation is still per attempt.
	StaticState string

	// Tokens persists token records after a successful exchange. Optional.
	Tokens TokenStore

	refreshMu  sync.Mutex
	refreshing map[string]*sync.Mutex
}

// Start creates a new attempt and returns it with the provider authorization URL.
// The caller stores the attempt server-side keyed by Attempt.ID.
func (f *Flow) Start() (*Attempt, string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, "", fmt.Errorf("generating attempt id: %w", err)
	}
	state := f.StaticState
	if state == "" {
		if state, err = GenerateState(); err != nil {
			return nil, "", err
		}
	}
	pkce := GeneratePKCE()
	a := &Attempt{
		ID:        id.String(),
		State:     state,
		Verifier:  pkce.Verifier,
		CreatedAt: time.Now(),
		Stage:     StageStarted,
	}

	redirectURL, err := f.Client.AuthCodeURL(state, pkce.Challenge)
	if err != nil {
		a.Stage = StageFailed
		return nil, "", err
	}
	a.Stage = StageRedirected
	return a, redirectURL, nil
}

// Complete handles the provider callback for attempt a: validates state, exchanges the
// code, persists the token as a side effect and fetches the resource.
// On state mismatch the code is never sent anywhere and ErrInvalidState is returned.
func (f *Flow) Complete(ctx context.Context, a *Attempt, code, state string) (*Result, error) {
	a.Stage = StageCallbackReceived

	if !ValidateState(state, a.State) {
		a.Verifier = ""
		a.Stage = StageRejected
		return nil, ErrInvalidState
	}
	a.Stage = StageStateValidated

	if code == "" {
		a.Verifier = ""
		a.Stage = StageFailed
		return nil, ErrMissingCode
	}

	tok, err := f.Client.Exchange(ctx, code, a.Verifier)
	a.Verifier = ""
	if err != nil {
		a.Stage = StageFailed
		return nil, err
	}
	a.Stage = StageTokenExchanged

	f.persist(ctx, a, tok)

	res, err := f.Client.Fetch(ctx, f.ResourceURL, tok.AccessToken)
	if err != nil {
		a.Stage = StageFailed
		return nil, err
	}
	a.Stage = StageResourceFetched
	return &Result{Token: tok, Resource: res}, nil
}

// persist saves tok under the provider user id. Tokens without a user id are not saved.
// A store failure is logged and does not fail the attempt.
func (f *Flow) persist(ctx context.Context, a *Attempt, tok *TokenRecord) {
	if f.Tokens == nil || tok.UserID == "" {
		return
	}
	if err := f.Tokens.SaveToken(ctx, tok.UserID, *tok); err != nil {
		slog.Warn("saving token failed", "attempt_id", a.ID, "user_id", tok.UserID, "error", err)
		return
	}
	slog.Debug("token saved", "attempt_id", a.ID, "user_id", tok.UserID)
}

// FetchForIdentity fetches the resource with the token stored for identity, refreshing
// it first when expired. Refreshes for the same identity are serialized so a single-use
// refresh token is redeemed once.
func (f *Flow) FetchForIdentity(ctx context.Context, identity string) (*Resource, error) {
	if f.Tokens == nil {
		return nil, ErrNoTokenStore
	}
	tok, err := f.Tokens.GetToken(ctx, identity)
	if err != nil {
		return nil, err
	}
	if tok.Expired(time.Now()) && tok.RefreshToken != "" {
		if tok, err = f.refresh(ctx, identity); err != nil {
			return nil, err
		}
	}
	return f.Client.Fetch(ctx, f.ResourceURL, tok.AccessToken)
}

func (f *Flow) refresh(ctx context.Context, identity string) (*TokenRecord, error) {
	mu := f.identityLock(identity)
	mu.Lock()
	defer mu.Unlock()

	// Another request may have refreshed while we waited.
	tok, err := f.Tokens.GetToken(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !tok.Expired(time.Now()) {
		return tok, nil
	}

	fresh, err := f.Client.Refresh(ctx, tok)
	if err != nil {
		return nil, err
	}
	if err := f.Tokens.SaveToken(ctx, identity, *fresh); err != nil {
		return nil, fmt.Errorf("saving refreshed token: %w", err)
	}
	slog.Info("token refreshed", "user_id", identity)
	return fresh, nil
}

func (f *Flow) identityLock(identity string) *sync.Mutex {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()
	if f.refreshing == nil {
		f.refreshing = make(map[string]*sync.Mutex)
	}
	mu, ok := f.refreshing[identity]
	if !ok {
		mu = &sync.Mutex{}
		f.refreshing[identity] = mu
	}
	return mu
}
