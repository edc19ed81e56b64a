// handler.go -- HTTP handlers for the login round-trip: /login, /callback and stored-token fetches.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MGallo-Code/famfit/internal/oauth"
	"github.com/MGallo-Code/famfit/internal/store"
	"github.com/go-chi/chi/v5"
)

// DefaultLoginTTL is how long a started login may wait for its callback.
const DefaultLoginTTL = 10 * time.Minute

// PendingStore keeps the server-side half of each login attempt between /login and /callback.
// Satisfied by *store.RedisStore and *store.MemoryStore -- defined here (at consumer) per Go convention.
type PendingStore interface {
	// SavePending stores p under p.ID for ttl.
	SavePending(ctx context.Context, p store.PendingLogin, ttl time.Duration) error

	// TakePending returns and deletes the entry for id. Returns store.ErrPendingNotFound on a miss.
	TakePending(ctx context.Context, id string) (*store.PendingLogin, error)

	CheckHealth(ctx context.Context) error
}

// HealthChecker is implemented by token stores that can report their own health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// AuthHandler holds dependencies for the login handlers.
type AuthHandler struct {
	Flow     *oauth.Flow
	Pending  PendingStore
	Cookies  *LoginCookies
	LoginTTL time.Duration
}

func (h *AuthHandler) loginTTL() time.Duration {
	if h.LoginTTL <= 0 {
		return DefaultLoginTTL
	}
	return h.LoginTTL
}

// Login handles GET /login -- starts an attempt, stores its state + verifier server-side,
// sets the signed attempt cookie and redirects (302) to the provider's consent page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	attempt, redirectURL, err := h.Flow.Start()
	if err != nil {
		logError(r, "login: failed to start attempt", "error", err)
		InternalServerError(w, r, err)
		return
	}

	ttl := h.loginTTL()
	err = h.Pending.SavePending(r.Context(), store.PendingLogin{
		ID:        attempt.ID,
		State:     attempt.State,
		Verifier:  attempt.Verifier,
		CreatedAt: attempt.CreatedAt,
	}, ttl)
	if err != nil {
		logError(r, "login: failed to save pending login", "error", err, "attempt_id", attempt.ID)
		InternalServerError(w, r, err)
		return
	}

	if err := h.Cookies.Set(w, attempt.ID, ttl); err != nil {
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "login started", "attempt_id", attempt.ID)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// Callback handles GET /callback?code=...&state=... -- validates state against the pending
// attempt, exchanges the code, fetches the resource and relays it as indented JSON.
// Any state problem (no cookie, no pending attempt, mismatch) is 400 "Invalid state value"
// and the code is never sent to the token endpoint.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Clear immediately; an attempt is single use whatever happens next.
	attemptID, cookieErr := h.Cookies.Read(r)
	h.Cookies.Clear(w)
	if cookieErr != nil {
		logWarn(r, "callback: missing or invalid login cookie", "error", cookieErr)
		InvalidState(w, r)
		return
	}

	pending, err := h.Pending.TakePending(r.Context(), attemptID)
	if err != nil {
		if errors.Is(err, store.ErrPendingNotFound) {
			logWarn(r, "callback: no pending login", "attempt_id", attemptID)
			InvalidState(w, r)
			return
		}
		logError(r, "callback: failed to load pending login", "error", err, "attempt_id", attemptID)
		InternalServerError(w, r, err)
		return
	}

	// Provider reported a denial or error instead of a code.
	if providerErr := q.Get("error"); providerErr != "" {
		logInfo(r, "callback: provider returned error", "attempt_id", attemptID,
			"provider_error", providerErr, "description", q.Get("error_description"))
		BadRequest(w, r, "authorization was not granted")
		return
	}

	attempt := &oauth.Attempt{
		ID:        pending.ID,
		State:     pending.State,
		Verifier:  pending.Verifier,
		CreatedAt: pending.CreatedAt,
		Stage:     oauth.StageRedirected,
	}
	res, err := h.Flow.Complete(r.Context(), attempt, q.Get("code"), q.Get("state"))
	if err != nil {
		writeFlowError(w, r, err, "attempt_id", attempt.ID, "stage", attempt.Stage)
		return
	}

	if res.Token.UserID != "" {
		if err := h.Cookies.SetIdentity(w, res.Token.UserID); err != nil {
			logWarn(r, "callback: failed to set identity cookie", "error", err, "attempt_id", attempt.ID)
		}
	}

	logInfo(r, "login completed", "attempt_id", attempt.ID, "user_id", res.Token.UserID,
		"elapsed_ms", time.Since(attempt.CreatedAt).Milliseconds())
	writeResource(w, r, res.Resource)
}

// ResourceForIdentity handles GET /tokens/{identity}/resource -- fetches the resource with the
// stored token for identity, refreshing it first when expired.
// Only the browser that completed a login as identity may call it: no or an invalid identity
// cookie is 401, a cookie for another identity is 403.
func (h *AuthHandler) ResourceForIdentity(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	loggedInAs, err := h.Cookies.ReadIdentity(r)
	if err != nil {
		logWarn(r, "identity resource: missing or invalid identity cookie", "error", err, "identity", identity)
		Unauthorized(w, r, "login required")
		return
	}
	if loggedInAs != identity {
		logWarn(r, "identity resource: identity mismatch", "identity", identity, "logged_in_as", loggedInAs)
		Forbidden(w, r, "not logged in as this identity")
		return
	}

	res, err := h.Flow.FetchForIdentity(r.Context(), identity)
	switch {
	case err == nil:
	case errors.Is(err, oauth.ErrTokenNotFound), errors.Is(err, oauth.ErrNoTokenStore):
		NotFound(w, r, "no token stored for identity")
		return
	case errors.Is(err, store.ErrInvalidIdentity):
		BadRequest(w, r, "invalid identity")
		return
	case errors.Is(err, oauth.ErrNoRefreshToken):
		Unauthorized(w, r, "stored token expired and cannot be refreshed")
		return
	default:
		writeFlowError(w, r, err, "identity", identity)
		return
	}

	writeResource(w, r, res)
}

// writeResource relays the resource body re-indented with four spaces.
func writeResource(w http.ResponseWriter, r *http.Request, res *oauth.Resource) {
	body, err := res.Pretty()
	if err != nil {
		logWarn(r, "resource body is not JSON", "error", err, "content_type", res.ContentType)
		BadGateway(w, r, "provider returned a non-JSON resource")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// writeFlowError maps a flow failure onto a response. Upstream bodies are logged, never relayed.
func writeFlowError(w http.ResponseWriter, r *http.Request, err error, args ...any) {
	args = append(args, "error", err)

	var (
		timeoutErr  *oauth.TimeoutError
		exchangeErr *oauth.TokenExchangeError
		unauthErr   *oauth.UnauthorizedError
		upstreamErr *oauth.UpstreamError
	)
	switch {
	case errors.Is(err, oauth.ErrInvalidState):
		logWarn(r, "callback: state mismatch", args...)
		InvalidState(w, r)
	case errors.Is(err, oauth.ErrMissingCode):
		logWarn(r, "callback: missing code", args...)
		BadRequest(w, r, "missing authorization code")
	case errors.As(err, &timeoutErr):
		logWarn(r, "provider call timed out", append(args, "op", timeoutErr.Op)...)
		GatewayTimeout(w, r, "provider did not respond in time")
	case errors.As(err, &exchangeErr):
		logWarn(r, "token exchange rejected", append(args, "status", exchangeErr.StatusCode, "oauth_error", exchangeErr.Code)...)
		Unauthorized(w, r, "token exchange failed")
	case errors.As(err, &unauthErr):
		logWarn(r, "resource endpoint rejected token", append(args, "status", unauthErr.StatusCode)...)
		Unauthorized(w, r, "access token rejected by provider")
	case errors.As(err, &upstreamErr):
		logWarn(r, "resource endpoint failed", append(args, "status", upstreamErr.StatusCode)...)
		BadGateway(w, r, "provider request failed")
	default:
		logError(r, "login flow failed", args...)
		InternalServerError(w, r, err)
	}
}
