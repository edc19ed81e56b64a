// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"encoding/json"
	"net/http"
)

// CheckHealth handles GET /health -- checks the pending login store and, when it can report
// health, the token store. Returns 200 if all are healthy, 503 otherwise.
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	pendingStatus := "ok"
	tokenStatus := "disabled"

	if err := h.Pending.CheckHealth(r.Context()); err != nil {
		logError(r, "pending store health check failed", "error", err)
		pendingStatus = "error"
	}
	if hc, ok := h.Flow.Tokens.(HealthChecker); ok {
		tokenStatus = "ok"
		if err := hc.CheckHealth(r.Context()); err != nil {
			logError(r, "token store health check failed", "error", err)
			tokenStatus = "error"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if pendingStatus == "error" || tokenStatus == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(struct {
		Pending string `json:"pending"`
		Tokens  string `json:"tokens"`
	}{pendingStatus, tokenStatus})
}
