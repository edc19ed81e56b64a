// responses.go -- Package-wide HTTP response helpers.
//
// All messages are plain ASCII constants - no user-controlled or upstream input is
// interpolated, so string concat is safe here.
package auth

import (
	"net/http"
)

// invalidStateBody is the exact body of every state rejection.
const invalidStateBody = "Invalid state value"

// InvalidState returns 400 with the plain-text body "Invalid state value".
func InvalidState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusBadRequest)
	w.Write([]byte(invalidStateBody))
}

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	writeMessage(w, http.StatusInternalServerError, "internal server error")
}

// BadRequest returns a 400 JSON response with the given message.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusBadRequest, message)
}

// Unauthorized returns a 401 JSON response with the given message.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusUnauthorized, message)
}

// Forbidden returns a 403 JSON response with the given message.
func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusForbidden, message)
}

// NotFound returns a 404 JSON response with the given message.
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusNotFound, message)
}

// BadGateway returns a 502 JSON response; the provider answered but not usefully.
func BadGateway(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusBadGateway, message)
}

// GatewayTimeout returns a 504 JSON response; the provider did not answer in time.
func GatewayTimeout(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusGatewayTimeout, message)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"message":"` + message + `"}`))
}
