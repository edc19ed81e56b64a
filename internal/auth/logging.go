// logging.go -- Request-scoped logging helpers.
//
// Wraps slog with automatic extraction of request context (request id, IP, user agent,
// method, path) so handlers don't have to repeat these fields on every call.
package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// reqAttrs returns standard request-scoped attributes for logging.
// Query strings are left out; callback URLs carry authorization codes.
func reqAttrs(r *http.Request) []any {
	attrs := []any{
		"ip", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"method", r.Method,
		"path", r.URL.Path,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	return attrs
}

// logInfo logs at info level with automatic request context.
func logInfo(r *http.Request, msg string, args ...any) {
	slog.Info(msg, append(reqAttrs(r), args...)...)
}

// logWarn logs at warn level with automatic request context.
func logWarn(r *http.Request, msg string, args ...any) {
	slog.Warn(msg, append(reqAttrs(r), args...)...)
}

// logError logs at error level with automatic request context.
func logError(r *http.Request, msg string, args ...any) {
	slog.Error(msg, append(reqAttrs(r), args...)...)
}

// AccessLog is chi's RequestLogger writing one slog line per request with reqAttrs, so the
// access log never carries the callback's code or state.
func AccessLog(next http.Handler) http.Handler {
	return middleware.RequestLogger(accessLogFormatter{})(next)
}

type accessLogFormatter struct{}

func (accessLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &accessLogEntry{attrs: reqAttrs(r)}
}

type accessLogEntry struct {
	attrs []any
}

func (e *accessLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	slog.Info("request", append(e.attrs, "status", status, "bytes", bytes, "elapsed_ms", elapsed.Milliseconds())...)
}

func (e *accessLogEntry) Panic(v any, stack []byte) {
	slog.Error("panic", append(e.attrs, "panic", v, "stack", string(stack))...)
}
