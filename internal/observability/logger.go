// Package observability carries request-scoped identity through context so
// every component logs with the same request, user and session fields.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Structured log keys shared across packages.
const (
	LogFieldRequestID = "request_id"
	LogFieldUserID    = "user_id"
	LogFieldSessionID = "session_id"
	LogFieldIntent    = "intent"
	LogFieldState     = "state"
	// LogFieldDuration is in milliseconds.
	LogFieldDuration = "latency_ms"
)

// RequestContext identifies one agent turn.
type RequestContext struct {
	RequestID string
	UserID    string
	SessionID string
	StartTime time.Time

	logger *slog.Logger
}

// NewRequestContext creates a request context with a fresh request id.
// A nil logger means slog.Default().
func NewRequestContext(logger *slog.Logger, userID, sessionID string) *RequestContext {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &RequestContext{
		RequestID: uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		StartTime: time.Now(),
	}
	rc.logger = logger.With(
		slog.String(LogFieldRequestID, rc.RequestID),
		slog.String(LogFieldUserID, userID),
		slog.String(LogFieldSessionID, sessionID),
	)
	return rc
}

// Logger returns the logger carrying the request fields.
func (r *RequestContext) Logger() *slog.Logger {
	return r.logger
}

func (r *RequestContext) Elapsed() time.Duration {
	return time.Since(r.StartTime)
}

type ctxKey struct{}

func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// LoggerFrom returns the request logger if one is attached, else slog.Default().
func LoggerFrom(ctx context.Context) *slog.Logger {
	if rc, ok := FromContext(ctx); ok {
		return rc.logger
	}
	return slog.Default()
}
