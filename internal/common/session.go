package common

import (
	"context"
	"net/http"
	"strings"
)

// SessionHeader carries the client session identifier on every cart request.
const SessionHeader = "X-Session-ID"

type ctxKey string

const sessionIDKey ctxKey = "session/id"

// WithSessionID stores the client session identifier on the provided context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the client session identifier from the context if present.
func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// RequireSession rejects requests without a session header and stores the id on the context.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(SessionHeader))
		if id == "" {
			JSONError(w, http.StatusBadRequest, CodeMissingSession, SessionHeader+" header is required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
	})
}
