package obs

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/superapp-core/internal/common"
)

type routePatternKey struct{}

// WithRoutePattern pins the route label used for metrics, spans and request logs.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns a pinned route label, if any.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}

// RouteOf returns the route label for r. Outer middleware must call it after the handler
// returns: chi fills the pattern on its shared route context only once it has matched.
func RouteOf(r *http.Request, fallback string) string {
	if route := RoutePatternFromContext(r.Context()); route != "" {
		return route
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if route := rc.RoutePattern(); route != "" {
			return route
		}
	}
	return fallback
}

// Area names the API surface a route belongs to.
func Area(route string) string {
	trimmed := strings.TrimPrefix(route, "/api/v1")
	trimmed = strings.TrimPrefix(trimmed, "/")
	head, _, _ := strings.Cut(trimmed, "/")
	switch head {
	case "cart", "checkout", "splits", "health", "metrics":
		return head
	default:
		return "other"
	}
}

// SessionOf returns the client session id carried by r. Outer middleware never sees the
// context set by common.RequireSession, so the header is the fallback.
func SessionOf(r *http.Request) string {
	if id, ok := common.SessionID(r.Context()); ok {
		return id
	}
	return strings.TrimSpace(r.Header.Get(common.SessionHeader))
}
