package httpx

import (
	"context"
)

// requestIDKey and authenticatedKey are unexported context key types to avoid
// collisions across packages. Centralized in this file so all handlers and
// middleware use the same keys.
type (
	requestIDKey     struct{}
	authenticatedKey struct{}
)

// SetRequestIDInContext returns a child context that carries the request ID.
// If id is empty, the original ctx is returned unchanged.
func SetRequestIDInContext(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID, or "" when none was set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// setAuthenticatedInContext records the route guard's view of the session.
func setAuthenticatedInContext(ctx context.Context, authenticated bool) context.Context {
	return context.WithValue(ctx, authenticatedKey{}, authenticated)
}

// IsAuthenticated reports whether the route guard saw a live session cookie.
// It is false when the guard did not run.
func IsAuthenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(authenticatedKey{}).(bool)
	return ok
}
