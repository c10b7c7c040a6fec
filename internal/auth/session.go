package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrNoSession indicates the presented token did not resolve to an
// authenticated session.
var ErrNoSession = errors.New("auth: no session")

// Session is the identity attached to a request. The invalidation core
// only reads RestaurantID; the rest is carried for the CRUD surface.
type Session struct {
	UserID       string
	RestaurantID string
	Role         string
}

// Provider resolves an opaque bearer token to a session.
type Provider interface {
	Resolve(ctx context.Context, token string) (*Session, error)
}

type contextKey struct{}

// SessionFromContext returns the session attached by Middleware, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok
}

// WithSession returns a context carrying the given session. Used by tests
// and by Middleware.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// TokenFromRequest extracts the bearer token from the Authorization header
// or, for EventSource clients that cannot set headers, the token query
// parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

// Middleware resolves the request's token and attaches the session to the
// request context. Requests without a resolvable session pass through with
// no session attached; handlers that require identity reject them.
func Middleware(provider Provider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token != "" {
				if sess, err := provider.Resolve(r.Context(), token); err == nil {
					r = r.WithContext(WithSession(r.Context(), sess))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
