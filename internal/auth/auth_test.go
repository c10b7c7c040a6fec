package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	sessions map[string]*Session
	calls    int
}

func (p *countingProvider) Resolve(_ context.Context, token string) (*Session, error) {
	p.calls++
	if sess, ok := p.sessions[token]; ok {
		return sess, nil
	}
	return nil, ErrNoSession
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/restaurants/r1/events", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", TokenFromRequest(req))

	// EventSource clients cannot set headers, so the token may ride in
	// the query string instead.
	req = httptest.NewRequest(http.MethodGet, "/api/restaurants/r1/events?token=qp456", nil)
	assert.Equal(t, "qp456", TokenFromRequest(req))

	// Header wins when both are present.
	req = httptest.NewRequest(http.MethodGet, "/?token=qp456", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	assert.Equal(t, "", TokenFromRequest(req))
}

func TestSessionContextRoundTrip(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)

	sess := &Session{UserID: "u1", RestaurantID: "r1", Role: "manager"}
	ctx := WithSession(context.Background(), sess)

	got, ok := SessionFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, sess, got)
}

func TestMiddlewareAttachesSession(t *testing.T) {
	provider := &countingProvider{sessions: map[string]*Session{
		"tok": {UserID: "u1", RestaurantID: "r1"},
	}}

	var seen *Session
	handler := Middleware(provider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, "r1", seen.RestaurantID)
}

func TestMiddlewarePassesThroughWithoutSession(t *testing.T) {
	provider := &countingProvider{sessions: map[string]*Session{}}

	called := false
	handler := Middleware(provider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := SessionFromContext(r.Context())
		assert.False(t, ok)
	}))

	// Unknown token: the request still reaches the handler, unauthenticated.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
	assert.Equal(t, 1, provider.calls)

	// No token at all: the provider is not consulted.
	provider.calls = 0
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 0, provider.calls)
}

func TestCachingProviderHitsCache(t *testing.T) {
	inner := &countingProvider{sessions: map[string]*Session{
		"tok": {UserID: "u1", RestaurantID: "r1"},
	}}
	cached, err := NewCachingProvider(inner, Config{CacheSize: 8, CacheTTL: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		sess, err := cached.Resolve(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "r1", sess.RestaurantID)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCachingProviderExpiresEntries(t *testing.T) {
	inner := &countingProvider{sessions: map[string]*Session{
		"tok": {UserID: "u1", RestaurantID: "r1"},
	}}
	cached, err := NewCachingProvider(inner, Config{CacheSize: 8, CacheTTL: time.Millisecond})
	require.NoError(t, err)

	_, err = cached.Resolve(context.Background(), "tok")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = cached.Resolve(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingProviderDoesNotCacheFailures(t *testing.T) {
	inner := &countingProvider{sessions: map[string]*Session{}}
	cached, err := NewCachingProvider(inner, Config{CacheSize: 8, CacheTTL: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := cached.Resolve(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNoSession)
	}
	assert.Equal(t, 3, inner.calls)
}
