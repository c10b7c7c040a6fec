package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serveone/serveone/internal/auth"
	"github.com/serveone/serveone/internal/hub"
	"github.com/serveone/serveone/internal/store"
)

type fakeDB struct {
	tag pgconn.CommandTag
	err error
}

func (f *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return f.tag, f.err
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

type stubProvider struct {
	sessions map[string]*auth.Session
}

func (s stubProvider) Resolve(_ context.Context, token string) (*auth.Session, error) {
	if sess, ok := s.sessions[token]; ok {
		return sess, nil
	}
	return nil, auth.ErrNoSession
}

func newTestServer(t *testing.T, db store.DB) (*httptest.Server, *hub.Hub) {
	t.Helper()

	h := hub.New(hub.Config{MaxConnectionsPerRestaurant: 5, SubscriberBuffer: 8})
	st := store.New(db, h)
	provider := stubProvider{sessions: map[string]*auth.Session{
		"tok-r1": {UserID: "u1", RestaurantID: "r1", Role: "manager"},
		"tok-r2": {UserID: "u2", RestaurantID: "r2", Role: "waiter"},
	}}

	a := NewAPI(Config{Addr: ":0"}, h, st, provider)
	server := httptest.NewServer(a.Routes())
	t.Cleanup(server.Close)
	return server, h
}

func doJSON(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")})

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")})

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateOrderPublishesToSubscribers(t *testing.T) {
	server, h := newTestServer(t, &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")})

	sub, err := h.Subscribe("r1")
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/restaurants/r1/orders", "tok-r1",
		`{"table_number":4,"items":[{"name":"espresso","quantity":2,"price_cents":350}]}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.ID)

	select {
	case frame := <-sub.Frames():
		assert.Equal(t, "invalidate", frame.Name)
		assert.Contains(t, string(frame.Data), `"entity":"orders"`)
	case <-time.After(time.Second):
		t.Fatal("expected an orders invalidation")
	}
}

func TestMutationsRequireSession(t *testing.T) {
	server, _ := newTestServer(t, &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/restaurants/r1/orders", "",
		`{"table_number":4}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMutationsRejectForeignRestaurant(t *testing.T) {
	server, _ := newTestServer(t, &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")})

	resp := doJSON(t, http.MethodPost, server.URL+"/api/restaurants/r1/orders", "tok-r2",
		`{"table_number":4}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSetOrderStatusValidation(t *testing.T) {
	server, _ := newTestServer(t, &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")})

	resp := doJSON(t, http.MethodPatch, server.URL+"/api/restaurants/r1/orders/o1/status", "tok-r1",
		`{"status":""}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetOrderStatusNotFound(t *testing.T) {
	server, _ := newTestServer(t, &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")})

	resp := doJSON(t, http.MethodPatch, server.URL+"/api/restaurants/r1/orders/missing/status", "tok-r1",
		`{"status":"served"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConnectionCount(t *testing.T) {
	server, h := newTestServer(t, &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")})

	_, err := h.Subscribe("r1")
	require.NoError(t, err)
	_, err = h.Subscribe("r1")
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/restaurants/r1/connections", "tok-r1", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		RestaurantID string `json:"restaurantId"`
		Connections  int    `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "r1", out.RestaurantID)
	assert.Equal(t, 2, out.Connections)
}

func TestStreamEndpointServedThroughRouter(t *testing.T) {
	server, h := newTestServer(t, &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		server.URL+"/api/restaurants/r1/events?token=tok-r1", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	deadline := time.Now().Add(time.Second)
	for h.Count("r1") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
