// Package stream implements the handshake protocol for the invalidation
// stream: authenticate, authorize against the requested restaurant, admit
// into the hub (or reject in-band at capacity), emit the initial
// acknowledgement, and tear the subscriber down on disconnect.
package stream

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/serveone/serveone/internal/auth"
	"github.com/serveone/serveone/internal/hub"
	"github.com/serveone/serveone/internal/logging"
	"github.com/serveone/serveone/internal/metrics"
)

// capacityErrorPayload is the terminal error frame body sent when a
// restaurant is at its connection ceiling. The handshake itself has already
// succeeded at the transport level, so the rejection travels in-band.
const capacityErrorPayload = `{"error":"Too many connections"}`

type connectedPayload struct {
	RestaurantID string `json:"restaurantId"`
}

// Handler serves the stream endpoints for one hub instance.
type Handler struct {
	hub      *hub.Hub
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// NewHandler creates a stream handler bound to the given hub.
func NewHandler(h *hub.Hub) *Handler {
	return &Handler{
		hub:     h,
		logger:  logging.Component("stream"),
		metrics: metrics.GetMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The stream carries no client data; origin policy is CORS's job.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// authorize checks that the caller's session belongs to the requested
// restaurant. Any mismatch, including a missing session, is rejected
// before any subscriber state exists.
func (h *Handler) authorize(r *http.Request) (string, bool) {
	restaurantID := chi.URLParam(r, "restaurantID")
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok || restaurantID == "" || sess.RestaurantID != restaurantID {
		return restaurantID, false
	}
	return restaurantID, true
}

// ServeSSE handles GET /api/restaurants/{restaurantID}/events.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := h.authorize(r)
	if !ok {
		h.metrics.StreamHandshakesTotal.WithLabelValues("sse", "unauthorized").Inc()
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub, err := h.hub.Subscribe(restaurantID)
	if err != nil {
		if errors.Is(err, hub.ErrCapacityExceeded) {
			h.metrics.StreamHandshakesTotal.WithLabelValues("sse", "capacity").Inc()
			_ = writeSSE(w, "error", []byte(capacityErrorPayload))
			flusher.Flush()
		}
		return
	}
	defer h.hub.Unsubscribe(sub)

	h.metrics.StreamHandshakesTotal.WithLabelValues("sse", "connected").Inc()

	ack, _ := json.Marshal(connectedPayload{RestaurantID: restaurantID})
	if err := writeSSE(w, "connected", ack); err != nil {
		return
	}
	flusher.Flush()

	// The keepalive timer is owned by this invocation and stopped on every
	// exit path by the deferred Stop.
	keepalive := time.NewTicker(h.hub.KeepaliveInterval())
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			// Evicted by broadcast-side pruning or hub shutdown.
			return
		case frame := <-sub.Frames():
			if err := writeSSE(w, frame.Name, frame.Data); err != nil {
				h.logger.Debug().Err(err).Str("subscriber_id", sub.ID).Msg("Stream write failed")
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				h.logger.Debug().Err(err).Str("subscriber_id", sub.ID).Msg("Keepalive write failed")
				return
			}
			flusher.Flush()
			h.metrics.StreamKeepalivesTotal.Inc()
		}
	}
}

// writeSSE writes one named frame in text/event-stream framing.
func writeSSE(w io.Writer, name string, data []byte) error {
	if name == "" {
		_, err := io.WriteString(w, ": keepalive\n\n")
		return err
	}
	if _, err := io.WriteString(w, "event: "+name+"\ndata: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n\n")
	return err
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
