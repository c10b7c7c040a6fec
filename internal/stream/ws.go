package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/serveone/serveone/internal/hub"
)

// wsWriteWait bounds every WebSocket write so a stalled client cannot hold
// the connection goroutine.
const wsWriteWait = 5 * time.Second

// wsFrame mirrors the SSE frames as a single JSON object per message.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServeWS handles GET /api/restaurants/{restaurantID}/ws. It carries the
// same three named frames as the SSE stream; keepalives travel as ping
// control frames instead of comments.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := h.authorize(r)
	if !ok {
		h.metrics.StreamHandshakesTotal.WithLabelValues("ws", "unauthorized").Inc()
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub, err := h.hub.Subscribe(restaurantID)
	if err != nil {
		if errors.Is(err, hub.ErrCapacityExceeded) {
			h.metrics.StreamHandshakesTotal.WithLabelValues("ws", "capacity").Inc()
			_ = writeWS(conn, "error", []byte(capacityErrorPayload))
		}
		return
	}
	defer h.hub.Unsubscribe(sub)

	h.metrics.StreamHandshakesTotal.WithLabelValues("ws", "connected").Inc()

	ack, _ := json.Marshal(connectedPayload{RestaurantID: restaurantID})
	if err := writeWS(conn, "connected", ack); err != nil {
		return
	}

	// Discard inbound messages; the read loop exists only to observe the
	// close from the client side.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	keepalive := time.NewTicker(h.hub.KeepaliveInterval())
	defer keepalive.Stop()

	for {
		select {
		case <-readerDone:
			return
		case <-sub.Done():
			return
		case frame := <-sub.Frames():
			if err := writeWS(conn, frame.Name, frame.Data); err != nil {
				h.logger.Debug().Err(err).Str("subscriber_id", sub.ID).Msg("WebSocket write failed")
				return
			}
		case <-keepalive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				h.logger.Debug().Err(err).Str("subscriber_id", sub.ID).Msg("WebSocket ping failed")
				return
			}
			h.metrics.StreamKeepalivesTotal.Inc()
		}
	}
}

func writeWS(conn *websocket.Conn, name string, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(wsFrame{Event: name, Data: data})
}
