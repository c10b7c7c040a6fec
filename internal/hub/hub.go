package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/serveone/serveone/internal/logging"
	"github.com/serveone/serveone/internal/metrics"
)

// Config contains hub configuration
type Config struct {
	// Maximum simultaneous connections per restaurant
	MaxConnectionsPerRestaurant int

	// Buffer size of each subscriber's frame channel
	SubscriberBuffer int

	// Interval between keepalive comments on each stream
	KeepaliveInterval time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		MaxConnectionsPerRestaurant: 20,
		SubscriberBuffer:            32,
		KeepaliveInterval:           25 * time.Second,
	}
}

// Hub is the process-local invalidation broadcast engine. Mutation handlers
// call Publish after a successful write; the hub fans the event out to every
// subscriber currently registered for that restaurant and evicts any handle
// whose delivery failed.
type Hub struct {
	config   Config
	registry *Registry
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// New creates a hub with its own registry.
func New(config Config) *Hub {
	if config.MaxConnectionsPerRestaurant == 0 {
		config.MaxConnectionsPerRestaurant = DefaultConfig().MaxConnectionsPerRestaurant
	}
	if config.SubscriberBuffer == 0 {
		config.SubscriberBuffer = DefaultConfig().SubscriberBuffer
	}
	if config.KeepaliveInterval == 0 {
		config.KeepaliveInterval = DefaultConfig().KeepaliveInterval
	}

	return &Hub{
		config:   config,
		registry: NewRegistry(config.MaxConnectionsPerRestaurant),
		logger:   logging.Component("hub"),
		metrics:  metrics.GetMetrics(),
	}
}

// KeepaliveInterval returns the configured keepalive period for use by the
// stream handlers that own the per-connection timers.
func (h *Hub) KeepaliveInterval() time.Duration {
	return h.config.KeepaliveInterval
}

// Subscribe creates a handle and admits it under the given restaurant.
// Returns ErrCapacityExceeded when the restaurant is at its ceiling; no
// handle exists after a rejection.
func (h *Hub) Subscribe(restaurantID string) (*Subscriber, error) {
	sub := newSubscriber(restaurantID, h.config.SubscriberBuffer)
	if err := h.registry.Admit(restaurantID, sub); err != nil {
		h.metrics.HubCapacityRejections.Inc()
		h.logger.Debug().
			Str("restaurant_id", restaurantID).
			Msg("Connection rejected: restaurant at capacity")
		return nil, err
	}
	h.metrics.HubConnectionsActive.Inc()
	h.logger.Debug().
		Str("restaurant_id", restaurantID).
		Str("subscriber_id", sub.ID).
		Msg("Subscriber admitted")
	return sub, nil
}

// Unsubscribe removes a handle from the registry. Safe to call more than
// once and concurrently with broadcast-side pruning.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if h.registry.Remove(sub.RestaurantID, sub) {
		h.metrics.HubConnectionsActive.Dec()
		h.logger.Debug().
			Str("restaurant_id", sub.RestaurantID).
			Str("subscriber_id", sub.ID).
			Msg("Subscriber removed")
	}
}

// Publish delivers an invalidation event for one entity to every subscriber
// of the given restaurant. Delivery is best-effort and non-blocking: a
// handle whose write cannot complete immediately is evicted in the same
// call, and a failure on one handle never affects the others. Publishing to
// a restaurant with no subscribers is a no-op and creates no registry state.
func (h *Hub) Publish(restaurantID string, entity Entity) {
	subs := h.registry.Snapshot(restaurantID)
	if len(subs) == 0 {
		return
	}

	start := time.Now()
	event := NewEvent(entity)
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("entity", string(entity)).Msg("Failed to marshal event")
		return
	}
	frame := Frame{Name: "invalidate", Data: data}

	var dead []*Subscriber
	for _, sub := range subs {
		if err := sub.send(frame); err != nil {
			dead = append(dead, sub)
			h.metrics.HubDeliveryFailures.Inc()
			h.logger.Debug().
				Err(err).
				Str("restaurant_id", restaurantID).
				Str("subscriber_id", sub.ID).
				Msg("Delivery failed, evicting subscriber")
		}
	}

	// Prune lazily: dead connections found during broadcast are removed
	// here rather than waiting for their disconnect callback.
	for _, sub := range dead {
		h.Unsubscribe(sub)
	}

	h.metrics.HubEventsPublished.WithLabelValues(string(entity)).Inc()
	h.metrics.HubBroadcastDuration.Observe(time.Since(start).Seconds())
}

// Count returns the number of active subscribers for one restaurant.
func (h *Hub) Count(restaurantID string) int {
	return h.registry.Count(restaurantID)
}

// Total returns the number of active subscribers across all restaurants.
func (h *Hub) Total() int {
	return h.registry.Total()
}

// Shutdown evicts every subscriber. Stream handlers observe their handle's
// Done channel and finish their own teardown.
func (h *Hub) Shutdown(ctx context.Context) error {
	n := h.registry.drain()
	h.metrics.HubConnectionsActive.Sub(float64(n))
	h.logger.Info().Int("closed_subscribers", n).Msg("Hub shut down")
	return nil
}
