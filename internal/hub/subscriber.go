package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSubscriberClosed is returned when writing to a handle that has
	// already been torn down.
	ErrSubscriberClosed = errors.New("hub: subscriber closed")

	// ErrSubscriberStalled is returned when a handle's buffer is full. A
	// write that cannot complete immediately counts as a delivery failure;
	// the publisher never blocks on a slow client.
	ErrSubscriberStalled = errors.New("hub: subscriber stalled")
)

// Subscriber is one open stream to one client. The frame channel is owned
// exclusively by this handle: the hub writes to it through send, and the
// one stream handler that created the connection drains it. A subscriber
// belongs to exactly one restaurant for its entire lifetime.
type Subscriber struct {
	ID           string
	RestaurantID string
	CreatedAt    time.Time

	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(restaurantID string, buffer int) *Subscriber {
	return &Subscriber{
		ID:           uuid.NewString(),
		RestaurantID: restaurantID,
		CreatedAt:    time.Now(),
		frames:       make(chan Frame, buffer),
		done:         make(chan struct{}),
	}
}

// Frames returns the stream of outbound frames for this subscriber.
func (s *Subscriber) Frames() <-chan Frame {
	return s.frames
}

// Done is closed when the subscriber has been removed from the registry,
// letting the stream handler exit even if no further frame arrives.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// send delivers a frame without blocking. The frame channel is never
// closed, so a racing send against teardown observes done instead of
// panicking on a closed channel.
func (s *Subscriber) send(f Frame) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}
	select {
	case s.frames <- f:
		return nil
	case <-s.done:
		return ErrSubscriberClosed
	default:
		return ErrSubscriberStalled
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
