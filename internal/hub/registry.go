package hub

import (
	"errors"
	"sync"
)

// ErrCapacityExceeded is returned when a restaurant is already at its
// connection ceiling. It is an admission-control decision, not a fault:
// the handshake layer surfaces it to the client as a terminal error frame.
var ErrCapacityExceeded = errors.New("hub: too many connections for restaurant")

// Registry owns the restaurant → subscriber-set mapping. It is the only
// place subscriber sets are created, grown, or shrunk, and it enforces the
// per-restaurant capacity limit. All methods are safe for concurrent use.
type Registry struct {
	capacity int

	mu   sync.RWMutex
	subs map[string]map[string]*Subscriber
}

// NewRegistry creates a registry with the given per-restaurant capacity.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		subs:     make(map[string]map[string]*Subscriber),
	}
}

// Admit inserts sub into the restaurant's set, creating the set if absent.
// If the set is already at capacity the registry is left untouched and
// ErrCapacityExceeded is returned.
func (r *Registry) Admit(restaurantID string, sub *Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.subs[restaurantID]
	if len(set) >= r.capacity {
		return ErrCapacityExceeded
	}
	if set == nil {
		set = make(map[string]*Subscriber)
		r.subs[restaurantID] = set
	}
	set[sub.ID] = sub
	return nil
}

// Remove deletes sub from the restaurant's set and closes the handle,
// reporting whether the handle was still registered. Removing an absent
// handle is a no-op, so the disconnect callback and the broadcast failure
// path may both call it without coordination. The restaurant entry is
// pruned when its set empties.
func (r *Registry) Remove(restaurantID string, sub *Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[restaurantID]
	if !ok {
		return false
	}
	if _, ok := set[sub.ID]; !ok {
		return false
	}
	delete(set, sub.ID)
	if len(set) == 0 {
		delete(r.subs, restaurantID)
	}
	sub.close()
	return true
}

// Snapshot returns the current membership for one restaurant. The returned
// slice is a point-in-time copy; iterating it never races with concurrent
// admission or removal.
func (r *Registry) Snapshot(restaurantID string) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.subs[restaurantID]
	if !ok {
		return nil
	}
	out := make([]*Subscriber, 0, len(set))
	for _, sub := range set {
		out = append(out, sub)
	}
	return out
}

// Count returns the number of registered handles for one restaurant.
func (r *Registry) Count(restaurantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[restaurantID])
}

// Total returns the number of registered handles across all restaurants.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.subs {
		total += len(set)
	}
	return total
}

// drain removes and closes every handle, returning how many were evicted.
func (r *Registry) drain() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for restaurantID, set := range r.subs {
		for id, sub := range set {
			sub.close()
			delete(set, id)
			n++
		}
		delete(r.subs, restaurantID)
	}
	return n
}
