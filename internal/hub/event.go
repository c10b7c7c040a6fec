package hub

import "time"

// Entity names one domain collection whose contents changed. The set is
// closed: producers publish one of these tags and clients refetch the
// matching collection on receipt.
type Entity string

const (
	EntityOrders     Entity = "orders"
	EntityCategories Entity = "categories"
	EntityAttendance Entity = "attendance"
	EntityRestaurant Entity = "restaurant"
	EntityQROrders   Entity = "qr-orders"
)

// Valid reports whether e is one of the known entity tags.
func (e Entity) Valid() bool {
	switch e {
	case EntityOrders, EntityCategories, EntityAttendance, EntityRestaurant, EntityQROrders:
		return true
	}
	return false
}

// Event is a fire-and-forget invalidation notification. It carries no
// payload data; consumers are expected to refetch the named collection.
type Event struct {
	Entity    Entity `json:"entity"`
	Timestamp int64  `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time in epoch millis.
func NewEvent(entity Entity) Event {
	return Event{
		Entity:    entity,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Frame is one outbound message on a subscriber stream. A frame with an
// empty name is a keepalive comment and carries no data.
type Frame struct {
	Name string
	Data []byte
}
