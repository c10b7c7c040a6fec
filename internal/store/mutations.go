package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/serveone/serveone/internal/hub"
)

// OrderItem is one line of an order.
type OrderItem struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// OrderInput is the payload for creating an order.
type OrderInput struct {
	TableNumber int         `json:"table_number"`
	Items       []OrderItem `json:"items"`
}

// CreateOrder inserts a new order and announces the change.
func (s *Store) CreateOrder(ctx context.Context, restaurantID string, in OrderInput) (string, error) {
	items, err := json.Marshal(in.Items)
	if err != nil {
		return "", s.fail(hub.EntityOrders, fmt.Errorf("encode order items: %w", err))
	}

	id := uuid.NewString()
	_, err = s.db.Exec(ctx, `
		insert into orders (id, restaurant_id, table_number, items, status, created_at)
		values ($1, $2, $3, $4, 'open', now())
	`, id, restaurantID, in.TableNumber, items)
	if err != nil {
		return "", s.fail(hub.EntityOrders, fmt.Errorf("insert order: %w", err))
	}

	s.publish(restaurantID, hub.EntityOrders)
	return id, nil
}

// SetOrderStatus transitions one order. The restaurant filter keeps one
// tenant from touching another tenant's orders.
func (s *Store) SetOrderStatus(ctx context.Context, restaurantID, orderID, status string) error {
	tag, err := s.db.Exec(ctx, `
		update orders set status = $3, updated_at = now()
		where id = $1 and restaurant_id = $2
	`, orderID, restaurantID, status)
	if err != nil {
		return s.fail(hub.EntityOrders, fmt.Errorf("update order: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.fail(hub.EntityOrders, ErrNotFound)
	}

	s.publish(restaurantID, hub.EntityOrders)
	return nil
}

// UpsertCategory creates or repositions a menu category.
func (s *Store) UpsertCategory(ctx context.Context, restaurantID, name string, position int) error {
	_, err := s.db.Exec(ctx, `
		insert into menu_categories (restaurant_id, name, position)
		values ($1, $2, $3)
		on conflict (restaurant_id, name) do update set position = excluded.position
	`, restaurantID, name, position)
	if err != nil {
		return s.fail(hub.EntityCategories, fmt.Errorf("upsert category: %w", err))
	}

	s.publish(restaurantID, hub.EntityCategories)
	return nil
}

// RecordClockIn stores a staff attendance entry.
func (s *Store) RecordClockIn(ctx context.Context, restaurantID, staffID string) error {
	_, err := s.db.Exec(ctx, `
		insert into attendance (restaurant_id, staff_id, clocked_in_at)
		values ($1, $2, now())
	`, restaurantID, staffID)
	if err != nil {
		return s.fail(hub.EntityAttendance, fmt.Errorf("insert attendance: %w", err))
	}

	s.publish(restaurantID, hub.EntityAttendance)
	return nil
}

// UpdateRestaurantProfile changes the restaurant's public details.
func (s *Store) UpdateRestaurantProfile(ctx context.Context, restaurantID, name, address string) error {
	tag, err := s.db.Exec(ctx, `
		update restaurants set name = $2, address = $3, updated_at = now()
		where id = $1
	`, restaurantID, name, address)
	if err != nil {
		return s.fail(hub.EntityRestaurant, fmt.Errorf("update restaurant: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.fail(hub.EntityRestaurant, ErrNotFound)
	}

	s.publish(restaurantID, hub.EntityRestaurant)
	return nil
}

// CreateQROrder inserts an order placed through the table QR flow.
func (s *Store) CreateQROrder(ctx context.Context, restaurantID string, in OrderInput) (string, error) {
	items, err := json.Marshal(in.Items)
	if err != nil {
		return "", s.fail(hub.EntityQROrders, fmt.Errorf("encode order items: %w", err))
	}

	id := uuid.NewString()
	_, err = s.db.Exec(ctx, `
		insert into qr_orders (id, restaurant_id, table_number, items, status, created_at)
		values ($1, $2, $3, $4, 'pending', now())
	`, id, restaurantID, in.TableNumber, items)
	if err != nil {
		return "", s.fail(hub.EntityQROrders, fmt.Errorf("insert qr order: %w", err))
	}

	s.publish(restaurantID, hub.EntityQROrders)
	return id, nil
}
