// Package store holds the relational persistence for the domain
// collections whose changes the hub announces. Mutation methods follow a
// single pattern: perform the write, then publish the matching entity tag.
// Publishing is fire-and-forget and never fails the mutation.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/serveone/serveone/internal/config"
	"github.com/serveone/serveone/internal/hub"
	"github.com/serveone/serveone/internal/logging"
	"github.com/serveone/serveone/internal/metrics"
)

// ErrNotFound indicates the targeted row does not exist for the given
// restaurant.
var ErrNotFound = errors.New("store: not found")

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store executes domain mutations and publishes invalidation events for
// them.
type Store struct {
	db      DB
	hub     *hub.Hub
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a store over the given database handle and hub.
func New(db DB, h *hub.Hub) *Store {
	return &Store{
		db:      db,
		hub:     h,
		logger:  logging.Component("store"),
		metrics: metrics.GetMetrics(),
	}
}

// Connect opens a pgx pool for the configured database and verifies it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// publish records the mutation and announces it. Runs after the write has
// committed; the caller's result is already decided.
func (s *Store) publish(restaurantID string, entity hub.Entity) {
	s.metrics.StoreMutationsTotal.WithLabelValues(string(entity)).Inc()
	s.hub.Publish(restaurantID, entity)
}

func (s *Store) fail(entity hub.Entity, err error) error {
	s.metrics.StoreMutationErrors.WithLabelValues(string(entity)).Inc()
	return err
}
