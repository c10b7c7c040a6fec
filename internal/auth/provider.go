package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/serveone/serveone/internal/logging"
	"github.com/serveone/serveone/internal/metrics"
)

// Config contains session provider configuration
type Config struct {
	// Number of resolved sessions kept in memory
	CacheSize int

	// How long a cached session stays valid before re-resolving
	CacheTTL time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		CacheSize: 1024,
		CacheTTL:  time.Minute,
	}
}

// sessionQuerier is the subset of pgxpool.Pool the provider needs.
type sessionQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxProvider resolves tokens against the sessions table.
type PgxProvider struct {
	db     sessionQuerier
	logger zerolog.Logger
}

// NewPgxProvider creates a provider backed by the given database handle.
func NewPgxProvider(db sessionQuerier) *PgxProvider {
	return &PgxProvider{
		db:     db,
		logger: logging.Component("auth"),
	}
}

// Resolve looks the token up in the sessions table. Expired sessions
// resolve to ErrNoSession, not a database error.
func (p *PgxProvider) Resolve(ctx context.Context, token string) (*Session, error) {
	var sess Session
	err := p.db.QueryRow(ctx, `
		select u.id, u.restaurant_id, u.role
		from sessions s
		join users u on u.id = s.user_id
		where s.token = $1 and s.expires_at > now()
	`, token).Scan(&sess.UserID, &sess.RestaurantID, &sess.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	return &sess, nil
}

type cacheEntry struct {
	sess    *Session
	expires time.Time
}

// CachingProvider wraps another provider with an LRU cache so hot tokens
// (one per open stream, re-presented on every reconnect) skip the database.
type CachingProvider struct {
	inner   Provider
	cache   *lru.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachingProvider wraps inner with an LRU session cache.
func NewCachingProvider(inner Provider, config Config) (*CachingProvider, error) {
	if config.CacheSize == 0 {
		config.CacheSize = DefaultConfig().CacheSize
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}

	cache, err := lru.New(config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	return &CachingProvider{
		inner:   inner,
		cache:   cache,
		ttl:     config.CacheTTL,
		metrics: metrics.GetMetrics(),
	}, nil
}

// Resolve serves from the cache when the entry is fresh, otherwise falls
// through to the inner provider. Failed resolutions are not cached.
func (c *CachingProvider) Resolve(ctx context.Context, token string) (*Session, error) {
	if v, ok := c.cache.Get(token); ok {
		entry := v.(cacheEntry)
		if time.Now().Before(entry.expires) {
			c.metrics.StoreSessionCacheHit.WithLabelValues("hit").Inc()
			return entry.sess, nil
		}
		c.cache.Remove(token)
	}

	c.metrics.StoreSessionCacheHit.WithLabelValues("miss").Inc()
	sess, err := c.inner.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	c.cache.Add(token, cacheEntry{sess: sess, expires: time.Now().Add(c.ttl)})
	return sess, nil
}
