// Package engine wires the hub, store, auth layer, and API server together
// and manages their lifecycle.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/serveone/serveone/internal/api"
	"github.com/serveone/serveone/internal/auth"
	"github.com/serveone/serveone/internal/config"
	"github.com/serveone/serveone/internal/hub"
	"github.com/serveone/serveone/internal/logging"
	"github.com/serveone/serveone/internal/store"
	"github.com/serveone/serveone/internal/telemetry"
)

// Engine is the main coordinator of all ServeOne components
type Engine struct {
	config      *config.Config
	pool        *pgxpool.Pool
	hub         *hub.Hub
	store       *store.Store
	api         *api.API
	logger      zerolog.Logger
	telemetryFn func(context.Context) error
}

// CreateEngine builds an Engine from the application configuration. It sets
// up logging, connects to PostgreSQL, and constructs every component.
func CreateEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	loggingConfig := logging.Config{
		Level:             logging.LogLevel(cfg.Logging.Level),
		Format:            logging.LogFormat(cfg.Logging.Format),
		IncludeCaller:     cfg.Logging.IncludeCaller,
		IncludeStacktrace: true,
		GlobalFields:      cfg.Logging.GlobalFields,
	}
	if err := logging.Setup(loggingConfig); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	h := hub.New(hub.Config{
		MaxConnectionsPerRestaurant: cfg.Hub.MaxConnectionsPerRestaurant,
		SubscriberBuffer:            cfg.Hub.SubscriberBuffer,
		KeepaliveInterval:           time.Duration(cfg.Hub.KeepaliveIntervalSeconds) * time.Second,
	})

	st := store.New(pool, h)

	sessions, err := auth.NewCachingProvider(auth.NewPgxProvider(pool), auth.Config{
		CacheSize: cfg.Auth.SessionCacheSize,
		CacheTTL:  time.Duration(cfg.Auth.SessionCacheTTLSeconds) * time.Second,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to build session provider: %w", err)
	}

	a := api.NewAPI(api.Config{
		Addr:             cfg.Server.Addr,
		ReadTimeout:      time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:     time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:      time.Duration(cfg.Server.IdleTimeout) * time.Second,
		MetricsEnabled:   cfg.Metrics.Enabled,
		MetricsEndpoint:  cfg.Metrics.Endpoint,
		TelemetryEnabled: cfg.Telemetry.Enabled,
		ServiceName:      cfg.Telemetry.ServiceName,
	}, h, st, sessions)

	return &Engine{
		config: cfg,
		pool:   pool,
		hub:    h,
		store:  st,
		api:    a,
		logger: logging.Component("engine"),
	}, nil
}

// Start runs all components until the context is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info().Msg("Starting ServeOne engine")

	telShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:       e.config.Telemetry.Enabled,
		ServiceName:   e.config.Telemetry.ServiceName,
		Endpoint:      e.config.Telemetry.Endpoint,
		SamplingRatio: e.config.Telemetry.SamplingRatio,
		Timeout:       5 * time.Second,
		Attributes:    e.config.Telemetry.Attributes,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to set up telemetry, continuing without it")
	} else {
		e.telemetryFn = telShutdown
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.api.Start(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("error running engine: %w", err)
	}

	e.logger.Info().Msg("ServeOne engine shut down")
	return nil
}

// Shutdown stops all components in dependency order.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info().Msg("Shutting down ServeOne engine")

	// Stop the listener first so no new subscribers arrive while the hub
	// is draining.
	if err := e.api.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down API")
	}

	if err := e.hub.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down hub")
	}

	e.pool.Close()

	if e.telemetryFn != nil {
		if err := e.telemetryFn(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Failed to shut down telemetry")
		}
	}

	return nil
}
