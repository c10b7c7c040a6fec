// Package api hosts the HTTP surface: the invalidation stream endpoints,
// the producer (mutation) endpoints, health, and metrics.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/serveone/serveone/internal/auth"
	"github.com/serveone/serveone/internal/hub"
	"github.com/serveone/serveone/internal/logging"
	"github.com/serveone/serveone/internal/metrics"
	"github.com/serveone/serveone/internal/store"
	"github.com/serveone/serveone/internal/stream"
	"github.com/serveone/serveone/internal/telemetry"
)

// Config contains API configuration
type Config struct {
	// Server address
	Addr string

	// Timeouts. WriteTimeout must stay zero while the SSE endpoint is
	// served from this listener.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Metrics exposure
	MetricsEnabled  bool
	MetricsEndpoint string

	// Tracing middleware
	TelemetryEnabled bool
	ServiceName      string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     120 * time.Second,
		MetricsEnabled:  true,
		MetricsEndpoint: "/metrics",
		ServiceName:     "serveone",
	}
}

// API handles HTTP endpoints using the chi router
type API struct {
	config   Config
	router   *chi.Mux
	server   *http.Server
	hub      *hub.Hub
	store    *store.Store
	sessions auth.Provider
	stream   *stream.Handler
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewAPI creates a new API instance
func NewAPI(config Config, h *hub.Hub, st *store.Store, sessions auth.Provider) *API {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if config.MetricsEndpoint == "" {
		config.MetricsEndpoint = DefaultConfig().MetricsEndpoint
	}

	return &API{
		config:   config,
		hub:      h,
		store:    st,
		sessions: sessions,
		stream:   stream.NewHandler(h),
		logger:   logging.Component("api"),
		metrics:  metrics.GetMetrics(),
	}
}

// Routes builds (once) and returns the router, so tests can mount it on an
// httptest server without binding a real listener.
func (a *API) Routes() http.Handler {
	if a.router != nil {
		return a.router
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if a.config.TelemetryEnabled {
		r.Use(telemetry.HTTPMiddleware(a.config.ServiceName))
	}
	r.Use(logging.HTTPMiddleware())
	r.Use(a.requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware(a.sessions))

	r.Route("/api/restaurants/{restaurantID}", func(r chi.Router) {
		r.Get("/events", a.stream.ServeSSE)
		r.Get("/ws", a.stream.ServeWS)
		r.Get("/connections", a.handleConnectionCount)

		r.Post("/orders", a.handleCreateOrder)
		r.Patch("/orders/{orderID}/status", a.handleSetOrderStatus)
		r.Put("/categories", a.handleUpsertCategory)
		r.Post("/attendance/clock-in", a.handleClockIn)
		r.Put("/profile", a.handleUpdateProfile)
		r.Post("/qr-orders", a.handleCreateQROrder)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if a.config.MetricsEnabled {
		r.Handle(a.config.MetricsEndpoint, promhttp.Handler())
	}

	a.router = r
	return r
}

// Start runs the API server until the context is cancelled.
func (a *API) Start(ctx context.Context) error {
	a.logger.Info().Str("addr", a.config.Addr).Msg("Starting API server")

	server := &http.Server{
		Addr:         a.config.Addr,
		Handler:      a.Routes(),
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
	}
	a.server = server

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("API server error")
		}
	}()

	<-ctx.Done()
	return nil
}

// Shutdown stops the HTTP server
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	a.logger.Info().Msg("Shutting down API server")
	return a.server.Shutdown(ctx)
}

// requestMetrics records per-route counters and latency.
func (a *API) requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil && routeCtx.RoutePattern() != "" {
			route = routeCtx.RoutePattern()
		}
		a.metrics.APIRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		a.metrics.APIRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
