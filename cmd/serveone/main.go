package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/serveone/serveone/internal/config"
	"github.com/serveone/serveone/internal/engine"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	serverAddr := flag.String("addr", "", "HTTP server address (overrides config)")
	databaseURL := flag.String("database-url", "", "PostgreSQL connection URL (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// A missing .env file is not an error; env vars may come from the host.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configFile, *serverAddr, *databaseURL, *logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.CreateEngine(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Caught signal, initiating shutdown")
		cancel()
	}()

	if err := eng.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Engine exited with error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		os.Exit(1)
	}
}
