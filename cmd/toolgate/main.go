// Command toolgate runs the tool-turn proxy in front of an Ollama server.
//
// It listens on the configured port, mediates POST /api/chat sessions and
// transparently proxies every other route upstream.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/toolgate/ollama-gateway/internal/config"
	"github.com/toolgate/ollama-gateway/internal/gateway"
	"github.com/toolgate/ollama-gateway/internal/monitoring"
	"github.com/toolgate/ollama-gateway/internal/runner"
	"github.com/toolgate/ollama-gateway/internal/tools"
	"github.com/toolgate/ollama-gateway/internal/upstream"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("toolgate: fatal")
		os.Exit(255)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	setupLogging(cfg.Verbosity)

	log.Debug().
		Int("listen_port", cfg.ListenPort).
		Str("upstream", cfg.UpstreamBaseURL()).
		Int("workers", cfg.Workers).
		Msg("toolgate: starting")

	registry, err := tools.NewRegistry(tools.DateTimeNow())
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	metrics := monitoring.NewMetricsCollector()
	hub := monitoring.NewEventHub(config.EventHubBuffer)
	pool := runner.NewPool(cfg.Workers)
	defer pool.Close()

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Telemetry.Enabled,
		LogPath:     filepath.Join(cfg.Telemetry.Dir, config.DefaultRequestLogFile),
		LogToStdout: cfg.Verbosity >= config.Debug,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = tracker.Close() }()

	var store *monitoring.EventStore
	if cfg.Telemetry.Enabled {
		store, err = monitoring.OpenEventStore(filepath.Join(cfg.Telemetry.Dir, config.DefaultEventDBFile))
		if err != nil {
			log.Warn().Err(err).Msg("toolgate: event store unavailable, continuing without it")
			store = nil
		} else {
			defer func() { _ = store.Close() }()
		}
	}

	gw, err := gateway.New(gateway.Options{
		Config:   cfg,
		Registry: registry,
		Client:   upstream.NewClient(cfg.UpstreamBaseURL()),
		Metrics:  metrics,
		Tracker:  tracker,
		Store:    store,
		Hub:      hub,
		Pool:     pool,
	})
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:      gw.Handler(),
		WriteTimeout: config.DefaultServerWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case sig := <-sigCh:
		log.Debug().Str("signal", sig.String()).Msg("toolgate: shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("toolgate: shutdown was not clean")
	}
	return nil
}
