// Package service provides the shared worker lifecycle: environment
// loading, settings, logging, tracing, the bus connection, the metrics
// exporter, and signal-driven shutdown. Every hearth binary boots
// through Main so the fleet behaves uniformly.
package service

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/hearth/bus"
	"github.com/AltairaLabs/hearth/config"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/metrics"
	"github.com/AltairaLabs/hearth/telemetry"
	"github.com/AltairaLabs/hearth/version"
)

// shutdownTimeout bounds graceful teardown of HTTP servers and the
// trace exporter.
const shutdownTimeout = 15 * time.Second

// Runtime holds the shared pieces handed to a worker's run function.
type Runtime struct {
	Settings *config.Settings
	Bus      *bus.Client
	Exporter *metrics.Exporter
}

// RunFunc is a worker's main loop. It should block until ctx is
// canceled; returning early with an error aborts the process.
type RunFunc func(ctx context.Context, rt *Runtime) error

// Main boots a worker and runs fn until SIGINT/SIGTERM. It returns the
// process exit code.
func Main(name string, fn RunFunc) int {
	// A .env file is a development convenience; absence is normal.
	_ = godotenv.Load()

	settings, err := config.Load()
	if err != nil {
		logger.Error("settings_load_failed", "error", err)
		return 1
	}
	logger.Setup(name, settings.LogLevel, !settings.IsDevelopment())
	logger.Info("worker_starting", append([]any{"service", name}, version.BuildInfo()...)...)
	if err := version.Validate(version.Get()); err != nil {
		logger.Warn("build_version_invalid", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if settings.TracingEndpoint != "" {
		tp, err := telemetry.NewTracerProvider(ctx, settings.TracingEndpoint, name)
		if err != nil {
			logger.Error("tracing_setup_failed", "error", err)
			return 1
		}
		telemetry.SetupPropagation()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracing_shutdown_error", "error", err)
			}
		}()
	}

	b, err := bus.NewFromURL(ctx, settings.RedisURL)
	if err != nil {
		logger.Error("bus_connect_failed", "error", err)
		return 1
	}
	defer b.Close()
	metrics.SetComponentHealth("redis", true)

	rt := &Runtime{
		Settings: settings,
		Bus:      b,
		Exporter: metrics.NewExporter(settings.MetricsAddr),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := rt.Exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return rt.Exporter.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return fn(ctx, rt)
	})

	logger.Info("worker_started", "service", name, "metrics_addr", settings.MetricsAddr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_failed", "service", name, "error", err)
		return 1
	}
	logger.Info("worker_stopped", "service", name)
	return 0
}
