package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"

	"github.com/Chichichkin/LogServer/internal/api"
	"github.com/Chichichkin/LogServer/internal/applog"
	"github.com/Chichichkin/LogServer/internal/config"
	"github.com/Chichichkin/LogServer/internal/ingest/tail"
	"github.com/Chichichkin/LogServer/internal/logging/queue"
	"github.com/Chichichkin/LogServer/internal/metrics"
	"github.com/Chichichkin/LogServer/internal/supervisor"
	"github.com/Chichichkin/LogServer/internal/writer"
)

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	applog.Init(cfg.Logging)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promCollectors, err := metrics.NewCollectors(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	tracker := metrics.NewTracker(
		metrics.WithTiers(cfg.Flush.Tiers),
		metrics.WithCollectors(promCollectors),
	)
	channels := config.NewChannels(cfg.Defaults, cfg.Channels)

	w := writer.New(afero.NewOsFs(), cfg.LogsDir, channels, tracker, writer.WithCollectors(promCollectors))
	if err := w.Init(); err != nil {
		return err
	}

	manager := queue.NewManager(w, tracker,
		queue.WithRetryPolicy(cfg.Flush.Retry),
		queue.WithCollectors(promCollectors),
	)

	handler := api.NewHandler(manager, channels, w, tracker, registry)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		RateLimitRequests: cfg.HTTP.RateLimitRequests,
		RateLimitWindow:   cfg.HTTP.RateLimitWindow,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
	})
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(slog.New(applog.NewSlogHandler()), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if len(cfg.Sources) > 0 {
		tree.AddIngestService(tail.NewService(tail.Config{
			Sources:      cfg.Sources,
			IngestConfig: cfg.Ingest,
		}, manager))
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applog.Info().
		Str("addr", server.Addr).
		Str("logs_dir", cfg.LogsDir).
		Int("sources", len(cfg.Sources)).
		Msg("Log server started")

	serveErr := tree.Serve(ctx)
	applog.Info().Msg("Shutting down, flushing queued entries")

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		applog.Warn().Int("services", len(report)).Msg("Some services did not stop in time")
	}

	drainQueue(manager)

	if serveErr != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor stopped: %w", serveErr)
	}
	return nil
}

type drainer interface {
	Shutdown() error
}

// drainQueue writes out what is still buffered. A failure is logged and does not
// change the exit status.
func drainQueue(q drainer) {
	if err := q.Shutdown(); err != nil {
		applog.Error().Err(err).Msg("Failed to flush queued entries on shutdown")
		return
	}
	applog.Info().Msg("Shutdown complete")
}
