package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/smartproduce/weather-etl/internal/config"
	"github.com/smartproduce/weather-etl/internal/observability"
	"github.com/smartproduce/weather-etl/internal/pipeline"
	"github.com/smartproduce/weather-etl/internal/provider"
	"github.com/smartproduce/weather-etl/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	providers, err := provider.Build(cfg, logger)
	if err != nil {
		logger.Error("failed to build providers", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting update run",
		"providers", len(providers), "lat", cfg.Latitude, "lon", cfg.Longitude)

	// Providers run sequentially; one failure never blocks the rest.
	failed := 0
	for _, p := range providers {
		st := store.New(filepath.Join(cfg.DataDir, p.StoreFile),
			p.TimeColumn, p.TimeLayout, p.Fields, p.Name)
		runner := pipeline.NewRunner(p, st, logger, metrics)

		result, err := runner.Run(ctx)
		if err != nil {
			logger.Error("provider run failed", "provider", p.Name, "error", err)
			metrics.RunsTotal.WithLabelValues(p.Name, "failed").Inc()
			failed++
			continue
		}
		switch result.Status {
		case pipeline.StatusUpdated:
			logger.Info("provider updated",
				"provider", p.Name, "new_rows", result.NewRows, "fetched", result.RowsFetched)
			metrics.RunsTotal.WithLabelValues(p.Name, "updated").Inc()
		case pipeline.StatusNothingToDo:
			logger.Info("provider already current", "provider", p.Name)
			metrics.RunsTotal.WithLabelValues(p.Name, "nothing_to_do").Inc()
		}
	}

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(cfg.PushgatewayURL, "weather_etl_update"); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}

	if failed > 0 {
		logger.Error("update run finished with failures", "failed", failed)
		os.Exit(1)
	}
	logger.Info("update run finished")
}
