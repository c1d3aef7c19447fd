// Command server runs the CI/CD pipeline drift-detection API, wiring
// configuration, storage, the baseline store and a detector strategy
// into an HTTP server, following backend/config-api/cmd/config-api's
// main.go shape.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/api"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/baseline"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/config"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/detector"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/normalizer"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	if err := normalizer.LoadKeywords("config/weights.yaml"); err != nil {
		logger.Warn("failed to load keyword overlay, using built-in defaults", "error", err)
	}

	baselines, err := baseline.NewStore(cfg.BaselineModelPath)
	if err != nil {
		logger.Error("failed to open baseline store", "error", err)
		os.Exit(1)
	}

	analysisStore, closeStore, err := newAnalysisStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open analysis store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	det := newDetector(cfg, logger)

	publisher := newPublisher(cfg, logger)

	srv := api.New(cfg, logger, analysisStore, baselines, det, prometheus.DefaultRegisterer, publisher)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("drift-detection api listening", "port", cfg.Port, "env", cfg.NodeEnv, "detector", cfg.DetectorBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func newAnalysisStore(cfg *config.Config, logger *slog.Logger) (store.AnalysisStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, using in-memory analysis store")
		return store.NewMemoryStore(256), func() {}, nil
	}

	pg, err := store.NewPostgresStore(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { _ = pg.Close() }, nil
}

func newDetector(cfg *config.Config, logger *slog.Logger) detector.Detector {
	if cfg.DetectorBackend == "external" && cfg.ExternalScorerURL != "" {
		logger.Info("using external anomaly scorer", "url", cfg.ExternalScorerURL)
		return detector.NewExternalDetector(cfg.ExternalScorerURL, cfg.ExternalScorerTimeout, cfg.ExternalScorerRetries, logger)
	}
	return detector.NewZScoreDetector()
}

func newPublisher(cfg *config.Config, logger *slog.Logger) api.EventPublisher {
	if cfg.NATSURL == "" {
		return api.NoopPublisher{}
	}
	conn, err := nats.Connect(cfg.NATSURL, nats.MaxReconnects(5))
	if err != nil {
		logger.Warn("failed to connect to NATS, falling back to no-op event publisher", "error", err)
		return api.NoopPublisher{}
	}
	return api.NewNATSPublisher(conn, logger)
}
