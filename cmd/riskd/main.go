package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/urban-risk-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/urban-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/urban-risk-service/internal/adapter/mapbox"
	"github.com/couchcryptid/urban-risk-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/urban-risk-service/internal/config"
	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/couchcryptid/urban-risk-service/internal/observability"
	"github.com/couchcryptid/urban-risk-service/internal/pipeline"
	"github.com/couchcryptid/urban-risk-service/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	profile, err := config.ResolveProfile(cfg.RiskProfilePath, cfg.Dataset)
	if err != nil {
		logger.Error("failed to load risk profile", "path", cfg.RiskProfilePath, "error", err)
		os.Exit(1)
	}
	scorer, err := profile.Scorer()
	if err != nil {
		logger.Error("invalid risk profile", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := newSource(ctx, cfg, profile, metrics, logger)
	if err != nil {
		logger.Error("failed to create data source", "source", cfg.Source, "error", err)
		os.Exit(1)
	}

	// Nil loader disables publishing; keep the interface nil, not a nil *Writer.
	var loader pipeline.BatchLoader
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loader = writer
		metrics.SinkEnabled.Set(1)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	p := pipeline.New(src, scorer, loader, logger, metrics, pipeline.Settings{
		RefreshInterval: cfg.RefreshInterval,
		HistorySeed:     cfg.SyntheticSeed,
		HistoryPoints:   cfg.HistoryPoints,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	// Start HTTP server.
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh loop.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline stopped", "error", err)
			stop()
		}
	}()

	logger.Info("urban risk service started",
		"dataset", cfg.Dataset,
		"source", cfg.Source,
		"refresh_interval", cfg.RefreshInterval,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// newSource builds the configured data source. The remote source resolves
// profile cities first, geocoding any without coordinates when Mapbox is
// enabled.
func newSource(ctx context.Context, cfg *config.Config, profile *config.Profile, metrics *observability.Metrics, logger *slog.Logger) (pipeline.Source, error) {
	switch cfg.Source {
	case config.SourceSynthetic:
		src, err := source.NewSynthetic(cfg.Dataset, source.Options{
			Seed:       cfg.SyntheticSeed,
			Size:       cfg.SyntheticSize,
			Categories: cfg.SyntheticCategories,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("synthetic source enabled", "seed", cfg.SyntheticSeed, "size", cfg.SyntheticSize)
		return src, nil

	case config.SourceOpenMeteo:
		var geocoder domain.Geocoder
		if cfg.MapboxEnabled {
			client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
			geocoder = mapbox.NewCachedGeocoder(client, cfg.CacheSize)
			logger.Info("mapbox geocoding enabled", "timeout", cfg.MapboxTimeout)
		} else {
			logger.Info("mapbox geocoding disabled")
		}

		cities := domain.ResolveCities(ctx, profile.Cities, geocoder, logger)
		if len(cities) == 0 {
			return nil, fmt.Errorf("%w: no cities with coordinates to monitor", domain.ErrConfiguration)
		}

		client := openmeteo.NewClient(cfg.OpenMeteoURL, cfg.FetchTimeout, metrics, logger)
		fetcher := openmeteo.NewCachedFetcher(client, cfg.CacheSize, cfg.CacheTTL, nil, metrics)
		logger.Info("open-meteo source enabled",
			"cities", len(cities),
			"concurrency", cfg.FetchConcurrency,
			"cache_ttl", cfg.CacheTTL,
		)
		return openmeteo.NewSource(fetcher, cities, cfg.FetchTimeout, cfg.FetchConcurrency, logger), nil

	default:
		return nil, fmt.Errorf("%w: unknown source %q", domain.ErrConfiguration, cfg.Source)
	}
}
