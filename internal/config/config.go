package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/urban-risk-service/internal/domain"
)

// Data source names accepted by SOURCE.
const (
	SourceSynthetic = "synthetic"
	SourceOpenMeteo = "openmeteo"
)

// DefaultOpenMeteoURL is the Open-Meteo air quality endpoint.
const DefaultOpenMeteoURL = "https://air-quality-api.open-meteo.com/v1/air-quality"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Dataset         string
	Source          string
	RiskProfilePath string
	RefreshInterval time.Duration
	HistoryPoints   int

	// Synthetic source configuration.
	SyntheticSeed       uint64
	SyntheticSize       int
	SyntheticCategories []string

	// Remote source configuration.
	OpenMeteoURL     string
	FetchTimeout     time.Duration
	FetchConcurrency int
	CacheTTL         time.Duration
	CacheSize        int

	// Kafka sink configuration.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Mapbox geocoding configuration.
	MapboxToken   string
	MapboxEnabled bool
	MapboxTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	seed, err := strconv.ParseUint(sharedcfg.EnvOrDefault("SYNTHETIC_SEED", "42"), 10, 64)
	if err != nil {
		return nil, errors.New("invalid SYNTHETIC_SEED")
	}
	size, err := parsePositiveInt("SYNTHETIC_SIZE", 100)
	if err != nil {
		return nil, err
	}
	concurrency, err := parsePositiveInt("FETCH_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	historyPoints, err := parsePositiveInt("HISTORY_POINTS", 30)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Dataset:         sharedcfg.EnvOrDefault("DATASET", domain.DatasetCity),
		Source:          sharedcfg.EnvOrDefault("SOURCE", SourceSynthetic),
		RiskProfilePath: os.Getenv("RISK_PROFILE_PATH"),
		RefreshInterval: refreshInterval,
		HistoryPoints:   historyPoints,

		SyntheticSeed:       seed,
		SyntheticSize:       size,
		SyntheticCategories: splitList(os.Getenv("SYNTHETIC_CATEGORIES")),

		OpenMeteoURL:     sharedcfg.EnvOrDefault("OPENMETEO_URL", DefaultOpenMeteoURL),
		FetchTimeout:     fetchTimeout,
		FetchConcurrency: concurrency,
		CacheTTL:         cacheTTL,
		CacheSize:        cacheSize,

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "scored-risk-records"),

		MapboxToken:   mapboxToken,
		MapboxEnabled: mapboxEnabled,
		MapboxTimeout: mapboxTimeout,
	}

	if _, ok := domain.SchemaFor(cfg.Dataset); !ok {
		return nil, fmt.Errorf("invalid DATASET %q", cfg.Dataset)
	}
	switch cfg.Source {
	case SourceSynthetic:
	case SourceOpenMeteo:
		if cfg.Dataset != domain.DatasetAirQuality {
			return nil, fmt.Errorf("SOURCE %q requires DATASET %q", SourceOpenMeteo, domain.DatasetAirQuality)
		}
	default:
		return nil, fmt.Errorf("invalid SOURCE %q", cfg.Source)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
