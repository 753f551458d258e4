package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all desk settings. Process-level values come from environment
// variables; editorial settings come from the YAML file named by CONFIG_FILE.
type Config struct {
	DataDir         string
	ConfigFile      string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Publication feed.
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaPublishTopic string

	// Mapbox geocoding configuration.
	MapboxToken        string
	MapboxEnabled      bool
	MapboxTimeout      time.Duration
	MapboxCacheSize    int
	MapboxLanguage     string
	MapboxCountry      string
	MapboxMinRelevance float64

	Settings Settings
}

// Load reads configuration from environment variables, applying defaults
// where unset, then loads the settings file.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeoutStr := sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s")
	mapboxTimeout, err := time.ParseDuration(mapboxTimeoutStr)
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	minRelevance, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MAPBOX_MIN_RELEVANCE", "0.5"), 64)
	if err != nil || minRelevance < 0 || minRelevance > 1 {
		return nil, errors.New("invalid MAPBOX_MIN_RELEVANCE")
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DataDir:         sharedcfg.EnvOrDefault("DATA_DIR", "assets/json"),
		ConfigFile:      sharedcfg.EnvOrDefault("CONFIG_FILE", "config.yaml"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", "127.0.0.1:8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:      kafkaEnabled,
		KafkaBrokers:      brokers,
		KafkaPublishTopic: sharedcfg.EnvOrDefault("KAFKA_PUBLISH_TOPIC", "community-events.published"),

		MapboxToken:        mapboxToken,
		MapboxEnabled:      mapboxEnabled,
		MapboxTimeout:      mapboxTimeout,
		MapboxCacheSize:    parseMapboxCacheSize(),
		MapboxLanguage:     sharedcfg.EnvOrDefault("MAPBOX_LANGUAGE", "de"),
		MapboxCountry:      sharedcfg.EnvOrDefault("MAPBOX_COUNTRY", "de"),
		MapboxMinRelevance: minRelevance,
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaPublishTopic == "" {
		return nil, errors.New("KAFKA_PUBLISH_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	settings, err := LoadSettings(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings

	return cfg, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
