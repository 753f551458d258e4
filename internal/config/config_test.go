package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

// isolate points CONFIG_FILE at a file that does not exist.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "assets/json", cfg.DataDir)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "community-events.published", cfg.KafkaPublishTopic)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Equal(t, "de", cfg.MapboxLanguage)
	assert.Equal(t, "de", cfg.MapboxCountry)
	assert.InDelta(t, 0.5, cfg.MapboxMinRelevance, 0)
	assert.Equal(t, DefaultSettings(), cfg.Settings)
}

func TestLoad_CustomEnv(t *testing.T) {
	isolate(t)
	t.Setenv("DATA_DIR", "/srv/events/json")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_PUBLISH_TOPIC", "events-out")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/events/json", cfg.DataDir)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "events-out", cfg.KafkaPublishTopic)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	isolate(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidMapboxTimeout(t *testing.T) {
	isolate(t)
	t.Setenv("MAPBOX_TIMEOUT", "bad")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TIMEOUT")
}

func TestLoad_InvalidMapboxMinRelevance(t *testing.T) {
	for _, v := range []string{"high", "-0.1", "1.5"} {
		t.Run(v, func(t *testing.T) {
			isolate(t)
			t.Setenv("MAPBOX_MIN_RELEVANCE", v)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "MAPBOX_MIN_RELEVANCE")
		})
	}
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	isolate(t)
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	isolate(t)
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	isolate(t)
	t.Setenv("KAFKA_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_KafkaExplicitlyDisabled(t *testing.T) {
	isolate(t)
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("KAFKA_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_BadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("archive: [not, a, map]"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse settings")
}

func TestLoadSettings_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  name: Hof Kultur
map:
  center: {lat: 50.32, lon: 11.92}
filtering:
  max_distance_km: 40
validation:
  generic_location_names: [Hof, Selb]
review:
  similar_events_limit: 5
archive:
  retention_days: 14
scraping:
  sources:
    - name: stadt-hof
      url: https://www.hof.de/rss
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "Hof Kultur", s.App.Name)
	assert.Equal(t, "Hof, Bayern", s.App.Region, "unset keys keep defaults")
	assert.Equal(t, Point{Lat: 50.32, Lon: 11.92}, s.Map.Center)
	assert.Equal(t, 40.0, s.Filtering.MaxDistanceKm)
	assert.Equal(t, []string{"Hof", "Selb"}, s.Validation.GenericLocationNames)
	assert.Equal(t, 5, s.Review.SimilarEventsLimit)
	assert.Equal(t, 5, s.Review.SuggestionLimit)
	assert.Equal(t, 14, s.Archive.RetentionDays)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{"retention", "archive: {retention_days: 0}", "retention_days"},
		{"similar limit", "review: {similar_events_limit: -1}", "similar_events_limit"},
		{"distance", "filtering: {max_distance_km: -5}", "max_distance_km"},
		{"center", "map: {center: {lat: 95, lon: 0}}", "map.center"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadSettings(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}
