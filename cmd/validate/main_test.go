package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/community-events/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeData(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return &config.Config{DataDir: dir, Settings: config.DefaultSettings()}
}

const validEvents = `{"events": [
  {"id": "e1", "title": "Jazz im Theater", "source": "rss", "status": "published",
   "start_time": "2026-03-01T19:30:00", "location": {"name": "Theater Hof", "lat": 50.3195, "lon": 11.9172},
   "location_id": "loc_theater_hof"}
]}`

const validLocations = `{"locations": {
  "loc_theater_hof": {"id": "loc_theater_hof", "name": "Theater Hof", "lat": 50.3195, "lon": 11.9172, "verified": true, "aliases": []}
}}`

func TestRun_Passes(t *testing.T) {
	cfg := writeData(t, map[string]string{
		"events.json":    validEvents,
		"locations.json": validLocations,
	})
	var out bytes.Buffer
	assert.Equal(t, 0, run(cfg, &out))
	assert.Contains(t, out.String(), "All validations passed.")
	assert.Contains(t, out.String(), "Records: 1 published, 0 pending, 1 locations, 0 organizers")
}

func TestRun_EmptyDirPasses(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 0, run(writeData(t, nil), &out))
}

func TestRun_ReportsEveryPhase(t *testing.T) {
	cfg := writeData(t, map[string]string{
		"events.json": validEvents,
		"pending_events.json": `{"pending_events": [
		  {"id": "e1", "title": "Jazz im Theater", "source": "rss", "start_time": "2026-03-01T19:30:00",
		   "location": {"name": "Theater Hof", "lat": 50.3195, "lon": 11.9172}},
		  {"id": "e2", "title": "X", "source": "rss", "start_time": "morgen", "organizer_id": "loc_verein"}
		]}`,
		"locations.json": `{"locations": {
		  "loc_theater_hof": {"id": "loc_theater_hof", "name": "Theater Hof", "lat": 95, "lon": 11.9},
		  "loc_stadttheater": {"id": "loc_stadttheater", "name": "theater hof", "lat": 50.3, "lon": 11.9},
		  "org_wrong": {"id": "org_wrong", "name": "Falsch", "lat": 50.3, "lon": 11.9}
		}}`,
	})
	var out bytes.Buffer
	assert.Equal(t, 1, run(cfg, &out))

	s := out.String()
	assert.Contains(t, s, "Validation FAILED.")
	assert.Contains(t, s, "event e2: title")
	assert.Contains(t, s, "outside [-90, 90]")
	assert.Contains(t, s, "already used by loc_stadttheater")
	assert.Contains(t, s, `location org_wrong: ID does not start with "loc_"`)
	assert.Contains(t, s, "organizer_id=loc_verein")
	assert.Contains(t, s, "event e1 is both published and pending")
}

func TestRun_DuplicatePublishedID(t *testing.T) {
	event := `{"id": "e1", "title": "Jazz im Theater", "source": "rss", "status": "published",
	   "start_time": "2026-03-01T19:30:00", "location": {"name": "Theater Hof", "lat": 50.3195, "lon": 11.9172}}`
	cfg := writeData(t, map[string]string{
		"events.json": `{"events": [` + event + `,` + event + `]}`,
	})
	var out bytes.Buffer
	assert.Equal(t, 1, run(cfg, &out))
	assert.Contains(t, out.String(), `event e1: id: duplicate ID "e1" in batch`)
}

func TestRun_MalformedFileIsFatal(t *testing.T) {
	cfg := writeData(t, map[string]string{"events.json": `{"events": [`})
	var out bytes.Buffer
	assert.Equal(t, 1, run(cfg, &out))
	assert.Contains(t, out.String(), "FATAL")
}
