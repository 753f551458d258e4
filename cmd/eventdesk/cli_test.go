package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// desk runs eventdesk against a temporary data directory.
type desk struct {
	t     *testing.T
	dir   string
	clock *clockwork.FakeClock
}

func newDesk(t *testing.T) *desk {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.yaml"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("MAPBOX_TOKEN", "")
	t.Setenv("MAPBOX_ENABLED", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_ENABLED", "")
	return &desk{t: t, dir: dir, clock: clockwork.NewFakeClockAt(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func (d *desk) run(args ...string) result {
	d.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, d.clock)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (d *desk) ok(args ...string) string {
	d.t.Helper()
	r := d.run(args...)
	require.Equal(d.t, 0, r.code, "%v failed: %s", args, r.stderr)
	return r.stdout
}

func (d *desk) writeFile(name, content string) string {
	d.t.Helper()
	path := filepath.Join(d.t.TempDir(), name)
	require.NoError(d.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLocationsLifecycle(t *testing.T) {
	d := newDesk(t)

	out := d.ok("locations", "add", "Theater Hof", "--lat", "50.3195", "--lon", "11.9172", "--alias", "Stadttheater")
	assert.Contains(t, out, "Added loc_theater_hof (Theater Hof)")

	out = d.ok("locations", "add", "Freiheitshalle")
	assert.Contains(t, out, "No coordinates")

	r := d.run("locations", "add", "theater hof")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "❌ Error:")

	out = d.ok("locations", "search", "stadt")
	assert.Contains(t, out, "loc_theater_hof")

	d.ok("locations", "verify", "loc_theater_hof")
	out = d.ok("locations", "list", "--verified")
	assert.Contains(t, out, "loc_theater_hof")
	assert.NotContains(t, out, "loc_freiheitshalle")

	d.ok("locations", "edit", "loc_freiheitshalle", "--address", "Kulmbacher Str. 3, Hof")
	r = d.run("locations", "edit", "loc_freiheitshalle")
	assert.Equal(t, 1, r.code, "empty edit is refused")

	out = d.ok("locations", "merge", "loc_freiheitshalle", "loc_theater_hof")
	assert.Contains(t, out, "Freiheitshalle")

	var st entity.Stats
	require.NoError(t, json.Unmarshal([]byte(d.ok("locations", "stats", "--format", "json")), &st))
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Verified)

	d.ok("locations", "delete", "loc_theater_hof")
	r = d.run("locations", "delete", "loc_theater_hof")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "not found")
}

func TestLocationsGeocodeNeedsToken(t *testing.T) {
	d := newDesk(t)
	r := d.run("locations", "geocode")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "MAPBOX_TOKEN")
}

func TestOrganizers(t *testing.T) {
	d := newDesk(t)

	out := d.ok("organizers", "add", "Kulturverein Hof", "--email", "info@kulturverein-hof.de")
	assert.Contains(t, out, "org_kulturverein_hof")

	r := d.run("organizers", "add", "Ohne Post", "--email", "kaputt")
	assert.Equal(t, 1, r.code)

	d.ok("organizers", "edit", "org_kulturverein_hof", "--website", "https://kulturverein-hof.de")
	var orgs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(d.ok("organizers", "list", "--format", "json")), &orgs))
	require.Len(t, orgs, 1)
	assert.Equal(t, "https://kulturverein-hof.de", orgs[0]["website"])
}

const scrape = `[
  {"id": "jazz", "title": "Jazz im Theater", "source": "rss", "start_time": "2026-03-01T19:30:00",
   "location": {"name": "Theater Hof", "lat": 50.3195, "lon": 11.9172},
   "organizer": {"name": "Kulturverein Hof"}},
  {"id": "short", "title": "Ab", "source": "rss", "start_time": "2026-03-02T10:00:00",
   "location": {"name": "Altstadt", "lat": 50.32, "lon": 11.91}},
  {"id": "silvester", "title": "Silvesterkonzert", "source": "rss", "start_time": "2025-12-31T20:00:00",
   "location": {"name": "Freiheitshalle", "lat": 50.3141, "lon": 11.9125}}
]`

func TestEventsWorkflow(t *testing.T) {
	d := newDesk(t)
	path := d.writeFile("rss.json", scrape)

	out := d.ok("events", "import", path)
	assert.Contains(t, out, "3 received: 3 queued, 0 duplicates skipped")
	assert.Contains(t, out, "1 queued events have validation errors")

	out = d.ok("events", "import", path)
	assert.Contains(t, out, "0 queued, 3 duplicates skipped")

	r := d.run("events", "validate", "--file", "pending")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stdout, "short: title")
	assert.Contains(t, r.stderr, "❌ Error: validation failed")

	r = d.run("events", "approve", "short")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stdout, "blocking validation errors")

	assert.Contains(t, d.ok("events", "approve", "jazz"), "Published jazz")
	assert.Contains(t, d.ok("events", "reject", "short", "--reason", "zu kurz"), "Rejected short")

	out = d.ok("events", "publish-all")
	assert.Contains(t, out, "1 published, 0 held back")

	d.ok("events", "validate")

	out = d.ok("events", "archive", "--retention-days", "30")
	assert.Contains(t, out, "1 archived, 1 still active")
	assert.Contains(t, out, "202512: 1 added")
	assert.FileExists(t, filepath.Join(d.dir, "events", "archived", "202512.json"))
}

func TestEntitiesCommands(t *testing.T) {
	d := newDesk(t)
	require.NoError(t, os.WriteFile(filepath.Join(d.dir, "events.json"), []byte(`{"events": [
	  {"id": "e1", "title": "Lesung", "location": {"name": "Stadtbücherei", "lat": 50.32, "lon": 11.92}, "organizer": "Bücherfreunde"}
	]}`), 0o644))

	out := d.ok("entities", "add-references", "--dry-run")
	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "1 location and 1 organizer references added")

	out = d.ok("entities", "migrate")
	assert.Contains(t, out, "1 events scanned: 1 locations, 1 organizers")

	r := d.run("entities", "migrate")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "library already exists")

	d.ok("entities", "add-references")
	assert.FileExists(t, filepath.Join(d.dir, "events.json.backup"))
	out = d.ok("entities", "add-references")
	assert.Contains(t, out, "0 location and 0 organizer references added")

	out = d.ok("entities", "validate")
	assert.Contains(t, out, "All references are well formed")

	var report struct {
		TotalEvents int `json:"total_events"`
	}
	require.NoError(t, json.Unmarshal([]byte(d.ok("entities", "track-overrides", "--format", "json")), &report))
	assert.Equal(t, 1, report.TotalEvents)
	assert.FileExists(t, filepath.Join(d.dir, "entity_override_report.json"))

	r = d.run("entities", "track-overrides", "--format", "xml")
	assert.Equal(t, 1, r.code)
}

func TestEntitiesValidateFindsBadReference(t *testing.T) {
	d := newDesk(t)
	require.NoError(t, os.WriteFile(filepath.Join(d.dir, "events.json"), []byte(`{"events": [
	  {"id": "e1", "title": "Lesung", "location_id": "org_falsch"}
	]}`), 0o644))

	r := d.run("entities", "validate")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stdout, "org_falsch")
}

func TestReview(t *testing.T) {
	d := newDesk(t)
	d.ok("events", "import", d.writeFile("rss.json", scrape))

	d.ok("review", "note", "jazz", "Ticketpreis", "prüfen", "--author", "mk")
	var c struct {
		Event struct {
			ID string `json:"id"`
		} `json:"event"`
		Notes []struct {
			Text   string `json:"text"`
			Author string `json:"author"`
		} `json:"notes"`
	}
	require.NoError(t, json.Unmarshal([]byte(d.ok("review", "show", "jazz", "--format", "json")), &c))
	assert.Equal(t, "jazz", c.Event.ID)
	require.Len(t, c.Notes, 1)
	assert.Equal(t, "Ticketpreis prüfen", c.Notes[0].Text)
	assert.Equal(t, "mk", c.Notes[0].Author)

	out := d.ok("review", "show", "short")
	assert.Contains(t, out, "Blocking errors")

	r := d.run("review", "show", "missing")
	assert.Equal(t, 1, r.code)
}

func TestVerboseShowsErrorChain(t *testing.T) {
	d := newDesk(t)
	r := d.run("--verbose", "locations", "verify", "loc_nope")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "❌ Error:")
	assert.Contains(t, r.stderr, "caused by:")
}

func TestInvalidConfig(t *testing.T) {
	d := newDesk(t)
	t.Setenv("MAPBOX_ENABLED", "true")
	r := d.run("locations", "list")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "MAPBOX_TOKEN")
}
