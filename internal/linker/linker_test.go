package linker_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/couchcryptid/community-events/internal/linker"
	"github.com/couchcryptid/community-events/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const publishedFixture = `{
  "events": [
    {"id": "e1", "title": "Jazz im Theater", "source": "manual", "start_time": "2026-01-20T18:00:00",
     "location": {"name": "Theater Hof", "lat": 50.3195, "lon": 11.9172},
     "organizer": "Kulturverein Hof e.V."},
    {"id": "e2", "title": "Lesung", "source": "rss", "start_time": "2026-01-21T19:00:00",
     "location_id": "loc_stadtbuecherei", "location_override": {"name": "Stadtbücherei, Saal 2"}},
    {"id": "e3", "title": "Flohmarkt", "source": "rss", "start_time": "2026-01-22T08:00:00"}
  ],
  "last_updated": "2026-01-10T00:00:00Z"
}`

const pendingFixture = `{
  "pending_events": [
    {"id": "p1", "title": "Kinoabend", "source": "api", "start_time": "2026-01-23T20:00:00",
     "location": {"name": "Central Kino", "lat": 50.32, "lon": 11.92},
     "organizer": {"name": "Hofer Filmtage", "email": "info@hofer-filmtage.de"}}
  ]
}`

type fixture struct {
	files      *jsonfile.Files
	locations  *entity.Locations
	organizers *entity.Organizers
	linker     *linker.Linker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	logger := observability.Discard()
	files := jsonfile.New(t.TempDir(), clockwork.NewFakeClockAt(time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)), logger, metrics)
	writeFile(t, files, jsonfile.EventsFile, publishedFixture)
	writeFile(t, files, jsonfile.PendingFile, pendingFixture)

	return openFixture(t, files)
}

func openFixture(t *testing.T, files *jsonfile.Files) fixture {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	logger := observability.Discard()
	locations, err := entity.OpenLocations(files, logger, metrics)
	require.NoError(t, err)
	organizers, err := entity.OpenOrganizers(files, logger, metrics)
	require.NoError(t, err)
	return fixture{
		files:      files,
		locations:  locations,
		organizers: organizers,
		linker:     linker.New(files, locations, organizers, logger, metrics),
	}
}

func writeFile(t *testing.T, files *jsonfile.Files, name, content string) {
	t.Helper()
	path := files.Path(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAddReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.linker.AddReferences(ctx, false, false)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Events)
	assert.Equal(t, 2, stats.LocationRefs)
	assert.Equal(t, 2, stats.OrganizerRefs)
	assert.Equal(t, 2, stats.Modified)

	published, err := f.files.LoadEvents(jsonfile.Published)
	require.NoError(t, err)
	assert.Equal(t, "loc_theater_hof", published[0].LocationID)
	assert.Equal(t, "org_kulturverein_hof_e_v", published[0].OrganizerID)
	assert.Equal(t, "Theater Hof", published[0].LocationName(), "embedded copy stays")
	assert.Equal(t, "loc_stadtbuecherei", published[1].LocationID)

	assert.FileExists(t, f.files.Path(jsonfile.EventsFile)+".backup")
	assert.FileExists(t, f.files.Path(jsonfile.PendingFile)+".backup")

	raw, err := os.ReadFile(f.files.Path(jsonfile.EventsFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"organizer": "Kulturverein Hof e.V."`, "bare organizer strings are written back as strings")
}

func TestAddReferences_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.linker.AddReferences(ctx, false, false)
	require.NoError(t, err)
	before, err := os.ReadFile(f.files.Path(jsonfile.EventsFile))
	require.NoError(t, err)

	second, err := f.linker.AddReferences(ctx, false, false)
	require.NoError(t, err)
	assert.Zero(t, second.LocationRefs)
	assert.Zero(t, second.OrganizerRefs)
	assert.Zero(t, second.Modified)

	after, err := os.ReadFile(f.files.Path(jsonfile.EventsFile))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestAddReferences_DryRun(t *testing.T) {
	f := newFixture(t)

	stats, err := f.linker.AddReferences(context.Background(), true, false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Modified)

	raw, err := os.ReadFile(f.files.Path(jsonfile.EventsFile))
	require.NoError(t, err)
	assert.Equal(t, publishedFixture, string(raw))
	assert.NoFileExists(t, f.files.Path(jsonfile.EventsFile)+".backup")
}

func TestAddReferences_Force(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.files, jsonfile.EventsFile, `{"events": [
	  {"id": "e1", "title": "Jazz", "location_id": "loc_old", "location": {"name": "Theater Hof"}},
	  {"id": "e2", "title": "Jazz", "location_id": "loc_theater_hof", "location": {"name": "Theater Hof"}}
	]}`)
	writeFile(t, f.files, jsonfile.PendingFile, `{"pending_events": []}`)

	stats, err := f.linker.AddReferences(context.Background(), false, false)
	require.NoError(t, err)
	assert.Zero(t, stats.Modified, "existing references are kept without force")

	stats, err = f.linker.AddReferences(context.Background(), false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Modified, "only the stale reference changes")
}

func TestAddReferences_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.linker.AddReferences(ctx, false, false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTrackOverrides(t *testing.T) {
	f := newFixture(t)

	report, err := f.linker.TrackOverrides()
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalEvents)
	assert.Equal(t, linker.PatternCounts{
		domain.PatternReferenceOnly:   0,
		domain.PatternPartialOverride: 1,
		domain.PatternFullOverride:    2,
		domain.PatternNeedsMigration:  1,
	}, report.LocationPatterns)
	assert.Equal(t, 2, report.OrganizerPatterns[domain.PatternFullOverride])
	assert.Equal(t, 2, report.OrganizerPatterns[domain.PatternReferenceOnly], "no organizer is fine")
	assert.Zero(t, report.OrganizerPatterns[domain.PatternNeedsMigration])

	require.Len(t, report.PartialOverrides, 1)
	assert.Equal(t, "e2", report.PartialOverrides[0].EventID)
	assert.Equal(t, []string{"name"}, report.PartialOverrides[0].Fields)
	require.Len(t, report.NeedsMigration, 1)
	assert.Equal(t, "e3", report.NeedsMigration[0].EventID)

	assert.FileExists(t, f.files.Path(jsonfile.OverrideReportFile))
}

func TestValidateReferences(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.files, jsonfile.EventsFile, `{"events": [
	  {"id": "e1", "location_id": "loc_theater_hof", "organizer_id": "org_kulturverein_hof_e_v"},
	  {"id": "e2", "location_id": "loc_dangling"},
	  {"id": "e3", "location_id": "org_wrong_prefix", "organizer_id": "kulturverein"}
	]}`)
	_, err := f.locations.Add(domain.Location{Entity: domain.Entity{Name: "Theater Hof"}, Lat: 50.3, Lon: 11.9})
	require.NoError(t, err)
	_, err = f.organizers.Add(domain.Organizer{Entity: domain.Entity{Name: "Kulturverein Hof e.V."}})
	require.NoError(t, err)

	report, err := f.linker.ValidateReferences()
	require.NoError(t, err)

	assert.Equal(t, 5, report.Checked)
	assert.False(t, report.OK())
	require.Len(t, report.Errors, 2)
	assert.Equal(t, "e3", report.Errors[0].EventID)
	assert.Equal(t, "location_id", report.Errors[0].Field)
	assert.Equal(t, "organizer_id", report.Errors[1].Field)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "loc_dangling", report.Warnings[0].Reference)
}

func TestMigrate(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.files, filepath.Join(jsonfile.ArchiveDir, "202512.json"), `{"archived_events": [
	  {"id": "a1", "title": "Jazz im Dezember", "location": {"name": "Theater Hof", "lat": 50.3195, "lon": 11.9172}}
	]}`)

	stats, err := f.linker.Migrate(false)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Events)
	assert.Equal(t, 2, stats.Locations)
	assert.Equal(t, 2, stats.Organizers)

	theater, ok := f.locations.Get("loc_theater_hof")
	require.True(t, ok)
	assert.Equal(t, 2, theater.UsageCount)
	assert.False(t, theater.Verified)
	assert.Equal(t, 50.3195, theater.Lat)

	filmtage, ok := f.organizers.Get("org_hofer_filmtage")
	require.True(t, ok)
	assert.Equal(t, "info@hofer-filmtage.de", filmtage.Email)

	reopened := openFixture(t, f.files)
	assert.Equal(t, 2, reopened.locations.Len())
}

func TestMigrate_RefusesExistingLibrary(t *testing.T) {
	f := newFixture(t)
	_, err := f.locations.Add(domain.Location{Entity: domain.Entity{Name: "Galerie"}, Lat: 50.3, Lon: 11.9})
	require.NoError(t, err)

	_, err = f.linker.Migrate(false)
	require.ErrorIs(t, err, linker.ErrLibraryExists)

	stats, err := f.linker.Migrate(true)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Locations)
	_, ok := f.locations.Get("loc_galerie")
	assert.False(t, ok, "force replaces the library")
}
