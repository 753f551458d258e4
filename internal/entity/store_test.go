package entity_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/couchcryptid/community-events/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	files   *jsonfile.Files
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(start)
	metrics := observability.NewMetricsForTesting()
	return fixture{
		files:   jsonfile.New(t.TempDir(), clock, observability.Discard(), metrics),
		clock:   clock,
		metrics: metrics,
	}
}

func (f fixture) locations(t *testing.T) *entity.Locations {
	t.Helper()
	s, err := entity.OpenLocations(f.files, observability.Discard(), f.metrics)
	require.NoError(t, err)
	return s
}

func (f fixture) organizers(t *testing.T) *entity.Organizers {
	t.Helper()
	s, err := entity.OpenOrganizers(f.files, observability.Discard(), f.metrics)
	require.NoError(t, err)
	return s
}

func newLocation(name string, lat, lon float64) domain.Location {
	return domain.Location{Entity: domain.Entity{Name: name}, Lat: lat, Lon: lon}
}

func ptr[T any](v T) *T { return &v }

func TestAdd_GetRoundTrip(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)

	in := newLocation("Theater Hof", 50.3195, 11.9172)
	in.Address = "Kulmbacher Str. 5, 95030 Hof"
	in.Aliases = []string{"Stadttheater"}
	added, err := store.Add(in)
	require.NoError(t, err)
	assert.Equal(t, "loc_theater_hof", added.ID)

	// A fresh store reads the same record back from disk.
	got, ok := f.locations(t).Get(added.ID)
	require.True(t, ok)
	if diff := cmp.Diff(added, got, cmpopts.IgnoreFields(domain.Entity{}, "UpdatedAt")); diff != "" {
		t.Errorf("round trip mismatch (-added +got):\n%s", diff)
	}
	assert.Equal(t, domain.NewTimestamp(start), got.CreatedAt)
}

func TestAdd_DuplicateName(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)

	_, err := store.Add(newLocation("Theater Hof", 50.3, 11.9))
	require.NoError(t, err)

	_, err = store.Add(newLocation("THEATER HOF", 50.3, 11.9))
	require.ErrorIs(t, err, domain.ErrDuplicateName)
	assert.Equal(t, 1, store.Len())
}

func TestAdd_CollisionSuffix(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)

	a, err := store.Add(newLocation("Theater-Hof", 0, 0))
	require.NoError(t, err)
	b, err := store.Add(newLocation("Theater Hof!", 0, 0))
	require.NoError(t, err)
	c, err := store.Add(newLocation("theater_hof", 0, 0))
	require.NoError(t, err)

	assert.Equal(t, "loc_theater_hof", a.ID)
	assert.Equal(t, "loc_theater_hof_2", b.ID)
	assert.Equal(t, "loc_theater_hof_3", c.ID)
}

func TestAdd_Invalid(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)

	_, err := store.Add(newLocation("  ", 50, 11))
	require.ErrorIs(t, err, domain.ErrInvalidEntity)

	_, err = store.Add(newLocation("Nordpol", 95, 0))
	require.ErrorIs(t, err, domain.ErrInvalidEntity)

	assert.NoFileExists(t, f.files.Path(jsonfile.LocationsFile))
}

func TestWrites_BackUpPreviousFile(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)

	loc, err := store.Add(newLocation("Theater Hof", 50.3, 11.9))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = store.Verify(loc.ID)
	require.NoError(t, err)

	backups, err := filepath.Glob(filepath.Join(f.files.Dir(), jsonfile.BackupDir, "locations_*.json"))
	require.NoError(t, err)
	require.Len(t, backups, 1, "the first add had nothing to back up")
	assert.Equal(t, "locations_20260114_090100.json", filepath.Base(backups[0]))

	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"verified": false`)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.BackupsWritten), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.EntityWrites.WithLabelValues("location", "verify")), 0)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	store := f.organizers(t)

	org, err := store.Add(domain.Organizer{Entity: domain.Entity{Name: "Kulturverein Hof e.V."}})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	updated, err := store.Update(org.ID, domain.EntityPatch{
		Website:    ptr("https://kulturverein-hof.de"),
		Email:      ptr("info@kulturverein-hof.de"),
		AddAliases: []string{"Kulturverein"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://kulturverein-hof.de", updated.Website)
	assert.Equal(t, "info@kulturverein-hof.de", updated.Email)
	assert.Equal(t, []string{"Kulturverein"}, updated.Aliases)
	assert.Equal(t, domain.NewTimestamp(start.Add(time.Hour)), updated.UpdatedAt)
	assert.Equal(t, org.CreatedAt, updated.CreatedAt)
}

func TestUpdate_Errors(t *testing.T) {
	f := newFixture(t)
	store := f.organizers(t)

	_, err := store.Update("org_nobody", domain.EntityPatch{Phone: ptr("1")})
	require.ErrorIs(t, err, domain.ErrNotFound)

	a, err := store.Add(domain.Organizer{Entity: domain.Entity{Name: "Freiheitshalle"}})
	require.NoError(t, err)
	_, err = store.Add(domain.Organizer{Entity: domain.Entity{Name: "Stadtbücherei"}})
	require.NoError(t, err)

	_, err = store.Update(a.ID, domain.EntityPatch{Name: ptr("stadtbücherei")})
	require.ErrorIs(t, err, domain.ErrDuplicateName)

	_, err = store.Update(a.ID, domain.EntityPatch{Email: ptr("not-an-email")})
	require.ErrorIs(t, err, domain.ErrInvalidEntity)

	got, _ := store.Get(a.ID)
	assert.Equal(t, "Freiheitshalle", got.Name, "failed updates leave the record alone")
	assert.Empty(t, got.Email)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)

	deleted, err := store.Delete("loc_missing")
	require.NoError(t, err)
	assert.False(t, deleted)

	loc, err := store.Add(newLocation("Galerie", 50.32, 11.91))
	require.NoError(t, err)
	deleted, err = store.Delete(loc.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok := f.locations(t).Get(loc.ID)
	assert.False(t, ok)
}

func TestMerge_Conservation(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)

	targetIn := newLocation("Theater Hof", 50.3195, 11.9172)
	targetIn.UsageCount = 5
	target, err := store.Add(targetIn)
	require.NoError(t, err)

	sourceIn := newLocation("Stadttheater Hof", 0, 0)
	sourceIn.UsageCount = 2
	sourceIn.Phone = "09281 7070"
	sourceIn.Verified = true
	sourceIn.Aliases = []string{"Theater Hof Großes Haus"}
	source, err := store.Add(sourceIn)
	require.NoError(t, err)

	merged, err := store.Merge(source.ID, target.ID)
	require.NoError(t, err)

	assert.Equal(t, 7, merged.UsageCount)
	assert.Contains(t, merged.Aliases, "Stadttheater Hof")
	assert.Contains(t, merged.Aliases, "Theater Hof Großes Haus")
	assert.Equal(t, "09281 7070", merged.Phone)
	assert.True(t, merged.Verified)
	assert.Equal(t, 50.3195, merged.Lat)

	_, ok := store.Get(source.ID)
	assert.False(t, ok)
	reloaded, ok := f.locations(t).Get(target.ID)
	require.True(t, ok)
	assert.Equal(t, 7, reloaded.UsageCount)
}

func TestMerge_Errors(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)
	loc, err := store.Add(newLocation("Galerie", 50.32, 11.91))
	require.NoError(t, err)

	_, err = store.Merge("loc_missing", loc.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Merge(loc.ID, "loc_missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Merge(loc.ID, loc.ID)
	require.ErrorIs(t, err, domain.ErrInvalidEntity)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)
	for _, name := range []string{"Theater Hof", "Hofer Filmtage Kino", "Hof", "Bürgergesellschaft"} {
		_, err := store.Add(newLocation(name, 50.3, 11.9))
		require.NoError(t, err)
	}
	_, err := store.Update("loc_b_rgergesellschaft", domain.EntityPatch{AddAliases: []string{"Hofer Bürgerhaus"}})
	require.NoError(t, err)

	names := func(recs []domain.Location) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.Name
		}
		return out
	}

	assert.Equal(t, []string{"Hof", "Bürgergesellschaft", "Hofer Filmtage Kino", "Theater Hof"}, names(store.Search("hof")))
	assert.Equal(t, []string{"Bürgergesellschaft"}, names(store.Search("BÜRGERHAUS")))
	assert.Empty(t, store.Search("Selb"))
	assert.Len(t, store.Search(""), 4)
}

func TestFindByName(t *testing.T) {
	f := newFixture(t)
	store := f.organizers(t)
	in := domain.Organizer{Entity: domain.Entity{Name: "Kulturverein Hof e.V.", Aliases: []string{"Kulturverein"}}}
	org, err := store.Add(in)
	require.NoError(t, err)

	got, ok := store.FindByName("kulturverein hof e.v.")
	require.True(t, ok)
	assert.Equal(t, org.ID, got.ID)

	got, ok = store.FindByName("KULTURVEREIN")
	require.True(t, ok)
	assert.Equal(t, org.ID, got.ID)

	_, ok = store.FindByName("Kultur")
	assert.False(t, ok)
}

func TestRecordUsage(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)
	loc, err := store.Add(newLocation("Galerie", 50.32, 11.91))
	require.NoError(t, err)

	n, err := store.RecordUsage(map[string]int{loc.ID: 3, "loc_unknown_venue": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := store.Get(loc.ID)
	assert.Equal(t, 3, got.UsageCount)
}

func TestObserve(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)
	known, err := store.Add(newLocation("Theater Hof", 50.3, 11.9))
	require.NoError(t, err)

	created, err := store.Observe([]domain.Location{
		{Entity: domain.Entity{Name: "theater hof"}},
		newLocation("Galerie Hof", 50.32, 11.91),
		{Entity: domain.Entity{Name: "   "}},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)

	got, _ := store.Get(known.ID)
	assert.Equal(t, 1, got.UsageCount)

	fresh, ok := store.Get(created[0])
	require.True(t, ok)
	assert.False(t, fresh.Verified)
	assert.Equal(t, 1, fresh.UsageCount)
	assert.Equal(t, "Galerie Hof", fresh.Name)
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	store := f.locations(t)
	for i, name := range []string{"A", "B", "C"} {
		loc := newLocation(name, 50.3, 11.9)
		loc.UsageCount = i
		if name == "B" {
			loc.Verified = true
			loc.Address = "Altstadt 1"
		}
		if name == "C" {
			loc.Lat, loc.Lon = 0, 0
		}
		_, err := store.Add(loc)
		require.NoError(t, err)
	}

	st := store.Statistics()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Verified)
	assert.Equal(t, 2, st.Unverified)
	assert.Equal(t, map[string]int{"address": 1, "coordinates": 2}, st.FieldCounts)
	require.Len(t, st.TopUsed, 3)
	assert.Equal(t, "C", st.TopUsed[0].Name)
	assert.Equal(t, "A", st.TopUsed[2].Name)
}

func TestOpen_ExistingFileFillsIDs(t *testing.T) {
	f := newFixture(t)
	path := f.files.Path(jsonfile.LocationsFile)
	require.NoError(t, os.WriteFile(path, []byte(`{
  "locations": {
    "loc_galerie": {"name": "Galerie", "lat": 50.32, "lon": 11.91, "verified": true,
                    "created_at": "2025-06-01T10:00:00", "updated_at": "2025-06-01T10:00:00"}
  },
  "last_updated": "2025-06-01T10:00:00",
  "total_count": 1
}`), 0o644))

	store := f.locations(t)
	assert.True(t, store.Exists())
	got, ok := store.Get("loc_galerie")
	require.True(t, ok)
	assert.Equal(t, "loc_galerie", got.ID)
	assert.Equal(t, []string{}, got.Aliases)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), got.CreatedAt.Time)
}
