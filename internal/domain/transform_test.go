package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEvent(t *testing.T) {
	raw := Event{
		Title:     "  Jazz   im  Park ",
		Source:    " rss_hof ",
		Category:  " Music ",
		StartTime: " 2026-01-20T18:00:00 ",
		Location:  &EventLocation{Name: " Theater   Hof "},
		Organizer: &EventOrganizer{Name: "Kulturverein  Hof"},
	}

	got := NormalizeEvent(raw)

	assert.Equal(t, "Jazz im Park", got.Title)
	assert.Equal(t, "rss_hof", got.Source)
	assert.Equal(t, "music", got.Category)
	assert.Equal(t, "2026-01-20T18:00:00", got.StartTime)
	assert.Equal(t, "Theater Hof", got.Location.Name)
	assert.Equal(t, "Kulturverein Hof", got.Organizer.Name)
	assert.Equal(t, StatusPending, got.Status)
	assert.True(t, strings.HasPrefix(got.ID, "evt_"))
	assert.Equal(t, " Theater   Hof ", raw.Location.Name, "input untouched")
}

func TestNormalizeEvent_KeepsExistingIDAndStatus(t *testing.T) {
	got := NormalizeEvent(Event{ID: " e1 ", Title: "x", Status: StatusPublished})
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, StatusPublished, got.Status)
}

func TestGenerateEventID_Deterministic(t *testing.T) {
	a := GenerateEventID("rss", "Jazz im Park", "2026-01-20T18:00:00")
	b := GenerateEventID("RSS", "jazz im park", "2026-01-20T18:00:00")
	c := GenerateEventID("rss", "Jazz im Park", "2026-01-21T18:00:00")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLinkReferences(t *testing.T) {
	t.Run("attaches both references", func(t *testing.T) {
		e := Event{Location: NewEventLocation("Theater Hof", 50.3, 11.9), Organizer: &EventOrganizer{Name: "Stadt Hof"}}
		r := LinkReferences(&e, false)
		assert.Equal(t, LinkResult{Location: true, Organizer: true}, r)
		assert.Equal(t, "loc_theater_hof", e.LocationID)
		assert.Equal(t, "org_stadt_hof", e.OrganizerID)
		require.NotNil(t, e.Location, "embedded copy kept")
	})

	t.Run("keeps existing reference without force", func(t *testing.T) {
		e := Event{LocationID: "loc_custom", Location: NewEventLocation("Theater Hof", 50.3, 11.9)}
		assert.False(t, LinkReferences(&e, false).Changed())
		assert.Equal(t, "loc_custom", e.LocationID)
	})

	t.Run("force recomputes", func(t *testing.T) {
		e := Event{LocationID: "loc_custom", Location: NewEventLocation("Theater Hof", 50.3, 11.9)}
		assert.True(t, LinkReferences(&e, true).Location)
		assert.Equal(t, "loc_theater_hof", e.LocationID)
		assert.False(t, LinkReferences(&e, true).Changed(), "second forced run is a no-op")
	})

	t.Run("nameless venue skipped", func(t *testing.T) {
		e := Event{Location: &EventLocation{}}
		assert.False(t, LinkReferences(&e, false).Changed())
		assert.Empty(t, e.LocationID)
	})
}

func TestLocationFromEmbedded(t *testing.T) {
	loc := LocationFromEmbedded(&EventLocation{
		Name:    "Theater Hof",
		Lat:     NewCoordinate(50.3),
		Lon:     NewCoordinate(11.9),
		Address: "Kulmbacher Str. 5, 95030 Hof",
	})

	want := Location{
		Entity: Entity{ID: "loc_theater_hof", Name: "Theater Hof", Address: "Kulmbacher Str. 5, 95030 Hof", Aliases: []string{}},
		Lat:    50.3,
		Lon:    11.9,
	}
	if diff := cmp.Diff(want, loc); diff != "" {
		t.Errorf("LocationFromEmbedded mismatch (-want +got):\n%s", diff)
	}
}

func TestOrganizerFromEmbedded(t *testing.T) {
	var o EventOrganizer
	require.NoError(t, json.Unmarshal([]byte(`{"name": "Stadt Hof", "email": "kultur@stadt-hof.de"}`), &o))

	org := OrganizerFromEmbedded(&o)
	assert.Equal(t, "org_stadt_hof", org.ID)
	assert.Equal(t, "kultur@stadt-hof.de", org.Email)
}
