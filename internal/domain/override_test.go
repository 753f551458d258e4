package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyLocation(t *testing.T) {
	override := map[string]json.RawMessage{"name": json.RawMessage(`"Theater Hof (Studio)"`)}

	tests := []struct {
		name     string
		event    Event
		expected OverridePattern
	}{
		{"reference only", Event{LocationID: "loc_theater_hof"}, PatternReferenceOnly},
		{"reference with embedded copy", Event{LocationID: "loc_theater_hof", Location: NewEventLocation("Theater Hof", 50.3, 11.9)}, PatternReferenceOnly},
		{"partial override", Event{LocationID: "loc_theater_hof", LocationOverride: override}, PatternPartialOverride},
		{"full override", Event{Location: NewEventLocation("Theater Hof", 50.3, 11.9)}, PatternFullOverride},
		{"needs migration", Event{}, PatternNeedsMigration},
		{"empty override is no override", Event{LocationID: "loc_x", LocationOverride: map[string]json.RawMessage{}}, PatternReferenceOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyLocation(tt.event))
		})
	}
}

func TestClassifyOrganizer(t *testing.T) {
	override := map[string]json.RawMessage{"email": json.RawMessage(`"tickets@hof.de"`)}

	assert.Equal(t, PatternReferenceOnly, ClassifyOrganizer(Event{}), "no organizer is valid")
	assert.Equal(t, PatternReferenceOnly, ClassifyOrganizer(Event{OrganizerID: "org_stadt_hof"}))
	assert.Equal(t, PatternPartialOverride, ClassifyOrganizer(Event{OrganizerID: "org_stadt_hof", OrganizerOverride: override}))
	assert.Equal(t, PatternFullOverride, ClassifyOrganizer(Event{Organizer: &EventOrganizer{Name: "Stadt Hof"}}))
}
