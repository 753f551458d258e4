package domain

// OverridePattern classifies how an event relates to a library entity.
type OverridePattern string

const (
	// PatternReferenceOnly: the event carries an *_id and no override.
	PatternReferenceOnly OverridePattern = "reference_only"
	// PatternPartialOverride: an *_id plus an *_override object with
	// event-specific field changes.
	PatternPartialOverride OverridePattern = "partial_override"
	// PatternFullOverride: an embedded object without an *_id.
	PatternFullOverride OverridePattern = "full_override"
	// PatternNeedsMigration: neither a reference nor embedded data.
	PatternNeedsMigration OverridePattern = "needs_migration"
)

// Patterns lists every pattern in report order.
var Patterns = []OverridePattern{
	PatternReferenceOnly,
	PatternPartialOverride,
	PatternFullOverride,
	PatternNeedsMigration,
}

// ClassifyLocation tags the event's location relationship.
func ClassifyLocation(e Event) OverridePattern {
	return classify(e.LocationID, len(e.LocationOverride) > 0, e.Location != nil, true)
}

// ClassifyOrganizer tags the event's organizer relationship. An event with
// no organizer at all is reference_only: organizers are optional, so there
// is nothing to migrate.
func ClassifyOrganizer(e Event) OverridePattern {
	return classify(e.OrganizerID, len(e.OrganizerOverride) > 0, e.Organizer != nil, false)
}

func classify(id string, hasOverride, embedded, required bool) OverridePattern {
	switch {
	case id != "" && hasOverride:
		return PatternPartialOverride
	case id != "":
		return PatternReferenceOnly
	case embedded:
		return PatternFullOverride
	case required:
		return PatternNeedsMigration
	default:
		return PatternReferenceOnly
	}
}
