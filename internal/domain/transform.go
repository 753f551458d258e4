package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeEvent tidies a raw scraped or hand-entered event before it joins
// the pending queue: whitespace is trimmed and collapsed, the category is
// lowercased, a missing status becomes pending and a missing ID is derived
// from source, title and start time. The input is not modified.
func NormalizeEvent(e Event) Event {
	e = e.Clone()
	e.ID = strings.TrimSpace(e.ID)
	e.Title = collapseSpaces(e.Title)
	e.Source = strings.TrimSpace(e.Source)
	e.Category = strings.ToLower(strings.TrimSpace(e.Category))
	e.StartTime = strings.TrimSpace(e.StartTime)
	e.EndTime = strings.TrimSpace(e.EndTime)
	if e.Location != nil {
		e.Location.Name = collapseSpaces(e.Location.Name)
	}
	if e.Organizer != nil {
		e.Organizer.Name = collapseSpaces(e.Organizer.Name)
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.ID == "" && e.Title != "" {
		e.ID = GenerateEventID(e.Source, e.Title, e.StartTime)
	}
	return e
}

// GenerateEventID produces a deterministic event ID so that re-importing the
// same scrape yields the same key.
func GenerateEventID(source, title, startTime string) string {
	input := fmt.Sprintf("%s|%s|%s", strings.ToLower(source), strings.ToLower(title), startTime)
	hash := sha256.Sum256([]byte(input))
	return "evt_" + hex.EncodeToString(hash[:6])
}

// LinkResult reports which references LinkReferences attached or changed.
type LinkResult struct {
	Location  bool
	Organizer bool
}

// Changed reports whether any reference was written.
func (r LinkResult) Changed() bool { return r.Location || r.Organizer }

// LinkReferences derives location_id and organizer_id from the embedded
// objects. Existing references are kept unless force is set. The embedded
// objects stay in place so older readers keep working. Embedded objects
// without a name are skipped; a reference to loc_unknown helps nobody.
func LinkReferences(e *Event, force bool) LinkResult {
	var r LinkResult
	if e.Location != nil && e.Location.Name != "" && (e.LocationID == "" || force) {
		if id := EmbeddedLocationID(e.Location); id != e.LocationID {
			e.LocationID = id
			r.Location = true
		}
	}
	if e.Organizer != nil && e.Organizer.Name != "" && (e.OrganizerID == "" || force) {
		if id := GenerateOrganizerID(e.Organizer.Name); id != e.OrganizerID {
			e.OrganizerID = id
			r.Organizer = true
		}
	}
	return r
}

// EmbeddedLocationID derives the library key for an embedded venue.
func EmbeddedLocationID(l *EventLocation) string {
	lat, lon := l.Coordinates()
	if lat == nil || lon == nil {
		return GenerateLocationID(l.Name, nil, nil)
	}
	return GenerateLocationID(l.Name, lat, lon)
}

// LocationFromEmbedded builds an unverified library record from an event's
// embedded venue. Timestamps and usage are left to the caller.
func LocationFromEmbedded(l *EventLocation) Location {
	loc := Location{Entity: Entity{
		ID:      EmbeddedLocationID(l),
		Name:    l.Name,
		Address: l.Address,
		Aliases: []string{},
	}}
	if lat, lon := l.Coordinates(); lat != nil && lon != nil {
		loc.Lat, loc.Lon = *lat, *lon
	}
	return loc
}

// OrganizerFromEmbedded builds an unverified library record from an event's
// embedded organizer.
func OrganizerFromEmbedded(o *EventOrganizer) Organizer {
	org := Organizer{Entity: Entity{
		ID:      GenerateOrganizerID(o.Name),
		Name:    o.Name,
		Aliases: []string{},
	}}
	if v, ok := o.Extra["email"]; ok {
		org.Email = rawString(v)
	}
	if v, ok := o.Extra["website"]; ok {
		org.Website = rawString(v)
	}
	return org
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func rawString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}
