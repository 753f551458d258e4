package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Status is the editorial lifecycle state of an event.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
	StatusArchived  Status = "archived"
)

// Extra keys written by the editorial workflow.
const (
	KeyRejectedAt      = "rejected_at"
	KeyRejectionReason = "rejection_reason"
	KeyPublishedAt     = "published_at"
	KeyArchivedAt      = "archived_at"
)

// Event is a community event as stored in the event files. Keys the type
// does not model are preserved in Extra and written back unchanged.
type Event struct {
	ID                string
	Title             string
	Description       string
	Location          *EventLocation
	LocationID        string
	LocationOverride  map[string]json.RawMessage
	Organizer         *EventOrganizer
	OrganizerID       string
	OrganizerOverride map[string]json.RawMessage
	StartTime         string
	EndTime           string
	URL               string
	Category          string
	Source            string
	Status            Status

	Extra map[string]json.RawMessage

	malformed []string
}

func (e *Event) fields() []field {
	return []field{
		{"id", &e.ID},
		{"title", &e.Title},
		{"description", &e.Description},
		{"location", &e.Location},
		{"location_id", &e.LocationID},
		{"location_override", &e.LocationOverride},
		{"organizer", &e.Organizer},
		{"organizer_id", &e.OrganizerID},
		{"organizer_override", &e.OrganizerOverride},
		{"start_time", &e.StartTime},
		{"end_time", &e.EndTime},
		{"url", &e.URL},
		{"category", &e.Category},
		{"source", &e.Source},
		{"status", &e.Status},
	}
}

// UnmarshalJSON decodes an event object without failing on mistyped fields.
func (e *Event) UnmarshalJSON(data []byte) error {
	*e = Event{}
	extra, malformed, err := decodeObject(data, e.fields())
	if err != nil {
		return err
	}
	e.Extra = extra
	e.malformed = malformed
	return nil
}

// MarshalJSON encodes the typed fields merged over the preserved extras.
func (e Event) MarshalJSON() ([]byte, error) {
	return encodeObject(e.Extra, e.fields())
}

// Malformed reports whether the named top-level key was present with a JSON
// type that the event model could not accept.
func (e Event) Malformed(key string) bool {
	return slices.Contains(e.malformed, key)
}

// Has reports whether the top-level key was present in the source document,
// regardless of whether it decoded.
func (e Event) Has(key string) bool {
	for _, f := range e.fields() {
		if f.name == key && !isEmpty(f.target) {
			return true
		}
	}
	v, ok := e.Extra[key]
	return ok && !isNull(v)
}

// ExtraString returns a preserved string value, or "" when absent or not a string.
func (e Event) ExtraString(key string) string {
	v, ok := e.Extra[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// SetExtra stores an arbitrary JSON value under key.
func (e *Event) SetExtra(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if e.Extra == nil {
		e.Extra = make(map[string]json.RawMessage)
	}
	e.Extra[key] = b
	return nil
}

// Clone returns a deep copy.
func (e Event) Clone() Event {
	c := e
	c.Extra = cloneRaw(e.Extra)
	c.LocationOverride = cloneRaw(e.LocationOverride)
	c.OrganizerOverride = cloneRaw(e.OrganizerOverride)
	c.malformed = slices.Clone(e.malformed)
	if e.Location != nil {
		l := e.Location.clone()
		c.Location = &l
	}
	if e.Organizer != nil {
		o := *e.Organizer
		o.Extra = cloneRaw(e.Organizer.Extra)
		c.Organizer = &o
	}
	return c
}

// LocationName returns the embedded location name, or "".
func (e Event) LocationName() string {
	if e.Location == nil {
		return ""
	}
	return e.Location.Name
}

// OrganizerName returns the embedded organizer name, or "".
func (e Event) OrganizerName() string {
	if e.Organizer == nil {
		return ""
	}
	return e.Organizer.Name
}

// Start parses StartTime.
func (e Event) Start() (time.Time, error) {
	return ParseTime(e.StartTime)
}

// EventLocation is the venue copy embedded in an event.
type EventLocation struct {
	Name        string
	Lat         *Coordinate
	Lon         *Coordinate
	Address     string
	NeedsReview bool

	Extra map[string]json.RawMessage

	malformed []string
}

func (l *EventLocation) fields() []field {
	return []field{
		{"name", &l.Name},
		{"lat", &l.Lat},
		{"lon", &l.Lon},
		{"address", &l.Address},
		{"needs_review", &l.NeedsReview},
	}
}

// UnmarshalJSON decodes a location object; a non-object value is an error.
func (l *EventLocation) UnmarshalJSON(data []byte) error {
	*l = EventLocation{}
	extra, malformed, err := decodeObject(data, l.fields())
	if err != nil {
		return err
	}
	l.Extra = extra
	l.malformed = malformed
	return nil
}

// MarshalJSON encodes the typed fields merged over the preserved extras.
func (l EventLocation) MarshalJSON() ([]byte, error) {
	return encodeObject(l.Extra, l.fields())
}

// Malformed reports whether the named key held a value of the wrong JSON type.
func (l EventLocation) Malformed(key string) bool {
	return slices.Contains(l.malformed, key)
}

// Coordinates returns the numeric latitude and longitude, nil where missing
// or not a number.
func (l EventLocation) Coordinates() (lat, lon *float64) {
	if v, ok := l.Lat.Float(); ok {
		lat = &v
	}
	if v, ok := l.Lon.Float(); ok {
		lon = &v
	}
	return lat, lon
}

func (l EventLocation) clone() EventLocation {
	c := l
	c.Extra = cloneRaw(l.Extra)
	c.malformed = slices.Clone(l.malformed)
	return c
}

// NewEventLocation builds an embedded location with numeric coordinates.
func NewEventLocation(name string, lat, lon float64) *EventLocation {
	return &EventLocation{Name: name, Lat: NewCoordinate(lat), Lon: NewCoordinate(lon)}
}

// EventOrganizer is the organizer copy embedded in an event. Scrapers emit
// either an object or a bare name string; the original form is written back.
type EventOrganizer struct {
	Name  string
	Extra map[string]json.RawMessage

	bare bool
}

func (o *EventOrganizer) fields() []field {
	return []field{{"name", &o.Name}}
}

func (o *EventOrganizer) UnmarshalJSON(data []byte) error {
	*o = EventOrganizer{}
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '"' {
		o.bare = true
		return json.Unmarshal(t, &o.Name)
	}
	extra, _, err := decodeObject(data, o.fields())
	if err != nil {
		return err
	}
	o.Extra = extra
	return nil
}

func (o EventOrganizer) MarshalJSON() ([]byte, error) {
	if o.bare && len(o.Extra) == 0 {
		return json.Marshal(o.Name)
	}
	return encodeObject(o.Extra, o.fields())
}

// Coordinate is a latitude or longitude value as found in the source JSON.
// It keeps the raw token so a string or boolean can be reported instead of
// silently decoded.
type Coordinate struct {
	raw json.RawMessage
}

// NewCoordinate wraps a numeric value.
func NewCoordinate(v float64) *Coordinate {
	return &Coordinate{raw: strconv.AppendFloat(nil, v, 'f', -1, 64)}
}

// Float returns the numeric value and whether the raw token was a JSON number.
func (c *Coordinate) Float() (float64, bool) {
	if c == nil || len(c.raw) == 0 {
		return 0, false
	}
	t := strings.TrimSpace(string(c.raw))
	if t == "" || (t[0] != '-' && (t[0] < '0' || t[0] > '9')) {
		return 0, false
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	if len(c.raw) == 0 {
		return []byte("null"), nil
	}
	return c.raw, nil
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	c.raw = append(json.RawMessage(nil), data...)
	return nil
}

// ParseTime parses an ISO-8601 datetime. A trailing Z or numeric offset is
// honored; naive values are read as UTC. Date-only values mean midnight.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}
