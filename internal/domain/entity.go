package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes the two entity libraries.
type Kind string

const (
	KindLocation  Kind = "location"
	KindOrganizer Kind = "organizer"
)

// ID prefixes per kind.
const (
	LocationPrefix  = "loc_"
	OrganizerPrefix = "org_"
)

// Prefix returns the ID prefix for the kind.
func (k Kind) Prefix() string {
	if k == KindOrganizer {
		return OrganizerPrefix
	}
	return LocationPrefix
}

// Collection returns the top-level key of the library file.
func (k Kind) Collection() string {
	return string(k) + "s"
}

// Entity holds the fields shared by locations and organizers.
type Entity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address,omitempty"`
	Verified    bool      `json:"verified"`
	Aliases     []string  `json:"aliases"`
	Phone       string    `json:"phone,omitempty"`
	Website     string    `json:"website,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
	UsageCount  int       `json:"usage_count"`
}

// Base returns the shared fields.
func (e *Entity) Base() *Entity { return e }

// Matches reports whether name equals the entity name or one of its aliases,
// ignoring case.
func (e *Entity) Matches(name string) bool {
	if strings.EqualFold(e.Name, name) {
		return true
	}
	for _, a := range e.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// AddAlias appends alias unless it duplicates the name or an existing alias.
func (e *Entity) AddAlias(alias string) {
	alias = strings.TrimSpace(alias)
	if alias == "" || e.Matches(alias) {
		return
	}
	e.Aliases = append(e.Aliases, alias)
}

func (e *Entity) applyPatch(p EntityPatch) {
	setIf(&e.Name, p.Name)
	setIf(&e.Address, p.Address)
	setIf(&e.Phone, p.Phone)
	setIf(&e.Website, p.Website)
	setIf(&e.Description, p.Description)
	if p.Verified != nil {
		e.Verified = *p.Verified
	}
	for _, a := range p.AddAliases {
		e.AddAlias(a)
	}
}

// absorb folds src into e: src's name and aliases become aliases, empty
// fields are filled, usage is summed and verification is OR-ed.
func (e *Entity) absorb(src *Entity) {
	e.AddAlias(src.Name)
	for _, a := range src.Aliases {
		e.AddAlias(a)
	}
	fillEmpty(&e.Address, src.Address)
	fillEmpty(&e.Phone, src.Phone)
	fillEmpty(&e.Website, src.Website)
	fillEmpty(&e.Description, src.Description)
	e.UsageCount += src.UsageCount
	e.Verified = e.Verified || src.Verified
	if !src.CreatedAt.IsZero() && (e.CreatedAt.IsZero() || src.CreatedAt.Before(e.CreatedAt.Time)) {
		e.CreatedAt = src.CreatedAt
	}
}

func (e *Entity) populated() []string {
	var out []string
	if e.Address != "" {
		out = append(out, "address")
	}
	if e.Phone != "" {
		out = append(out, "phone")
	}
	if e.Website != "" {
		out = append(out, "website")
	}
	if e.Description != "" {
		out = append(out, "description")
	}
	if len(e.Aliases) > 0 {
		out = append(out, "aliases")
	}
	return out
}

func (e *Entity) check() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntity)
	}
	if e.UsageCount < 0 {
		return fmt.Errorf("%w: usage_count must not be negative", ErrInvalidEntity)
	}
	return nil
}

// Location is a venue in the location library.
type Location struct {
	Entity
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Check validates the invariants of a stored location.
func (l *Location) Check() error {
	if err := l.check(); err != nil {
		return err
	}
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("%w: lat %g outside [-90, 90]", ErrInvalidEntity, l.Lat)
	}
	if l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("%w: lon %g outside [-180, 180]", ErrInvalidEntity, l.Lon)
	}
	return nil
}

// HasCoordinates reports whether the location carries a non-null position.
// Library files store null coordinates as 0, so (0, 0) reads as no position.
func (l *Location) HasCoordinates() bool {
	return l.Lat != 0 || l.Lon != 0
}

// GenerateID derives the library key from name and position.
func (l *Location) GenerateID() string {
	if !l.HasCoordinates() {
		return GenerateLocationID(l.Name, nil, nil)
	}
	return GenerateLocationID(l.Name, &l.Lat, &l.Lon)
}

// ApplyPatch merges the set fields of p onto the location.
func (l *Location) ApplyPatch(p EntityPatch) {
	l.applyPatch(p)
	if p.Lat != nil {
		l.Lat = *p.Lat
	}
	if p.Lon != nil {
		l.Lon = *p.Lon
	}
}

// Absorb merges src into l as described for Merge in the entity store.
func (l *Location) Absorb(src *Location) {
	l.absorb(&src.Entity)
	if !l.HasCoordinates() && src.HasCoordinates() {
		l.Lat, l.Lon = src.Lat, src.Lon
	}
}

// Populated lists the optional fields that hold a value.
func (l *Location) Populated() []string {
	out := l.populated()
	if l.HasCoordinates() {
		out = append(out, "coordinates")
	}
	return out
}

// Organizer is a group or person hosting events.
type Organizer struct {
	Entity
	Email string `json:"email,omitempty"`
}

// Check validates the invariants of a stored organizer.
func (o *Organizer) Check() error {
	if err := o.check(); err != nil {
		return err
	}
	if o.Email != "" && !strings.Contains(o.Email, "@") {
		return fmt.Errorf("%w: email %q has no @", ErrInvalidEntity, o.Email)
	}
	return nil
}

// GenerateID derives the library key from the organizer name.
func (o *Organizer) GenerateID() string {
	return GenerateOrganizerID(o.Name)
}

// ApplyPatch merges the set fields of p onto the organizer.
func (o *Organizer) ApplyPatch(p EntityPatch) {
	o.applyPatch(p)
	setIf(&o.Email, p.Email)
}

// Absorb merges src into o.
func (o *Organizer) Absorb(src *Organizer) {
	o.absorb(&src.Entity)
	fillEmpty(&o.Email, src.Email)
}

// Populated lists the optional fields that hold a value.
func (o *Organizer) Populated() []string {
	out := o.populated()
	if o.Email != "" {
		out = append(out, "email")
	}
	return out
}

// EntityPatch is a partial update. Nil fields are left untouched.
type EntityPatch struct {
	Name        *string
	Address     *string
	Phone       *string
	Website     *string
	Description *string
	Verified    *bool
	AddAliases  []string

	// Location only.
	Lat *float64
	Lon *float64

	// Organizer only.
	Email *string
}

// Empty reports whether the patch changes nothing.
func (p EntityPatch) Empty() bool {
	return p.Name == nil && p.Address == nil && p.Phone == nil && p.Website == nil &&
		p.Description == nil && p.Verified == nil && len(p.AddAliases) == 0 &&
		p.Lat == nil && p.Lon == nil && p.Email == nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func fillEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Timestamp is a point in time stored as RFC 3339. Naive ISO-8601 values
// written by older tooling are read as UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	*t = NewTimestamp(parsed)
	return nil
}
