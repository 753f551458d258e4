// Package linker connects events to the entity libraries: it attaches
// location_id and organizer_id references, classifies how each event uses
// them, checks that references resolve and seeds the libraries from the
// embedded copies.
package linker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/couchcryptid/community-events/internal/observability"
	"github.com/couchcryptid/community-events/internal/validation"
)

// ErrLibraryExists is returned by Migrate when a library file is already
// present and force is not set.
var ErrLibraryExists = errors.New("library already exists")

// Linker operates on the published and pending event files.
type Linker struct {
	files      *jsonfile.Files
	locations  *entity.Locations
	organizers *entity.Organizers
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Linker.
func New(files *jsonfile.Files, locations *entity.Locations, organizers *entity.Organizers, logger *slog.Logger, metrics *observability.Metrics) *Linker {
	return &Linker{
		files:      files,
		locations:  locations,
		organizers: organizers,
		logger:     logger,
		metrics:    metrics,
	}
}

// activeLists are the event files the linker rewrites.
var activeLists = []jsonfile.EventList{jsonfile.Published, jsonfile.Pending}

// FileStats counts one file's share of an AddReferences run.
type FileStats struct {
	File          string `json:"file"`
	Events        int    `json:"events"`
	LocationRefs  int    `json:"location_refs"`
	OrganizerRefs int    `json:"organizer_refs"`
	Modified      int    `json:"modified"`
	Backup        string `json:"backup,omitempty"`
}

// AddStats summarizes an AddReferences run.
type AddStats struct {
	DryRun        bool        `json:"dry_run"`
	Events        int         `json:"events"`
	LocationRefs  int         `json:"location_refs"`
	OrganizerRefs int         `json:"organizer_refs"`
	Modified      int         `json:"modified"`
	Files         []FileStats `json:"files"`
}

// AddReferences attaches location_id and organizer_id to events that embed
// a location or organizer and have no reference yet, or to all of them with
// force. Embedded objects are left in place. Unless dryRun is set, a file
// with changes is copied to <file>.backup and then rewritten. A second run
// without force finds nothing to do.
func (l *Linker) AddReferences(ctx context.Context, dryRun, force bool) (AddStats, error) {
	stats := AddStats{DryRun: dryRun, Files: []FileStats{}}
	for _, list := range activeLists {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		fs, err := l.addReferences(list, dryRun, force)
		if err != nil {
			return stats, err
		}
		stats.Events += fs.Events
		stats.LocationRefs += fs.LocationRefs
		stats.OrganizerRefs += fs.OrganizerRefs
		stats.Modified += fs.Modified
		stats.Files = append(stats.Files, fs)
	}
	l.logger.Info("references added",
		"dry_run", dryRun,
		"force", force,
		"events", stats.Events,
		"location_refs", stats.LocationRefs,
		"organizer_refs", stats.OrganizerRefs,
	)
	return stats, nil
}

func (l *Linker) addReferences(list jsonfile.EventList, dryRun, force bool) (FileStats, error) {
	fs := FileStats{File: list.File}
	events, err := l.files.LoadEvents(list)
	if err != nil {
		return fs, err
	}
	fs.Events = len(events)
	for i := range events {
		r := domain.LinkReferences(&events[i], force)
		if r.Location {
			fs.LocationRefs++
		}
		if r.Organizer {
			fs.OrganizerRefs++
		}
		if r.Changed() {
			fs.Modified++
		}
	}
	if dryRun || fs.Modified == 0 {
		return fs, nil
	}

	backup, err := l.files.BackupSibling(list.File)
	if err != nil {
		return fs, err
	}
	fs.Backup = backup
	if err := l.files.SaveEvents(list, events); err != nil {
		return fs, err
	}
	l.metrics.ReferencesAdded.WithLabelValues(string(domain.KindLocation)).Add(float64(fs.LocationRefs))
	l.metrics.ReferencesAdded.WithLabelValues(string(domain.KindOrganizer)).Add(float64(fs.OrganizerRefs))
	return fs, nil
}

// PatternCounts tallies events per override pattern.
type PatternCounts map[domain.OverridePattern]int

func newPatternCounts() PatternCounts {
	c := make(PatternCounts, len(domain.Patterns))
	for _, p := range domain.Patterns {
		c[p] = 0
	}
	return c
}

// OverrideDetail names one event that needs an editor's attention.
type OverrideDetail struct {
	EventID string   `json:"event_id"`
	Title   string   `json:"title"`
	File    string   `json:"file"`
	Kind    string   `json:"kind"`
	Ref     string   `json:"ref,omitempty"`
	Fields  []string `json:"fields,omitempty"` // overridden keys
}

// EventPatterns is one event's classification.
type EventPatterns struct {
	EventID   string                 `json:"event_id"`
	File      string                 `json:"file"`
	Location  domain.OverridePattern `json:"location"`
	Organizer domain.OverridePattern `json:"organizer"`
}

// OverrideReport is the content of entity_override_report.json.
type OverrideReport struct {
	GeneratedAt       string           `json:"generated_at"`
	TotalEvents       int              `json:"total_events"`
	LocationPatterns  PatternCounts    `json:"location_patterns"`
	OrganizerPatterns PatternCounts    `json:"organizer_patterns"`
	PartialOverrides  []OverrideDetail `json:"partial_overrides"`
	NeedsMigration    []OverrideDetail `json:"needs_migration"`
	Events            []EventPatterns  `json:"events"`
}

// TrackOverrides classifies every active event's location and organizer
// relationship, lists partial overrides and events needing migration, and
// writes the report to entity_override_report.json.
func (l *Linker) TrackOverrides() (OverrideReport, error) {
	report := OverrideReport{
		GeneratedAt:       l.files.Stamp(),
		LocationPatterns:  newPatternCounts(),
		OrganizerPatterns: newPatternCounts(),
		PartialOverrides:  []OverrideDetail{},
		NeedsMigration:    []OverrideDetail{},
		Events:            []EventPatterns{},
	}
	for _, list := range activeLists {
		events, err := l.files.LoadEvents(list)
		if err != nil {
			return report, err
		}
		for _, e := range events {
			lp, op := domain.ClassifyLocation(e), domain.ClassifyOrganizer(e)
			report.TotalEvents++
			report.LocationPatterns[lp]++
			report.OrganizerPatterns[op]++
			report.Events = append(report.Events, EventPatterns{EventID: e.ID, File: list.File, Location: lp, Organizer: op})

			if lp == domain.PatternPartialOverride {
				report.PartialOverrides = append(report.PartialOverrides, detail(e, list.File, domain.KindLocation, e.LocationID, e.LocationOverride))
			}
			if op == domain.PatternPartialOverride {
				report.PartialOverrides = append(report.PartialOverrides, detail(e, list.File, domain.KindOrganizer, e.OrganizerID, e.OrganizerOverride))
			}
			if lp == domain.PatternNeedsMigration {
				report.NeedsMigration = append(report.NeedsMigration, detail(e, list.File, domain.KindLocation, "", nil))
			}
		}
	}

	if err := l.files.WriteJSON(jsonfile.OverrideReportFile, report); err != nil {
		return report, err
	}
	l.logger.Info("override report written", "events", report.TotalEvents, "file", jsonfile.OverrideReportFile)
	return report, nil
}

func detail(e domain.Event, file string, kind domain.Kind, ref string, override map[string]json.RawMessage) OverrideDetail {
	var fields []string
	for k := range override {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	return OverrideDetail{EventID: e.ID, Title: e.Title, File: file, Kind: string(kind), Ref: ref, Fields: fields}
}

// ReferenceIssue is one problem found by ValidateReferences.
type ReferenceIssue struct {
	EventID   string              `json:"event_id"`
	File      string              `json:"file"`
	Field     string              `json:"field"`
	Reference string              `json:"reference"`
	Message   string              `json:"message"`
	Severity  validation.Severity `json:"severity"`
}

// ReferenceReport is the outcome of ValidateReferences.
type ReferenceReport struct {
	Checked  int              `json:"checked"`
	Errors   []ReferenceIssue `json:"errors"`
	Warnings []ReferenceIssue `json:"warnings"`
}

// OK reports whether no error-level issue was found.
func (r ReferenceReport) OK() bool { return len(r.Errors) == 0 }

// ValidateReferences checks every location_id and organizer_id in the
// active files. A reference with the wrong prefix is an error. A reference
// missing from its library is a warning: the embedded copy stays
// authoritative until the library catches up.
func (l *Linker) ValidateReferences() (ReferenceReport, error) {
	report := ReferenceReport{Errors: []ReferenceIssue{}, Warnings: []ReferenceIssue{}}
	for _, list := range activeLists {
		events, err := l.files.LoadEvents(list)
		if err != nil {
			return report, err
		}
		for _, e := range events {
			if e.LocationID != "" {
				report.Checked++
				_, ok := l.locations.Get(e.LocationID)
				l.checkRef(&report, e, list.File, "location_id", e.LocationID, domain.KindLocation, ok)
			}
			if e.OrganizerID != "" {
				report.Checked++
				_, ok := l.organizers.Get(e.OrganizerID)
				l.checkRef(&report, e, list.File, "organizer_id", e.OrganizerID, domain.KindOrganizer, ok)
			}
		}
	}
	return report, nil
}

func (l *Linker) checkRef(r *ReferenceReport, e domain.Event, file, field, ref string, kind domain.Kind, found bool) {
	issue := ReferenceIssue{EventID: e.ID, File: file, Field: field, Reference: ref}
	switch {
	case !strings.HasPrefix(ref, kind.Prefix()):
		issue.Severity = validation.SeverityError
		issue.Message = fmt.Sprintf("must start with %q", kind.Prefix())
		r.Errors = append(r.Errors, issue)
	case !found:
		issue.Severity = validation.SeverityWarning
		issue.Message = fmt.Sprintf("not in the %s library", kind)
		r.Warnings = append(r.Warnings, issue)
	}
}

// MigrationStats summarizes a Migrate run.
type MigrationStats struct {
	Events     int `json:"events"`
	Locations  int `json:"locations"`
	Organizers int `json:"organizers"`
}

// Migrate builds fresh location and organizer libraries from the copies
// embedded in published, pending and archived events. Records are keyed by
// generated ID; repeated sightings raise usage_count. An existing library is
// only replaced with force.
func (l *Linker) Migrate(force bool) (MigrationStats, error) {
	var stats MigrationStats
	if !force {
		for _, lib := range []interface{ Exists() bool }{l.locations, l.organizers} {
			if lib.Exists() {
				return stats, fmt.Errorf("%w: rerun with force to replace it", ErrLibraryExists)
			}
		}
	}

	events, err := l.allEvents()
	if err != nil {
		return stats, err
	}
	stats.Events = len(events)

	now := domain.NewTimestamp(l.files.Now())
	locations := make(map[string]domain.Location)
	organizers := make(map[string]domain.Organizer)
	for _, e := range events {
		if e.Location != nil && strings.TrimSpace(e.Location.Name) != "" {
			rec := domain.LocationFromEmbedded(e.Location)
			if existing, ok := locations[rec.ID]; ok {
				if !existing.HasCoordinates() && rec.HasCoordinates() {
					existing.Lat, existing.Lon = rec.Lat, rec.Lon
				}
				if existing.Address == "" {
					existing.Address = rec.Address
				}
				existing.UsageCount++
				locations[rec.ID] = existing
			} else if rec.Check() == nil {
				rec.UsageCount, rec.CreatedAt, rec.UpdatedAt = 1, now, now
				locations[rec.ID] = rec
			}
		}
		if e.Organizer != nil && strings.TrimSpace(e.Organizer.Name) != "" {
			rec := domain.OrganizerFromEmbedded(e.Organizer)
			if existing, ok := organizers[rec.ID]; ok {
				existing.UsageCount++
				organizers[rec.ID] = existing
			} else if rec.Check() == nil {
				rec.UsageCount, rec.CreatedAt, rec.UpdatedAt = 1, now, now
				organizers[rec.ID] = rec
			}
		}
	}

	if err := l.locations.Replace(locations); err != nil {
		return stats, err
	}
	if err := l.organizers.Replace(organizers); err != nil {
		return stats, err
	}
	stats.Locations, stats.Organizers = len(locations), len(organizers)
	l.logger.Info("libraries migrated", "events", stats.Events, "locations", stats.Locations, "organizers", stats.Organizers)
	return stats, nil
}

func (l *Linker) allEvents() ([]domain.Event, error) {
	var all []domain.Event
	for _, list := range activeLists {
		events, err := l.files.LoadEvents(list)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	archives, err := l.files.LoadArchives()
	if err != nil {
		return nil, err
	}
	for _, a := range archives {
		all = append(all, a.Events...)
	}
	return all, nil
}
