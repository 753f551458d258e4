// Package workflow moves events through the editorial lifecycle: scraped
// events enter the pending queue, editors approve or reject them, and
// published events are archived per month once they are over.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/couchcryptid/community-events/internal/observability"
	"github.com/couchcryptid/community-events/internal/validation"
)

// ErrBlocked is returned when an event with blocking validation errors is
// approved.
var ErrBlocked = errors.New("event has blocking validation errors")

// Announcer tells downstream consumers about newly published events.
type Announcer interface {
	Announce(ctx context.Context, events []domain.Event) error
}

// NopAnnouncer discards announcements. Used when no feed is configured.
type NopAnnouncer struct{}

func (NopAnnouncer) Announce(context.Context, []domain.Event) error { return nil }

// Workflow owns the event files.
type Workflow struct {
	files      *jsonfile.Files
	locations  *entity.Locations
	organizers *entity.Organizers
	validator  *validation.Validator
	announcer  Announcer
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Workflow. A nil announcer means NopAnnouncer.
func New(files *jsonfile.Files, locations *entity.Locations, organizers *entity.Organizers, validator *validation.Validator, announcer Announcer, logger *slog.Logger, metrics *observability.Metrics) *Workflow {
	if announcer == nil {
		announcer = NopAnnouncer{}
	}
	return &Workflow{
		files:      files,
		locations:  locations,
		organizers: organizers,
		validator:  validator,
		announcer:  announcer,
		logger:     logger,
		metrics:    metrics,
	}
}

// ImportStats summarizes an Import run.
type ImportStats struct {
	Received      int      `json:"received"`
	Added         int      `json:"added"`
	Duplicates    int      `json:"duplicates"`
	Invalid       int      `json:"invalid"` // queued, but would not pass approval yet
	NewLocations  []string `json:"new_locations"`
	NewOrganizers []string `json:"new_organizers"`
}

// Import normalizes raw events and appends them to the pending queue.
// Events already published or pending (same title and start time, or same
// ID) are skipped. References are attached, matching library records by
// name first, and every venue and organizer sighting is recorded in the
// libraries; unknown ones are added unverified.
func (w *Workflow) Import(ctx context.Context, raw []domain.Event) (ImportStats, error) {
	stats := ImportStats{Received: len(raw), NewLocations: []string{}, NewOrganizers: []string{}}
	published, err := w.files.LoadEvents(jsonfile.Published)
	if err != nil {
		return stats, err
	}
	pending, err := w.files.LoadEvents(jsonfile.Pending)
	if err != nil {
		return stats, err
	}

	known := slices.Concat(published, pending)
	var added []domain.Event
	var locs []domain.Location
	var orgs []domain.Organizer
	for _, r := range raw {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		e := domain.NormalizeEvent(r)
		e.Status = domain.StatusPending
		if isDuplicate(e, known) {
			stats.Duplicates++
			continue
		}

		w.linkToLibrary(&e)
		domain.LinkReferences(&e, false)
		if !w.validator.Validate(e).IsValid {
			stats.Invalid++
		}
		if e.Location != nil && e.Location.Name != "" {
			loc := domain.LocationFromEmbedded(e.Location)
			loc.ID = e.LocationID
			locs = append(locs, loc)
		}
		if e.Organizer != nil && e.Organizer.Name != "" {
			org := domain.OrganizerFromEmbedded(e.Organizer)
			org.ID = e.OrganizerID
			orgs = append(orgs, org)
		}
		known = append(known, e)
		added = append(added, e)
	}
	stats.Added = len(added)
	if len(added) == 0 {
		return stats, nil
	}

	if err := w.save(jsonfile.Pending, append(pending, added...)); err != nil {
		return stats, err
	}
	newLocs, err := w.locations.Observe(locs)
	if err != nil {
		return stats, fmt.Errorf("record locations: %w", err)
	}
	newOrgs, err := w.organizers.Observe(orgs)
	if err != nil {
		return stats, fmt.Errorf("record organizers: %w", err)
	}
	stats.NewLocations = append(stats.NewLocations, newLocs...)
	stats.NewOrganizers = append(stats.NewOrganizers, newOrgs...)
	w.metrics.EventTransitions.WithLabelValues("import").Add(float64(stats.Added))
	w.logger.Info("events imported",
		"received", stats.Received,
		"added", stats.Added,
		"duplicates", stats.Duplicates,
		"invalid", stats.Invalid,
	)
	return stats, nil
}

// linkToLibrary points unreferenced embedded venues and organizers at the
// library record with the same name or alias, if there is one.
func (w *Workflow) linkToLibrary(e *domain.Event) {
	if e.LocationID == "" && e.Location != nil {
		if rec, ok := w.locations.FindByName(e.Location.Name); ok {
			e.LocationID = rec.ID
		}
	}
	if e.OrganizerID == "" && e.Organizer != nil {
		if rec, ok := w.organizers.FindByName(e.Organizer.Name); ok {
			e.OrganizerID = rec.ID
		}
	}
}

func isDuplicate(e domain.Event, known []domain.Event) bool {
	for _, k := range known {
		if (e.ID != "" && k.ID == e.ID) || domain.SameEvent(e, k) {
			return true
		}
	}
	return false
}

// Approve validates the pending event with id and, when it has no blocking
// errors, moves it to the published file and announces it. A failed
// announcement is logged; the event stays published.
func (w *Workflow) Approve(ctx context.Context, id string) (domain.Event, error) {
	pending, err := w.files.LoadEvents(jsonfile.Pending)
	if err != nil {
		return domain.Event{}, err
	}
	i := indexOf(pending, id)
	if i < 0 {
		return domain.Event{}, fmt.Errorf("pending event %s: %w", id, domain.ErrNotFound)
	}
	e := pending[i]
	if r := w.validator.Validate(e); !r.IsValid {
		return domain.Event{}, fmt.Errorf("%w: %s", ErrBlocked, describe(r.Errors))
	}

	published, err := w.publish(ctx, []domain.Event{e}, slices.Delete(pending, i, i+1))
	if err != nil {
		return domain.Event{}, err
	}
	w.metrics.EventTransitions.WithLabelValues("approve").Inc()
	w.logger.Info("event approved", "id", id)
	return published[0], nil
}

// PublishStats summarizes a PublishAll run.
type PublishStats struct {
	Published []string                     `json:"published"`
	Blocked   map[string]validation.Result `json:"blocked"`
}

// PublishAll publishes every pending event that passes validation. Events
// with blocking errors stay pending and are reported.
func (w *Workflow) PublishAll(ctx context.Context) (PublishStats, error) {
	stats := PublishStats{Published: []string{}, Blocked: map[string]validation.Result{}}
	pending, err := w.files.LoadEvents(jsonfile.Pending)
	if err != nil {
		return stats, err
	}
	batch := w.validator.ValidateBatch(pending)

	var ready, remaining []domain.Event
	for i, e := range pending {
		key := validation.BatchKey(e, i)
		if r := batch.Each[i]; r.IsValid {
			ready = append(ready, e)
		} else {
			remaining = append(remaining, e)
			if _, dup := stats.Blocked[key]; !dup {
				stats.Blocked[key] = r
			}
		}
	}
	if len(ready) == 0 {
		return stats, nil
	}

	published, err := w.publish(ctx, ready, remaining)
	if err != nil {
		return stats, err
	}
	for _, e := range published {
		stats.Published = append(stats.Published, e.ID)
	}
	w.metrics.EventTransitions.WithLabelValues("approve").Add(float64(len(published)))
	w.logger.Info("pending events published", "published", len(published), "blocked", len(stats.Blocked))
	return stats, nil
}

// publish appends events to the published file, replaces the pending file
// with remaining and announces the events. The published file is written
// first so an interrupted run duplicates rather than loses an event.
func (w *Workflow) publish(ctx context.Context, events, remaining []domain.Event) ([]domain.Event, error) {
	current, err := w.files.LoadEvents(jsonfile.Published)
	if err != nil {
		return nil, err
	}
	stamp := w.files.Stamp()
	out := make([]domain.Event, len(events))
	for i, e := range events {
		e = e.Clone()
		e.Status = domain.StatusPublished
		if err := e.SetExtra(domain.KeyPublishedAt, stamp); err != nil {
			return nil, err
		}
		out[i] = e
	}

	if err := w.save(jsonfile.Published, append(current, out...)); err != nil {
		return nil, err
	}
	if err := w.save(jsonfile.Pending, remaining); err != nil {
		return nil, err
	}
	if err := w.announcer.Announce(ctx, out); err != nil {
		w.logger.Warn("publication feed unavailable", "events", len(out), "error", err)
	}
	return out, nil
}

// Reject moves the pending event with id to the rejected file, recording
// when and why.
func (w *Workflow) Reject(id, reason string) (domain.Event, error) {
	pending, err := w.files.LoadEvents(jsonfile.Pending)
	if err != nil {
		return domain.Event{}, err
	}
	i := indexOf(pending, id)
	if i < 0 {
		return domain.Event{}, fmt.Errorf("pending event %s: %w", id, domain.ErrNotFound)
	}
	rejected, err := w.files.LoadEvents(jsonfile.Rejected)
	if err != nil {
		return domain.Event{}, err
	}

	e := pending[i].Clone()
	e.Status = domain.StatusRejected
	if err := e.SetExtra(domain.KeyRejectedAt, w.files.Stamp()); err != nil {
		return domain.Event{}, err
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		if err := e.SetExtra(domain.KeyRejectionReason, reason); err != nil {
			return domain.Event{}, err
		}
	}

	if err := w.save(jsonfile.Rejected, append(rejected, e)); err != nil {
		return domain.Event{}, err
	}
	if err := w.save(jsonfile.Pending, slices.Delete(pending, i, i+1)); err != nil {
		return domain.Event{}, err
	}
	w.metrics.EventTransitions.WithLabelValues("reject").Inc()
	w.logger.Info("event rejected", "id", id, "reason", reason)
	return e, nil
}

// ArchiveStats summarizes an Archive run.
type ArchiveStats struct {
	Archived int            `json:"archived"`
	Kept     int            `json:"kept"`
	Buckets  map[string]int `json:"buckets"` // YYYYMM -> events added
}

// Archive moves published events that ended more than retention ago into
// their monthly bucket. The end time is used when present, the start time
// otherwise; events whose times do not parse stay active.
func (w *Workflow) Archive(retention time.Duration) (ArchiveStats, error) {
	stats := ArchiveStats{Buckets: map[string]int{}}
	published, err := w.files.LoadEvents(jsonfile.Published)
	if err != nil {
		return stats, err
	}
	cutoff := w.files.Now().Add(-retention)
	stamp := w.files.Stamp()

	buckets := make(map[string][]domain.Event)
	var keep []domain.Event
	for _, e := range published {
		start, end, ok := eventSpan(e)
		if !ok || !end.Before(cutoff) {
			keep = append(keep, e)
			continue
		}
		a := e.Clone()
		a.Status = domain.StatusArchived
		if err := a.SetExtra(domain.KeyArchivedAt, stamp); err != nil {
			return stats, err
		}
		month := jsonfile.ArchiveMonth(start)
		buckets[month] = append(buckets[month], a)
	}
	if len(buckets) == 0 {
		stats.Kept = len(keep)
		return stats, nil
	}

	months := make([]string, 0, len(buckets))
	for m := range buckets {
		months = append(months, m)
	}
	slices.Sort(months)
	for _, m := range months {
		n, err := w.files.AppendArchive(m, buckets[m])
		if err != nil {
			return stats, err
		}
		stats.Buckets[m] = n
		stats.Archived += len(buckets[m])
	}
	if err := w.save(jsonfile.Published, keep); err != nil {
		return stats, err
	}
	stats.Kept = len(keep)
	w.metrics.EventTransitions.WithLabelValues("archive").Add(float64(stats.Archived))
	w.logger.Info("events archived", "archived", stats.Archived, "kept", stats.Kept, "buckets", len(months))
	return stats, nil
}

// Archives reads every archive bucket, skipping corrupt ones.
func (w *Workflow) Archives() ([]jsonfile.Archive, error) {
	return w.files.LoadArchives()
}

func eventSpan(e domain.Event) (start, end time.Time, ok bool) {
	start, err := e.Start()
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end = start
	if e.EndTime != "" {
		if t, err := domain.ParseTime(e.EndTime); err == nil {
			end = t
		}
	}
	return start, end, true
}

func (w *Workflow) save(list jsonfile.EventList, events []domain.Event) error {
	if _, err := w.files.Backup(list.File); err != nil {
		return fmt.Errorf("backup %s: %w", list.File, err)
	}
	return w.files.SaveEvents(list, events)
}

func indexOf(events []domain.Event, id string) int {
	return slices.IndexFunc(events, func(e domain.Event) bool { return e.ID == id })
}

func describe(issues []validation.Issue) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}
