// Package review assembles what an editor needs to judge a pending event:
// rejection history, similar past events, what is known about the venue
// and the notes other editors left. It never writes event data.
package review

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/config"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/validation"
)

const (
	rejectionSimilarity = 0.8
	similarSimilarity   = 0.7
)

// Match types for similar events, strongest first.
const (
	MatchVenueAndSource = "venue_and_source"
	MatchVenue          = "venue"
	MatchTitleAndSource = "title_and_source"
)

// Flag kinds.
const (
	FlagValidation         = "validation_error"
	FlagMissingCoordinates = "missing_coordinates"
	FlagNeedsReview        = "needs_review"
	FlagPriorRejections    = "prior_rejections"
	FlagGenericLocation    = "generic_location"
	FlagHighOccurrence     = "high_occurrence_unverified"
)

// History is the event data the aggregator searches.
type History struct {
	Published []domain.Event
	Archived  []domain.Event
	Rejected  []domain.Event
	Pending   []domain.Event
}

// LoadHistory reads every event file. Corrupt archive buckets are skipped.
func LoadHistory(files *jsonfile.Files) (History, error) {
	var h History
	var err error
	if h.Published, err = files.LoadEvents(jsonfile.Published); err != nil {
		return h, err
	}
	if h.Rejected, err = files.LoadEvents(jsonfile.Rejected); err != nil {
		return h, err
	}
	if h.Pending, err = files.LoadEvents(jsonfile.Pending); err != nil {
		return h, err
	}
	archives, err := files.LoadArchives()
	if err != nil {
		return h, err
	}
	for _, a := range archives {
		h.Archived = append(h.Archived, a.Events...)
	}
	return h, nil
}

// Rejection is an earlier rejected event that resembles the pending one.
type Rejection struct {
	EventID    string  `json:"event_id"`
	Title      string  `json:"title"`
	Reason     string  `json:"reason,omitempty"`
	RejectedAt string  `json:"rejected_at,omitempty"`
	MatchedBy  string  `json:"matched_by"` // "id" or "title"
	Similarity float64 `json:"similarity"`
}

// SimilarEvent is a published or archived event at the same venue or with
// a close title from the same source.
type SimilarEvent struct {
	EventID    string  `json:"event_id"`
	Title      string  `json:"title"`
	StartTime  string  `json:"start_time"`
	Source     string  `json:"source"`
	Location   string  `json:"location"`
	Status     string  `json:"status"`
	MatchType  string  `json:"match_type"`
	Similarity float64 `json:"similarity"`

	start time.Time
}

// LocationIntel describes an unverified library record matching the venue.
type LocationIntel struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	UsageCount         int    `json:"usage_count"`
	PendingOccurrences int    `json:"pending_occurrences"`
	Match              string `json:"match"` // "exact" or "case_insensitive"
}

// Suggestion is a verified location whose name overlaps the venue name.
type Suggestion struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Flag is one reason an editor should look closer.
type Flag struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// EventContext is the editor-facing summary of one pending event.
type EventContext struct {
	Event              domain.Event      `json:"event"`
	Validation         validation.Result `json:"validation"`
	PriorRejections    []Rejection       `json:"prior_rejections"`
	SimilarEvents      []SimilarEvent    `json:"similar_events"`
	UnverifiedLocation *LocationIntel    `json:"unverified_location,omitempty"`
	Suggestions        []Suggestion      `json:"suggestions"`
	Notes              []Note            `json:"notes"`
	Flags              []Flag            `json:"flags"`
}

// NeedsAttention reports whether any flag was raised.
func (c EventContext) NeedsAttention() bool { return len(c.Flags) > 0 }

// LocationLister lists library locations.
type LocationLister interface {
	List() []domain.Location
}

// NoteReader returns reviewer notes for an event.
type NoteReader interface {
	For(eventID string) []Note
}

// Options tunes the aggregator.
type Options struct {
	SimilarLimit            int
	SuggestionLimit         int
	HighOccurrenceThreshold int
}

// OptionsFromSettings builds Options from the settings file.
func OptionsFromSettings(s config.Settings) Options {
	return Options{
		SimilarLimit:            s.Review.SimilarEventsLimit,
		SuggestionLimit:         s.Review.SuggestionLimit,
		HighOccurrenceThreshold: s.Review.HighOccurrenceThreshold,
	}
}

// Aggregator joins a pending event with its surroundings.
type Aggregator struct {
	validator *validation.Validator
	locations LocationLister
	notes     NoteReader
	opts      Options
}

// NewAggregator creates an Aggregator.
func NewAggregator(validator *validation.Validator, locations LocationLister, notes NoteReader, opts Options) *Aggregator {
	return &Aggregator{validator: validator, locations: locations, notes: notes, opts: opts}
}

// Build gathers the context for e.
func (a *Aggregator) Build(e domain.Event, h History) EventContext {
	c := EventContext{
		Event:           e,
		Validation:      a.validator.Validate(e),
		PriorRejections: priorRejections(e, h.Rejected),
		SimilarEvents:   similarEvents(e, h, a.opts.SimilarLimit),
		Notes:           []Note{},
		Flags:           []Flag{},
	}
	locations := a.locations.List()
	c.UnverifiedLocation = unverifiedIntel(e, locations, h.Pending)
	c.Suggestions = suggestions(e, locations, a.opts.SuggestionLimit)
	if n := a.notes.For(e.ID); n != nil {
		c.Notes = n
	}
	c.Flags = a.flags(c)
	return c
}

func priorRejections(e domain.Event, rejected []domain.Event) []Rejection {
	out := []Rejection{}
	for _, r := range rejected {
		sim := domain.TitleSimilarity(e.Title, r.Title)
		var by string
		switch {
		case e.ID != "" && r.ID == e.ID:
			by = "id"
		case sim > rejectionSimilarity:
			by = "title"
		default:
			continue
		}
		out = append(out, Rejection{
			EventID:    r.ID,
			Title:      r.Title,
			Reason:     r.ExtraString(domain.KeyRejectionReason),
			RejectedAt: r.ExtraString(domain.KeyRejectedAt),
			MatchedBy:  by,
			Similarity: sim,
		})
	}
	return out
}

func similarEvents(e domain.Event, h History, limit int) []SimilarEvent {
	venue := strings.TrimSpace(e.LocationName())
	out := []SimilarEvent{}
	for _, group := range [][]domain.Event{h.Published, h.Archived} {
		for _, p := range group {
			if e.ID != "" && p.ID == e.ID {
				continue
			}
			sameVenue := venue != "" && venue == strings.TrimSpace(p.LocationName())
			sameSource := e.Source != "" && p.Source == e.Source
			sim := domain.TitleSimilarity(e.Title, p.Title)

			var match string
			switch {
			case sameVenue && sameSource:
				match = MatchVenueAndSource
			case sameVenue:
				match = MatchVenue
			case sim > similarSimilarity && sameSource:
				match = MatchTitleAndSource
			default:
				continue
			}
			start, _ := p.Start()
			out = append(out, SimilarEvent{
				EventID:    p.ID,
				Title:      p.Title,
				StartTime:  p.StartTime,
				Source:     p.Source,
				Location:   p.LocationName(),
				Status:     string(p.Status),
				MatchType:  match,
				Similarity: sim,
				start:      start,
			})
		}
	}
	// Most recent first; events without a parseable start sort last.
	slices.SortStableFunc(out, func(a, b SimilarEvent) int {
		return b.start.Compare(a.start)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func unverifiedIntel(e domain.Event, locations []domain.Location, pending []domain.Event) *LocationIntel {
	name := strings.TrimSpace(e.LocationName())
	if name == "" {
		return nil
	}
	var hit *domain.Location
	match := ""
	for i := range locations {
		loc := &locations[i]
		if loc.Verified {
			continue
		}
		if loc.Name == name {
			hit, match = loc, "exact"
			break
		}
		if hit == nil && strings.EqualFold(loc.Name, name) {
			hit, match = loc, "case_insensitive"
		}
	}
	if hit == nil {
		return nil
	}
	occurrences := 0
	for _, p := range pending {
		if strings.EqualFold(strings.TrimSpace(p.LocationName()), name) {
			occurrences++
		}
	}
	return &LocationIntel{
		ID:                 hit.ID,
		Name:               hit.Name,
		UsageCount:         hit.UsageCount,
		PendingOccurrences: occurrences,
		Match:              match,
	}
}

func suggestions(e domain.Event, locations []domain.Location, limit int) []Suggestion {
	name := strings.ToLower(strings.TrimSpace(e.LocationName()))
	out := []Suggestion{}
	if name == "" {
		return out
	}
	for _, loc := range locations {
		if !loc.Verified {
			continue
		}
		candidate := strings.ToLower(loc.Name)
		if !strings.Contains(candidate, name) && !strings.Contains(name, candidate) {
			continue
		}
		out = append(out, Suggestion{ID: loc.ID, Name: loc.Name, Address: loc.Address, Lat: loc.Lat, Lon: loc.Lon})
	}
	slices.SortStableFunc(out, func(a, b Suggestion) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (a *Aggregator) flags(c EventContext) []Flag {
	var out []Flag
	for _, issue := range c.Validation.Errors {
		out = append(out, Flag{Kind: FlagValidation, Message: issue.String()})
	}

	loc := c.Event.Location
	if loc != nil {
		if lat, lon := loc.Coordinates(); lat == nil || lon == nil {
			out = append(out, Flag{Kind: FlagMissingCoordinates, Message: "location has no usable coordinates"})
		}
		if loc.NeedsReview {
			out = append(out, Flag{Kind: FlagNeedsReview, Message: "location is flagged for review"})
		}
		if a.validator.IsGenericName(loc.Name) {
			out = append(out, Flag{Kind: FlagGenericLocation, Message: fmt.Sprintf("%q is a generic placeholder", loc.Name)})
		}
	} else if c.Event.LocationID == "" {
		out = append(out, Flag{Kind: FlagMissingCoordinates, Message: "event has no location"})
	}

	if n := len(c.PriorRejections); n > 0 {
		out = append(out, Flag{Kind: FlagPriorRejections, Message: fmt.Sprintf("%d similar event(s) were rejected before", n)})
	}
	if u := c.UnverifiedLocation; u != nil && u.UsageCount >= a.opts.HighOccurrenceThreshold {
		out = append(out, Flag{
			Kind:    FlagHighOccurrence,
			Message: fmt.Sprintf("unverified location %s is used by %d events; consider verifying it", u.ID, u.UsageCount),
		})
	}
	if out == nil {
		out = []Flag{}
	}
	return out
}

// FindPending returns the pending event with id.
func (h History) FindPending(id string) (domain.Event, bool) {
	for _, e := range h.Pending {
		if e.ID == id {
			return e, true
		}
	}
	return domain.Event{}, false
}

// ForPending loads the event files and builds the context for the pending
// event with id.
func (a *Aggregator) ForPending(files *jsonfile.Files, id string) (EventContext, error) {
	h, err := LoadHistory(files)
	if err != nil {
		return EventContext{}, err
	}
	e, ok := h.FindPending(id)
	if !ok {
		return EventContext{}, fmt.Errorf("pending event %s: %w", id, domain.ErrNotFound)
	}
	return a.Build(e, h), nil
}

// PendingContexts binds an Aggregator to a data directory.
type PendingContexts struct {
	Files      *jsonfile.Files
	Aggregator *Aggregator
}

func (p PendingContexts) PendingContext(id string) (EventContext, error) {
	return p.Aggregator.ForPending(p.Files, id)
}
