// Package entity implements the location and organizer libraries: CRUD,
// search, merge and statistics over a JSON-backed map keyed by ID.
package entity

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/observability"
)

// Record is the method set the store needs from a library record. It is
// satisfied by *domain.Location and *domain.Organizer.
type Record[T any] interface {
	*T
	Base() *domain.Entity
	Check() error
	GenerateID() string
	ApplyPatch(domain.EntityPatch)
	Absorb(src *T)
	Populated() []string
}

// Store is one entity library. The file is loaded once by Open; every write
// backs up the on-disk file and then replaces it with the in-memory map.
type Store[T any, P Record[T]] struct {
	files   *jsonfile.Files
	kind    domain.Kind
	name    string
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	records map[string]T
	found   bool
}

// Locations and Organizers are the two concrete libraries.
type (
	Locations  = Store[domain.Location, *domain.Location]
	Organizers = Store[domain.Organizer, *domain.Organizer]
)

// OpenLocations loads locations.json.
func OpenLocations(files *jsonfile.Files, logger *slog.Logger, metrics *observability.Metrics) (*Locations, error) {
	return Open[domain.Location](files, domain.KindLocation, jsonfile.LocationsFile, logger, metrics)
}

// OpenOrganizers loads organizers.json.
func OpenOrganizers(files *jsonfile.Files, logger *slog.Logger, metrics *observability.Metrics) (*Organizers, error) {
	return Open[domain.Organizer](files, domain.KindOrganizer, jsonfile.OrganizersFile, logger, metrics)
}

// Open loads the named library file. A missing file yields an empty library.
func Open[T any, P Record[T]](files *jsonfile.Files, kind domain.Kind, name string, logger *slog.Logger, metrics *observability.Metrics) (*Store[T, P], error) {
	s := &Store[T, P]{
		files:   files,
		kind:    kind,
		name:    name,
		logger:  logger.With("library", kind.Collection()),
		metrics: metrics,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the library file, discarding in-memory state.
func (s *Store[T, P]) Reload() error {
	records, found, err := jsonfile.LoadLibrary[T](s.files, s.name, s.kind.Collection())
	if err != nil {
		return err
	}
	for id, rec := range records {
		b := P(&rec).Base()
		if b.ID == "" {
			b.ID = id
		}
		if b.Aliases == nil {
			b.Aliases = []string{}
		}
		records[id] = rec
	}

	s.mu.Lock()
	s.records = records
	s.found = found
	s.mu.Unlock()
	return nil
}

// Kind returns the library kind.
func (s *Store[T, P]) Kind() domain.Kind { return s.kind }

// Exists reports whether the library file is on disk.
func (s *Store[T, P]) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.found
}

// Len returns the number of records.
func (s *Store[T, P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Add inserts a new record. The name must not match an existing record's
// name (case-insensitive). The ID is derived from the record; a taken ID
// gets a numeric suffix. Timestamps are set to now.
func (s *Store[T, P]) Add(rec T) (T, error) {
	var zero T
	b := P(&rec).Base()
	b.Name = strings.TrimSpace(b.Name)
	if b.Aliases == nil {
		b.Aliases = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := P(&rec).Check(); err != nil {
		return zero, err
	}
	if other, ok := s.byNameLocked(b.Name, ""); ok {
		return zero, fmt.Errorf("%w: %q is already used by %s", domain.ErrDuplicateName, b.Name, other)
	}

	b.ID = s.allocateIDLocked(P(&rec).GenerateID())
	now := domain.NewTimestamp(s.files.Now())
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	s.records[b.ID] = rec
	if err := s.persistLocked("add"); err != nil {
		delete(s.records, b.ID)
		return zero, err
	}
	s.logger.Info("entity added", "id", b.ID, "name", b.Name)
	return rec, nil
}

// Get returns the record with id.
func (s *Store[T, P]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// List returns every record ordered by name, then ID.
func (s *Store[T, P]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortByName[T, P](out)
	return out
}

// Update merges patch onto the record with id and bumps updated_at.
// Renaming onto another record's name is a duplicate-name error.
func (s *Store[T, P]) Update(id string, patch domain.EntityPatch) (T, error) {
	return s.mutate(id, "update", func(rec P) error {
		if patch.Name != nil {
			if other, ok := s.byNameLocked(strings.TrimSpace(*patch.Name), id); ok {
				return fmt.Errorf("%w: %q is already used by %s", domain.ErrDuplicateName, *patch.Name, other)
			}
		}
		rec.ApplyPatch(patch)
		return nil
	})
}

// Verify marks the record as verified.
func (s *Store[T, P]) Verify(id string) (T, error) {
	return s.mutate(id, "verify", func(rec P) error {
		rec.Base().Verified = true
		return nil
	})
}

func (s *Store[T, P]) mutate(id, op string, fn func(P) error) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.records[id]
	if !ok {
		return zero, fmt.Errorf("%s %s: %w", s.kind, id, domain.ErrNotFound)
	}
	rec := clone[T, P](old)
	if err := fn(P(&rec)); err != nil {
		return zero, err
	}
	if err := P(&rec).Check(); err != nil {
		return zero, err
	}
	P(&rec).Base().UpdatedAt = domain.NewTimestamp(s.files.Now())

	s.records[id] = rec
	if err := s.persistLocked(op); err != nil {
		s.records[id] = old
		return zero, err
	}
	s.logger.Info("entity "+op, "id", id)
	return rec, nil
}

// Delete removes the record with id. It reports false, and writes nothing,
// when the record does not exist.
func (s *Store[T, P]) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.records[id]
	if !ok {
		return false, nil
	}
	delete(s.records, id)
	if err := s.persistLocked("delete"); err != nil {
		s.records[id] = old
		return false, err
	}
	s.logger.Info("entity deleted", "id", id)
	return true, nil
}

// Merge folds source into target and deletes source. The source name and
// aliases become target aliases, empty target fields are filled from
// source, usage counts are summed and verification is OR-ed.
func (s *Store[T, P]) Merge(sourceID, targetID string) (T, error) {
	var zero T
	if sourceID == targetID {
		return zero, fmt.Errorf("%w: cannot merge %s into itself", domain.ErrInvalidEntity, sourceID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.records[sourceID]
	if !ok {
		return zero, fmt.Errorf("merge source %s: %w", sourceID, domain.ErrNotFound)
	}
	oldTarget, ok := s.records[targetID]
	if !ok {
		return zero, fmt.Errorf("merge target %s: %w", targetID, domain.ErrNotFound)
	}

	target := clone[T, P](oldTarget)
	P(&target).Absorb(&source)
	P(&target).Base().UpdatedAt = domain.NewTimestamp(s.files.Now())

	s.records[targetID] = target
	delete(s.records, sourceID)
	if err := s.persistLocked("merge"); err != nil {
		s.records[targetID] = oldTarget
		s.records[sourceID] = source
		return zero, err
	}
	s.logger.Info("entities merged", "source", sourceID, "target", targetID)
	return target, nil
}

// Search matches query case-insensitively as a substring of the name or any
// alias. Records whose name equals the query come first, the rest follow in
// name order. An empty query returns every record.
func (s *Store[T, P]) Search(query string) []T {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	var exact, rest []T
	for _, rec := range s.records {
		b := P(&rec).Base()
		switch {
		case q != "" && strings.ToLower(b.Name) == q:
			exact = append(exact, rec)
		case q == "" || matchesSubstring(b, q):
			rest = append(rest, rec)
		}
	}
	s.mu.RUnlock()

	sortByName[T, P](exact)
	sortByName[T, P](rest)
	return append(exact, rest...)
}

func matchesSubstring(b *domain.Entity, q string) bool {
	if strings.Contains(strings.ToLower(b.Name), q) {
		return true
	}
	for _, a := range b.Aliases {
		if strings.Contains(strings.ToLower(a), q) {
			return true
		}
	}
	return false
}

// FindByName returns the record whose name, or failing that one of whose
// aliases, equals name ignoring case.
func (s *Store[T, P]) FindByName(name string) (T, bool) {
	name = strings.TrimSpace(name)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	if name == "" {
		return zero, false
	}
	var aliasHit *T
	for _, id := range s.sortedIDsLocked() {
		rec := s.records[id]
		b := P(&rec).Base()
		if strings.EqualFold(b.Name, name) {
			return rec, true
		}
		if aliasHit == nil && b.Matches(name) {
			aliasHit = &rec
		}
	}
	if aliasHit != nil {
		return *aliasHit, true
	}
	return zero, false
}

// RecordUsage adds counts to the usage_count of the listed records in a
// single write. Unknown IDs are ignored. It returns how many records changed.
func (s *Store[T, P]) RecordUsage(counts map[string]int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := make(map[string]T)
	now := domain.NewTimestamp(s.files.Now())
	for id, n := range counts {
		rec, ok := s.records[id]
		if !ok || n <= 0 {
			continue
		}
		old[id] = rec
		b := P(&rec).Base()
		b.UsageCount += n
		b.UpdatedAt = now
		s.records[id] = rec
	}
	if len(old) == 0 {
		return 0, nil
	}
	if err := s.persistLocked("usage"); err != nil {
		for id, rec := range old {
			s.records[id] = rec
		}
		return 0, err
	}
	return len(old), nil
}

// Observe records sightings of records seen in scraped events. A sighting
// matching an existing record by ID or name bumps its usage count; anything
// else is inserted unverified with a usage count of one. All changes are
// persisted in one write. It returns the IDs of the created records.
func (s *Store[T, P]) Observe(recs []T) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]T, len(s.records))
	for id, rec := range s.records {
		snapshot[id] = rec
	}
	now := domain.NewTimestamp(s.files.Now())

	var created []string
	changed := false
	for _, rec := range recs {
		b := P(&rec).Base()
		b.Name = strings.TrimSpace(b.Name)
		if b.Name == "" {
			continue
		}
		id := b.ID
		if _, ok := s.records[id]; !ok {
			id, _ = s.byNameLocked(b.Name, "")
		}
		if existing, ok := s.records[id]; ok {
			eb := P(&existing).Base()
			eb.UsageCount++
			eb.UpdatedAt = now
			s.records[id] = existing
			changed = true
			continue
		}
		if P(&rec).Check() != nil {
			continue
		}
		b.ID = s.allocateIDLocked(P(&rec).GenerateID())
		b.Verified = false
		b.UsageCount = 1
		b.CreatedAt, b.UpdatedAt = now, now
		if b.Aliases == nil {
			b.Aliases = []string{}
		}
		s.records[b.ID] = rec
		created = append(created, b.ID)
		changed = true
	}
	if !changed {
		return nil, nil
	}

	if err := s.persistLocked("observe"); err != nil {
		s.records = snapshot
		return nil, err
	}
	return created, nil
}

// Replace swaps the whole library for records, backing up the previous file.
func (s *Store[T, P]) Replace(records map[string]T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.records
	s.records = records
	if err := s.persistLocked("replace"); err != nil {
		s.records = old
		return err
	}
	return nil
}

// Stats summarizes a library.
type Stats struct {
	Total       int            `json:"total"`
	Verified    int            `json:"verified"`
	Unverified  int            `json:"unverified"`
	FieldCounts map[string]int `json:"field_counts"`
	TopUsed     []Usage        `json:"top_used"`
}

// Usage is one row of the most-used ranking.
type Usage struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UsageCount int    `json:"usage_count"`
}

const topUsedLimit = 10

// Statistics counts records, verification and populated optional fields,
// and ranks the ten most used records.
func (s *Store[T, P]) Statistics() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{FieldCounts: make(map[string]int)}
	usage := make([]Usage, 0, len(s.records))
	for _, rec := range s.records {
		p := P(&rec)
		b := p.Base()
		st.Total++
		if b.Verified {
			st.Verified++
		} else {
			st.Unverified++
		}
		for _, f := range p.Populated() {
			st.FieldCounts[f]++
		}
		usage = append(usage, Usage{ID: b.ID, Name: b.Name, UsageCount: b.UsageCount})
	}
	slices.SortFunc(usage, func(a, b Usage) int {
		return cmp.Or(cmp.Compare(b.UsageCount, a.UsageCount), strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
	if len(usage) > topUsedLimit {
		usage = usage[:topUsedLimit]
	}
	st.TopUsed = usage
	return st
}

func (s *Store[T, P]) persistLocked(op string) error {
	if _, err := s.files.Backup(s.name); err != nil {
		return fmt.Errorf("backup %s: %w", s.name, err)
	}
	if err := jsonfile.SaveLibrary(s.files, s.name, s.kind.Collection(), s.records); err != nil {
		return err
	}
	s.found = true
	s.metrics.EntityWrites.WithLabelValues(string(s.kind), op).Inc()
	return nil
}

// byNameLocked finds a record other than exceptID whose name equals name
// ignoring case.
func (s *Store[T, P]) byNameLocked(name, exceptID string) (string, bool) {
	for _, id := range s.sortedIDsLocked() {
		if id == exceptID {
			continue
		}
		rec := s.records[id]
		if strings.EqualFold(P(&rec).Base().Name, name) {
			return id, true
		}
	}
	return "", false
}

func (s *Store[T, P]) allocateIDLocked(id string) string {
	if _, taken := s.records[id]; !taken {
		return id
	}
	for n := 2; ; n++ {
		candidate := domain.WithSuffix(id, n)
		if _, taken := s.records[candidate]; !taken {
			return candidate
		}
	}
}

func (s *Store[T, P]) sortedIDsLocked() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func sortByName[T any, P Record[T]](recs []T) {
	slices.SortFunc(recs, func(a, b T) int {
		ba, bb := P(&a).Base(), P(&b).Base()
		return cmp.Or(
			strings.Compare(strings.ToLower(ba.Name), strings.ToLower(bb.Name)),
			strings.Compare(ba.ID, bb.ID),
		)
	})
}

// clone copies rec so a failed write can restore the original. Aliases are
// the only shared backing array.
func clone[T any, P Record[T]](rec T) T {
	c := rec
	b := P(&c).Base()
	b.Aliases = slices.Clone(b.Aliases)
	if b.Aliases == nil {
		b.Aliases = []string{}
	}
	return c
}
