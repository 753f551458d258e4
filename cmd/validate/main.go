// Command validate performs end-to-end integrity checks across an event data
// directory: the published and pending event files, the location and
// organizer libraries, and the references that tie events to them. It
// exits non-zero when any phase fails.
//
// Usage:
//
//	go run ./cmd/validate -data-dir assets/json
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/config"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/couchcryptid/community-events/internal/linker"
	"github.com/couchcryptid/community-events/internal/observability"
	"github.com/couchcryptid/community-events/internal/validation"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", "", "event data directory (default: DATA_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	if code := run(cfg, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(cfg *config.Config, w io.Writer) int {
	metrics := observability.NewMetricsForTesting()
	logger := observability.Discard()
	files := jsonfile.New(cfg.DataDir, clockwork.NewRealClock(), logger, metrics)
	v := validation.New(validation.OptionsFromSettings(cfg.Settings), metrics)

	fmt.Fprintln(w, "=== Community Events Integrity Validation ===")
	fmt.Fprintf(w, "Data directory: %s\n", cfg.DataDir)

	published, err := files.LoadEvents(jsonfile.Published)
	if err != nil {
		fmt.Fprintf(w, "FATAL: load %s: %v\n", jsonfile.EventsFile, err)
		return 1
	}
	pending, err := files.LoadEvents(jsonfile.Pending)
	if err != nil {
		fmt.Fprintf(w, "FATAL: load %s: %v\n", jsonfile.PendingFile, err)
		return 1
	}
	locations, _, err := jsonfile.LoadLibrary[domain.Location](files, jsonfile.LocationsFile, domain.KindLocation.Collection())
	if err != nil {
		fmt.Fprintf(w, "FATAL: load %s: %v\n", jsonfile.LocationsFile, err)
		return 1
	}
	organizers, _, err := jsonfile.LoadLibrary[domain.Organizer](files, jsonfile.OrganizersFile, domain.KindOrganizer.Collection())
	if err != nil {
		fmt.Fprintf(w, "FATAL: load %s: %v\n", jsonfile.OrganizersFile, err)
		return 1
	}

	refs, err := checkReferences(files, logger, metrics)
	if err != nil {
		fmt.Fprintf(w, "FATAL: check references: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateEvents("Phase 1: Published Events (schema)", published, v),
		validateEvents("Phase 2: Pending Events (schema)", pending, v),
		validateLibraries(locations, organizers),
		refs,
		validateQueues(published, pending),
	}

	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Records: %d published, %d pending, %d locations, %d organizers\n",
		len(published), len(pending), len(locations), len(organizers))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Phases 1 and 2: Event Schema ──
// Every event must pass the blocking checks and carry a unique ID.

func validateEvents(name string, events []domain.Event, v *validation.Validator) *phase {
	p := &phase{name: name}
	batch := v.ValidateBatch(events)
	for _, id := range slices.Sorted(slices.Values(batch.InvalidIDs)) {
		msgs := make([]string, 0, len(batch.Results[id].Errors))
		for _, issue := range batch.Results[id].Errors {
			msgs = append(msgs, issue.String())
		}
		p.errorf("event %s: %s", id, strings.Join(msgs, "; "))
	}
	return p
}

// ── Phase 3: Library Invariants ──
// Records must be keyed by their own ID, carry the right prefix, satisfy
// their field checks and have names unique within the library.

func validateLibraries(locations map[string]domain.Location, organizers map[string]domain.Organizer) *phase {
	p := &phase{name: "Phase 3: Library Invariants"}
	for _, id := range sortedKeys(locations) {
		loc := locations[id]
		checkRecord(p, domain.KindLocation, id, &loc.Entity, loc.Check())
	}
	for _, id := range sortedKeys(organizers) {
		org := organizers[id]
		checkRecord(p, domain.KindOrganizer, id, &org.Entity, org.Check())
	}
	checkUniqueNames(p, domain.KindLocation, locations, func(l domain.Location) string { return l.Name })
	checkUniqueNames(p, domain.KindOrganizer, organizers, func(o domain.Organizer) string { return o.Name })
	return p
}

func checkRecord(p *phase, kind domain.Kind, key string, e *domain.Entity, checkErr error) {
	if e.ID != "" && e.ID != key {
		p.errorf("%s %s: keyed as %q", kind, e.ID, key)
	}
	if !strings.HasPrefix(key, kind.Prefix()) {
		p.errorf("%s %s: ID does not start with %q", kind, key, kind.Prefix())
	}
	if checkErr != nil {
		p.errorf("%s %s: %v", kind, key, checkErr)
	}
}

func checkUniqueNames[T any](p *phase, kind domain.Kind, records map[string]T, name func(T) string) {
	byName := map[string]string{}
	for _, id := range sortedKeys(records) {
		n := strings.ToLower(strings.TrimSpace(name(records[id])))
		if n == "" {
			continue
		}
		if other, ok := byName[n]; ok {
			p.errorf("%s %s: name %q already used by %s", kind, id, name(records[id]), other)
			continue
		}
		byName[n] = id
	}
}

// ── Phase 4: Reference Integrity ──
// Malformed references fail the phase; references missing from a library
// are reported as notes only.

func checkReferences(files *jsonfile.Files, logger *slog.Logger, metrics *observability.Metrics) (*phase, error) {
	p := &phase{name: "Phase 4: Reference Integrity"}
	locs, err := entity.OpenLocations(files, logger, metrics)
	if err != nil {
		return nil, err
	}
	orgs, err := entity.OpenOrganizers(files, logger, metrics)
	if err != nil {
		return nil, err
	}
	report, err := linker.New(files, locs, orgs, logger, metrics).ValidateReferences()
	if err != nil {
		return nil, err
	}
	for _, i := range report.Errors {
		p.errorf("%s %s.%s=%s: %s", i.File, i.EventID, i.Field, i.Reference, i.Message)
	}
	return p, nil
}

// ── Phase 5: Queue Separation ──
// An event lives in exactly one of the published and pending files.

func validateQueues(published, pending []domain.Event) *phase {
	p := &phase{name: "Phase 5: Queue Separation"}
	live := map[string]bool{}
	for _, e := range published {
		live[e.ID] = true
		if e.Status != "" && e.Status != domain.StatusPublished {
			p.errorf("published event %s has status %q", e.ID, e.Status)
		}
	}
	for _, e := range pending {
		if e.ID != "" && live[e.ID] {
			p.errorf("event %s is both published and pending", e.ID)
		}
		if e.Status != "" && e.Status != domain.StatusPending {
			p.errorf("pending event %s has status %q", e.ID, e.Status)
		}
	}
	return p
}

// ── Helpers ──

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
