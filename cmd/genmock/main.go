// Command genmock reads a CSV of scraped event rows and generates the mock
// fixtures used by the test suites and local development: a scrape file in
// the format "eventdesk events import" accepts and, optionally, a data
// directory seeded by running that scrape through the real import workflow.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -csv cmd/genmock/testdata/events.csv \
//	  -scrape-out testdata/mock/scrape.json \
//	  -data-dir testdata/mock/json
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/config"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/couchcryptid/community-events/internal/observability"
	"github.com/couchcryptid/community-events/internal/validation"
	"github.com/couchcryptid/community-events/internal/workflow"
	"github.com/jonboulle/clockwork"
)

// generatedAt is the fixed clock for reproducible timestamps and backups.
var generatedAt = time.Date(2026, time.February, 10, 6, 0, 0, 0, time.UTC)

func main() {
	csvPath := flag.String("csv", "", "CSV file with one scraped event per row")
	scrapeOut := flag.String("scrape-out", "", "output path for the scrape fixture")
	dataDir := flag.String("data-dir", "", "optional data directory to seed through the import workflow")
	flag.Parse()

	if *csvPath == "" || *scrapeOut == "" {
		flag.Usage()
		log.Fatal("missing required flags: -csv, -scrape-out")
	}
	if err := run(context.Background(), *csvPath, *scrapeOut, *dataDir, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, csvPath, scrapeOut, dataDir string, w io.Writer) error {
	events, err := readCSV(csvPath)
	if err != nil {
		return fmt.Errorf("processing %s: %w", csvPath, err)
	}
	fmt.Fprintf(w, "read %d events from %s\n", len(events), csvPath)

	if err := writeScrape(scrapeOut, events); err != nil {
		return fmt.Errorf("writing scrape fixture: %w", err)
	}
	fmt.Fprintf(w, "wrote scrape fixture: %s\n", scrapeOut)

	settings := config.DefaultSettings()
	metrics := observability.NewMetricsForTesting()
	v := validation.New(validation.OptionsFromSettings(settings), metrics)

	if dataDir != "" {
		stats, err := seed(ctx, dataDir, events, v, metrics)
		if err != nil {
			return fmt.Errorf("seeding %s: %w", dataDir, err)
		}
		fmt.Fprintf(w, "seeded %s: %d queued, %d duplicates, %d locations, %d organizers\n",
			dataDir, stats.Added, stats.Duplicates, len(stats.NewLocations), len(stats.NewOrganizers))
	}

	printStats(w, events, v)
	return nil
}

// readCSV maps each row onto a raw scraped event. Empty cells are left out
// so the fixture looks like real scraper output.
func readCSV(path string) ([]domain.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.TrimSpace(h)] = i
	}

	events := make([]domain.Event, 0, len(rows)-1)
	for n, row := range rows[1:] {
		e := domain.Event{
			Title:     get(row, colIdx, "title"),
			Source:    get(row, colIdx, "source"),
			StartTime: get(row, colIdx, "start_time"),
			EndTime:   get(row, colIdx, "end_time"),
			Category:  get(row, colIdx, "category"),
			URL:       get(row, colIdx, "url"),
		}
		if venue := get(row, colIdx, "venue"); venue != "" {
			loc := &domain.EventLocation{Name: venue}
			if loc.Lat, err = coordinate(row, colIdx, "lat"); err != nil {
				return nil, fmt.Errorf("row %d: %w", n+2, err)
			}
			if loc.Lon, err = coordinate(row, colIdx, "lon"); err != nil {
				return nil, fmt.Errorf("row %d: %w", n+2, err)
			}
			e.Location = loc
		}
		if org := get(row, colIdx, "organizer"); org != "" {
			e.Organizer = &domain.EventOrganizer{Name: org}
		}
		e.ID = domain.GenerateEventID(e.Source, e.Title, e.StartTime)
		events = append(events, e)
	}
	return events, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func coordinate(row []string, idx map[string]int, col string) (*domain.Coordinate, error) {
	s := get(row, idx, col)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", col, s, err)
	}
	return domain.NewCoordinate(v), nil
}

func writeScrape(path string, events []domain.Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := jsonfile.Encode(map[string]any{
		"events":       events,
		"generated_at": generatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// seed imports the events into dataDir with a fixed clock so repeated runs
// produce identical files.
func seed(ctx context.Context, dataDir string, events []domain.Event, v *validation.Validator, metrics *observability.Metrics) (workflow.ImportStats, error) {
	logger := observability.Discard()
	files := jsonfile.New(dataDir, clockwork.NewFakeClockAt(generatedAt), logger, metrics)
	locs, err := entity.OpenLocations(files, logger, metrics)
	if err != nil {
		return workflow.ImportStats{}, err
	}
	orgs, err := entity.OpenOrganizers(files, logger, metrics)
	if err != nil {
		return workflow.ImportStats{}, err
	}
	wf := workflow.New(files, locs, orgs, v, workflow.NopAnnouncer{}, logger, metrics)
	return wf.Import(ctx, events)
}

type count struct {
	key string
	n   int
}

func sortedCounts(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, n := range m {
		out = append(out, count{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}

func printStats(w io.Writer, events []domain.Event, v *validation.Validator) {
	sources := map[string]int{}
	categories := map[string]int{}
	venues := map[string]int{}
	var withCoords, withOrganizer int
	for _, e := range events {
		sources[e.Source]++
		if e.Category != "" {
			categories[strings.ToLower(e.Category)]++
		}
		if e.Location != nil {
			venues[e.Location.Name]++
			if lat, lon := e.Location.Coordinates(); lat != nil && lon != nil {
				withCoords++
			}
		}
		if e.Organizer != nil {
			withOrganizer++
		}
	}
	batch := v.ValidateBatch(events)

	fmt.Fprintln(w, "\n=== Stats for updating test assertions ===")
	fmt.Fprintf(w, "Total: %d\n", len(events))
	fmt.Fprintf(w, "Valid: %d, invalid: %d\n", len(batch.ValidIDs), len(batch.InvalidIDs))
	fmt.Fprintf(w, "With coordinates: %d, with organizer: %d\n", withCoords, withOrganizer)
	printCounts(w, "Sources", sortedCounts(sources))
	printCounts(w, "Categories", sortedCounts(categories))
	printCounts(w, "Venues", sortedCounts(venues))
}

func printCounts(w io.Writer, label string, counts []count) {
	fmt.Fprintf(w, "%s (%d):", label, len(counts))
	for _, c := range counts {
		fmt.Fprintf(w, " %s=%d", c.key, c.n)
	}
	fmt.Fprintln(w)
}
