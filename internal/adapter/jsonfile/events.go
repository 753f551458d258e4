package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/couchcryptid/community-events/internal/domain"
)

// EventList names an event file and the top-level key that holds its list.
type EventList struct {
	File  string
	Key   string
	Stamp bool // maintain last_updated
}

var (
	Published = EventList{File: EventsFile, Key: "events", Stamp: true}
	Pending   = EventList{File: PendingFile, Key: "pending_events"}
	Rejected  = EventList{File: RejectedFile, Key: "rejected_events", Stamp: true}
)

const lastUpdatedKey = "last_updated"

// LoadEvents reads an event list. A missing file is an empty list. A file
// holding a bare JSON array is accepted too.
func (f *Files) LoadEvents(l EventList) ([]domain.Event, error) {
	data, err := os.ReadFile(f.Path(l.File))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.File, err)
	}
	return decodeEventList(data, l.Key, l.File)
}

// ReadScrape reads raw events from a scraper output file outside the data
// directory. The file holds a bare array or an object with an "events" list.
func ReadScrape(path string) ([]domain.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return decodeEventList(data, "events", filepath.Base(path))
}

func decodeEventList(data []byte, key, name string) ([]domain.Event, error) {
	var events []domain.Event
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '[' {
		if err := json.Unmarshal(t, &events); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return events, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	raw, ok := doc[key]
	if !ok || isNullRaw(raw) {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", name, key, err)
	}
	return events, nil
}

// SaveEvents replaces the list in an event file. Other top-level keys of
// the existing document are kept.
func (f *Files) SaveEvents(l EventList, events []domain.Event) error {
	doc := f.existingDoc(l.File)
	if events == nil {
		events = []domain.Event{}
	}
	list, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode %s: %w", l.File, err)
	}
	doc[l.Key] = list
	if _, had := doc[lastUpdatedKey]; l.Stamp || had {
		doc[lastUpdatedKey], _ = json.Marshal(f.Stamp())
	}
	return f.WriteJSON(l.File, doc)
}

// existingDoc returns the top-level keys of an object document, or an empty
// map when the file is missing or not an object.
func (f *Files) existingDoc(name string) map[string]json.RawMessage {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(f.Path(name))
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return make(map[string]json.RawMessage)
	}
	return doc
}

func isNullRaw(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Archive is one monthly bucket under events/archived.
type Archive struct {
	Month  string // YYYYMM
	File   string // path relative to the data directory
	Events []domain.Event
}

const archiveKey = "archived_events"

var archiveNameRe = regexp.MustCompile(`^(\d{4})-?(\d{2})\.json$`)

// ArchiveMonth returns the bucket key for t.
func ArchiveMonth(t time.Time) string { return t.UTC().Format("200601") }

// LoadArchives reads every monthly bucket, oldest first. Both YYYYMM.json
// and YYYY-MM.json names are recognized. A bucket that cannot be decoded is
// logged and skipped so one corrupt month never hides the others.
func (f *Files) LoadArchives() ([]Archive, error) {
	entries, err := os.ReadDir(f.Path(ArchiveDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}

	var out []Archive
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := archiveNameRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		rel := filepath.Join(ArchiveDir, entry.Name())
		data, err := os.ReadFile(f.Path(rel))
		if err != nil {
			f.logger.Warn("skipping unreadable archive", "file", rel, "error", err)
			continue
		}
		events, err := decodeEventList(data, archiveKey, rel)
		if err != nil {
			f.logger.Warn("skipping corrupt archive", "file", rel, "error", err)
			continue
		}
		out = append(out, Archive{Month: m[1] + m[2], File: rel, Events: events})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// AppendArchive adds events to the bucket for month, creating it when
// needed. An existing YYYY-MM.json bucket is reused. Events whose ID is
// already archived are not added twice. It returns the number added.
func (f *Files) AppendArchive(month string, events []domain.Event) (int, error) {
	rel := f.archiveFile(month)

	var existing []domain.Event
	if data, err := os.ReadFile(f.Path(rel)); err == nil {
		existing, err = decodeEventList(data, archiveKey, rel)
		if err != nil {
			return 0, fmt.Errorf("refusing to overwrite archive: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("read %s: %w", rel, err)
	}

	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.ID] = true
	}
	added := 0
	for _, e := range events {
		if e.ID != "" && seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		existing = append(existing, e)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	doc := f.existingDoc(rel)
	list, err := json.Marshal(existing)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", rel, err)
	}
	doc[archiveKey] = list
	doc[lastUpdatedKey], _ = json.Marshal(f.Stamp())
	if err := f.WriteJSON(rel, doc); err != nil {
		return 0, err
	}
	return added, nil
}

func (f *Files) archiveFile(month string) string {
	if len(month) == 6 {
		dashed := filepath.Join(ArchiveDir, month[:4]+"-"+month[4:]+".json")
		if f.Exists(dashed) {
			return dashed
		}
	}
	return filepath.Join(ArchiveDir, month+".json")
}
