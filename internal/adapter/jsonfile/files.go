// Package jsonfile is the persistence layer: every data file under the data
// directory is read and written whole, pretty-printed with two-space indent.
// There is no locking; a previous copy is kept in backups/ before a library
// is replaced.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/community-events/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Well-known file names relative to the data directory.
const (
	EventsFile         = "events.json"
	PendingFile        = "pending_events.json"
	RejectedFile       = "rejected_events.json"
	LocationsFile      = "locations.json"
	OrganizersFile     = "organizers.json"
	OverrideReportFile = "entity_override_report.json"
	NotesFile          = "editor_notes.json"

	ArchiveDir = "events/archived"
	BackupDir  = "backups"
)

const backupStamp = "20060102_150405"

// Files reads and writes JSON documents below a data directory.
type Files struct {
	dir     string
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a file layer rooted at dir.
func New(dir string, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Files {
	return &Files{dir: dir, clock: clock, logger: logger, metrics: metrics}
}

// Dir returns the data directory.
func (f *Files) Dir() string { return f.dir }

// Path resolves name against the data directory.
func (f *Files) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(f.dir, name)
}

// Exists reports whether the named file is present.
func (f *Files) Exists(name string) bool {
	_, err := os.Stat(f.Path(name))
	return err == nil
}

// Now returns the current time from the injected clock, in UTC.
func (f *Files) Now() time.Time { return f.clock.Now().UTC() }

// Stamp formats the current time for last_updated fields.
func (f *Files) Stamp() string { return f.Now().Format(time.RFC3339) }

// ReadJSON decodes the named file into v. A missing file is not an error;
// found reports whether the file existed.
func (f *Files) ReadJSON(name string, v any) (found bool, err error) {
	data, err := os.ReadFile(f.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// WriteJSON replaces the named file with the indented encoding of v. The
// document is written to a temporary file in the same directory and renamed
// into place, so readers never observe a half-written file.
func (f *Files) WriteJSON(name string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return f.writeFile(f.Path(name), data)
}

// Encode renders v the way every data file is stored: two-space indent,
// no HTML escaping, trailing newline.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Files) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Backup copies the named file to backups/<stem>_<YYYYMMDD_HHMMSS>.json and
// returns the backup path. Nothing is written when the file does not exist
// yet. Two backups within the same second get a numeric suffix.
func (f *Files) Backup(name string) (string, error) {
	data, err := os.ReadFile(f.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s for backup: %w", name, err)
	}

	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base := filepath.Join(f.dir, BackupDir, stem+"_"+f.Now().Format(backupStamp))
	path := base + ".json"
	for n := 2; fileExists(path); n++ {
		path = base + "_" + strconv.Itoa(n) + ".json"
	}
	if err := f.writeFile(path, data); err != nil {
		return "", err
	}
	f.metrics.BackupsWritten.Inc()
	f.logger.Debug("backup written", "file", name, "backup", path)
	return path, nil
}

// BackupSibling copies the named file to <name>.backup next to it, replacing
// any earlier sibling backup.
func (f *Files) BackupSibling(name string) (string, error) {
	src := f.Path(name)
	data, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s for backup: %w", name, err)
	}
	path := src + ".backup"
	if err := f.writeFile(path, data); err != nil {
		return "", err
	}
	f.metrics.BackupsWritten.Inc()
	f.logger.Debug("backup written", "file", name, "backup", path)
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
