// Package validation decides whether an event is complete enough to
// publish. Errors block publication; warnings are shown to editors only.
package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/couchcryptid/community-events/internal/config"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/observability"
)

// Severity is the weight of an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding about one field.
type Issue struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string { return i.Field + ": " + i.Message }

// Result is the outcome of validating one event.
type Result struct {
	IsValid  bool    `json:"is_valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// HasField reports whether any issue of either severity concerns field.
func (r Result) HasField(field string) bool {
	for _, i := range r.Errors {
		if i.Field == field {
			return true
		}
	}
	for _, i := range r.Warnings {
		if i.Field == field {
			return true
		}
	}
	return false
}

// BatchResult partitions a list of events. Results holds the verdict per
// key; when a key repeats, an invalid verdict wins. Each holds the verdict of
// every event by position and is what gating decisions must use.
type BatchResult struct {
	ValidIDs   []string          `json:"valid_ids"`
	InvalidIDs []string          `json:"invalid_ids"`
	Results    map[string]Result `json:"results"`
	Each       []Result          `json:"-"`
}

const (
	maxIDLen      = 200
	minTitleLen   = 3
	maxTitleLen   = 200
	earthRadiusKm = 6371.0

	msgRequired = "required field is missing"
)

// Options configures the validator.
type Options struct {
	// GenericNames are placeholder venue names that earn a warning.
	GenericNames []string
	// Center and MaxDistanceKm enable the distance warning when
	// MaxDistanceKm is positive.
	Center        config.Point
	MaxDistanceKm float64
}

// OptionsFromSettings builds Options from the settings file.
func OptionsFromSettings(s config.Settings) Options {
	return Options{
		GenericNames:  s.Validation.GenericLocationNames,
		Center:        s.Map.Center,
		MaxDistanceKm: s.Filtering.MaxDistanceKm,
	}
}

// Validator checks events. It is safe for concurrent use.
type Validator struct {
	generic map[string]bool
	opts    Options
	metrics *observability.Metrics
}

// New creates a Validator.
func New(opts Options, metrics *observability.Metrics) *Validator {
	generic := make(map[string]bool, len(opts.GenericNames))
	for _, n := range opts.GenericNames {
		generic[normalizeName(n)] = true
	}
	return &Validator{generic: generic, opts: opts, metrics: metrics}
}

// IsGenericName reports whether name is a configured placeholder.
func (v *Validator) IsGenericName(name string) bool {
	return v.generic[normalizeName(name)]
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

type checker struct {
	res Result
}

func (c *checker) fail(field, format string, args ...any) {
	c.res.Errors = append(c.res.Errors, Issue{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
}

func (c *checker) warn(field, format string, args ...any) {
	c.res.Warnings = append(c.res.Warnings, Issue{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

// Validate checks one event.
func (v *Validator) Validate(e domain.Event) Result {
	c := &checker{}

	v.checkString(c, e, "id", e.ID, func(s string) {
		if utf8.RuneCountInString(s) > maxIDLen {
			c.fail("id", "must be at most %d characters", maxIDLen)
		}
	})
	v.checkString(c, e, "title", e.Title, func(s string) {
		n := utf8.RuneCountInString(strings.TrimSpace(s))
		if n < minTitleLen || n > maxTitleLen {
			c.fail("title", "length %d is outside [%d, %d]", n, minTitleLen, maxTitleLen)
		}
	})
	v.checkLocation(c, e)
	v.checkTimes(c, e)
	v.checkString(c, e, "source", e.Source, nil)
	v.checkOptional(c, e)

	c.res.IsValid = len(c.res.Errors) == 0
	if c.res.Errors == nil {
		c.res.Errors = []Issue{}
	}
	if c.res.Warnings == nil {
		c.res.Warnings = []Issue{}
	}
	v.record(c.res)
	return c.res
}

func (v *Validator) record(r Result) {
	switch {
	case !r.IsValid:
		v.metrics.ValidationsTotal.WithLabelValues("invalid").Inc()
	case len(r.Warnings) > 0:
		v.metrics.ValidationsTotal.WithLabelValues("warning").Inc()
	default:
		v.metrics.ValidationsTotal.WithLabelValues("valid").Inc()
	}
}

// checkString enforces a required non-empty string field and runs extra on
// its value when present.
func (v *Validator) checkString(c *checker, e domain.Event, field, value string, extra func(string)) {
	switch {
	case e.Malformed(field):
		c.fail(field, "must be a string")
	case strings.TrimSpace(value) == "":
		if e.Has(field) {
			c.fail(field, "must not be empty")
		} else {
			c.fail(field, msgRequired)
		}
	case extra != nil:
		extra(value)
	}
}

func (v *Validator) checkLocation(c *checker, e domain.Event) {
	if e.Malformed("location") {
		c.fail("location", "must be an object")
		return
	}
	loc := e.Location
	if loc == nil {
		c.fail("location", msgRequired)
		return
	}

	switch {
	case loc.Malformed("name"):
		c.fail("location.name", "must be a string")
	case strings.TrimSpace(loc.Name) == "":
		c.fail("location.name", "must not be empty")
	case v.IsGenericName(loc.Name):
		c.warn("location.name", "%q is a generic placeholder, not a venue", loc.Name)
	}

	lat, latOK := checkCoordinate(c, "location.lat", loc.Lat, 90)
	lon, lonOK := checkCoordinate(c, "location.lon", loc.Lon, 180)

	if loc.Malformed("needs_review") {
		c.warn("location.needs_review", "must be a boolean")
	} else if loc.NeedsReview {
		c.warn("location.needs_review", "location is flagged for review")
	}

	if latOK && lonOK && v.opts.MaxDistanceKm > 0 {
		if d := distanceKm(v.opts.Center.Lat, v.opts.Center.Lon, lat, lon); d > v.opts.MaxDistanceKm {
			c.warn("location", "%.1f km from the map center exceeds %.0f km", d, v.opts.MaxDistanceKm)
		}
	}
}

func checkCoordinate(c *checker, field string, coord *domain.Coordinate, limit float64) (float64, bool) {
	if coord == nil {
		c.fail(field, msgRequired)
		return 0, false
	}
	val, ok := coord.Float()
	if !ok {
		c.fail(field, "must be a number")
		return 0, false
	}
	if val < -limit || val > limit {
		c.fail(field, "%g is outside [%g, %g]", val, -limit, limit)
		return 0, false
	}
	return val, true
}

func (v *Validator) checkTimes(c *checker, e domain.Event) {
	var startOK bool
	switch {
	case e.Malformed("start_time"):
		c.fail("start_time", "must be a string")
	case strings.TrimSpace(e.StartTime) == "":
		c.fail("start_time", msgRequired)
	default:
		startOK = true
	}

	start, err := domain.ParseTime(e.StartTime)
	if startOK && err != nil {
		c.fail("start_time", "%q is not an ISO-8601 datetime", e.StartTime)
		startOK = false
	}

	if e.Malformed("end_time") {
		c.fail("end_time", "must be a string")
		return
	}
	if strings.TrimSpace(e.EndTime) == "" {
		return
	}
	end, err := domain.ParseTime(e.EndTime)
	if err != nil {
		c.fail("end_time", "%q is not an ISO-8601 datetime", e.EndTime)
		return
	}
	if startOK && !end.After(start) {
		c.fail("end_time", "must be after start_time")
	}
}

func (v *Validator) checkOptional(c *checker, e domain.Event) {
	for _, field := range []string{"description", "url", "category", "location_id", "organizer_id"} {
		if e.Malformed(field) {
			c.warn(field, "must be a string")
		}
	}
	if e.Malformed("organizer") {
		c.warn("organizer", "must be an object or a name")
	}
	switch e.Status {
	case "", domain.StatusPending, domain.StatusPublished, domain.StatusRejected, domain.StatusArchived:
	default:
		c.warn("status", "unknown status %q", e.Status)
	}
}

// ValidateBatch validates every event and partitions their IDs. Events
// without an ID are keyed by their position, e.g. "#3". Every occurrence of
// an ID after the first is invalid.
func (v *Validator) ValidateBatch(events []domain.Event) BatchResult {
	out := BatchResult{
		ValidIDs:   []string{},
		InvalidIDs: []string{},
		Results:    make(map[string]Result, len(events)),
		Each:       make([]Result, 0, len(events)),
	}
	var order []string
	for i, e := range events {
		key := BatchKey(e, i)
		r := v.Validate(e)
		prev, seen := out.Results[key]
		if seen {
			r.IsValid = false
			r.Errors = append(r.Errors, Issue{
				Field:    "id",
				Message:  fmt.Sprintf("duplicate ID %q in batch", key),
				Severity: SeverityError,
			})
		}
		out.Each = append(out.Each, r)
		switch {
		case !seen:
			order = append(order, key)
			out.Results[key] = r
		case prev.IsValid:
			out.Results[key] = r
		}
	}
	for _, key := range order {
		if out.Results[key].IsValid {
			out.ValidIDs = append(out.ValidIDs, key)
		} else {
			out.InvalidIDs = append(out.InvalidIDs, key)
		}
	}
	return out
}

// BatchKey is the key ValidateBatch uses for the i-th event.
func BatchKey(e domain.Event, i int) string {
	if strings.TrimSpace(e.ID) != "" {
		return e.ID
	}
	return fmt.Sprintf("#%d", i)
}

// distanceKm is the great-circle distance between two positions.
func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const rad = math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
