package domain

import (
	"crypto/md5" //nolint:gosec // short content hash, not a security boundary
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

const (
	// maxSlugLen is the longest slug used verbatim as an ID body.
	maxSlugLen = 30
	// truncatedSlugLen is the slug prefix kept when a hash suffix is added.
	truncatedSlugLen = 20
	hashLen          = 8
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name, collapses every run of characters outside
// [a-z0-9] into one underscore and trims leading and trailing underscores.
func Slugify(name string) string {
	return strings.Trim(nonAlnumRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// GenerateLocationID derives the stable location key for a venue name and
// optional position. It is the deduplication key, so it must stay pure:
// identical inputs always give the identical ID.
//
//	GenerateLocationID("Theater Hof", nil, nil) == "loc_theater_hof"
func GenerateLocationID(name string, lat, lon *float64) string {
	return generateID(LocationPrefix, name, formatCoordinate(lat)+formatCoordinate(lon))
}

// GenerateOrganizerID derives the stable organizer key for a name.
func GenerateOrganizerID(name string) string {
	return generateID(OrganizerPrefix, name, "")
}

// GenerateID dispatches on kind. Coordinates are ignored for organizers.
func GenerateID(kind Kind, name string, lat, lon *float64) string {
	if kind == KindOrganizer {
		return GenerateOrganizerID(name)
	}
	return GenerateLocationID(name, lat, lon)
}

// WithSuffix returns the n-th collision variant of id ("loc_x_2", "loc_x_3", ...).
func WithSuffix(id string, n int) string {
	return id + "_" + strconv.Itoa(n)
}

// generateID returns prefix+slug for short slugs. Long slugs are cut to
// truncatedSlugLen characters and suffixed with the first 8 hex characters of
// md5(name + salt) so distinct long names stay distinct.
func generateID(prefix, name, salt string) string {
	slug := Slugify(name)
	if slug == "" {
		return prefix + "unknown"
	}
	if len(slug) <= maxSlugLen {
		return prefix + slug
	}
	sum := md5.Sum([]byte(name + salt)) //nolint:gosec // see import
	return prefix + slug[:truncatedSlugLen] + "_" + hex.EncodeToString(sum[:])[:hashLen]
}

// formatCoordinate renders a coordinate the way the hash input has always
// been built: shortest decimal form with at least one fractional digit
// (50 -> "50.0", 11.9 -> "11.9"). Absent coordinates contribute nothing.
func formatCoordinate(v *float64) string {
	if v == nil {
		return ""
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
