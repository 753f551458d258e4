package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the editorial configuration shared with the site generator and
// scrapers. Sections the desk does not read (scraping, for one) are ignored.
type Settings struct {
	App        AppSettings        `yaml:"app"`
	Map        MapSettings        `yaml:"map"`
	Filtering  FilteringSettings  `yaml:"filtering"`
	Validation ValidationSettings `yaml:"validation"`
	Review     ReviewSettings     `yaml:"review"`
	Archive    ArchiveSettings    `yaml:"archive"`
}

// AppSettings names the site and its home region.
type AppSettings struct {
	Name   string `yaml:"name"`
	Region string `yaml:"region"` // appended to venue names when geocoding
}

// MapSettings is the front end's initial view.
type MapSettings struct {
	Center Point `yaml:"center"`
	Zoom   int   `yaml:"zoom"`
}

// Point is a WGS-84 position.
type Point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// FilteringSettings bounds which events are relevant to the site.
type FilteringSettings struct {
	// MaxDistanceKm from the map center; events farther away get a warning.
	// Zero disables the check.
	MaxDistanceKm float64 `yaml:"max_distance_km"`
}

// ValidationSettings tunes the event validator.
type ValidationSettings struct {
	// GenericLocationNames are placeholders (usually bare city names) that
	// scrapers fall back to when a venue is unknown.
	GenericLocationNames []string `yaml:"generic_location_names"`
}

// ReviewSettings tunes the editor context view.
type ReviewSettings struct {
	SimilarEventsLimit      int `yaml:"similar_events_limit"`
	SuggestionLimit         int `yaml:"suggestion_limit"`
	HighOccurrenceThreshold int `yaml:"high_occurrence_threshold"`
}

// ArchiveSettings controls how long published events stay active.
type ArchiveSettings struct {
	RetentionDays int `yaml:"retention_days"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		App: AppSettings{Name: "Community Events", Region: "Hof, Bayern"},
		Map: MapSettings{Center: Point{Lat: 50.3167, Lon: 11.9167}, Zoom: 13},
		Validation: ValidationSettings{
			GenericLocationNames: []string{"Hof", "Hof an der Saale", "Bayern", "Germany", "Deutschland", "Online", "TBA", "Unknown"},
		},
		Review: ReviewSettings{
			SimilarEventsLimit:      10,
			SuggestionLimit:         5,
			HighOccurrenceThreshold: 3,
		},
		Archive: ArchiveSettings{RetentionDays: 30},
	}
}

// LoadSettings reads path over the defaults. A missing file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return Settings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.Archive.RetentionDays < 1 {
		return errors.New("archive.retention_days must be at least 1")
	}
	if s.Review.SimilarEventsLimit < 1 {
		return errors.New("review.similar_events_limit must be at least 1")
	}
	if s.Review.SuggestionLimit < 1 {
		return errors.New("review.suggestion_limit must be at least 1")
	}
	if s.Review.HighOccurrenceThreshold < 1 {
		return errors.New("review.high_occurrence_threshold must be at least 1")
	}
	if s.Filtering.MaxDistanceKm < 0 {
		return errors.New("filtering.max_distance_km must not be negative")
	}
	if c := s.Map.Center; c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return errors.New("map.center is out of range")
	}
	return nil
}
