package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/adapter/kafka"
	"github.com/couchcryptid/community-events/internal/adapter/mapbox"
	"github.com/couchcryptid/community-events/internal/config"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/entity"
	"github.com/couchcryptid/community-events/internal/linker"
	"github.com/couchcryptid/community-events/internal/observability"
	"github.com/couchcryptid/community-events/internal/review"
	"github.com/couchcryptid/community-events/internal/validation"
	"github.com/couchcryptid/community-events/internal/workflow"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// app carries the per-invocation dependencies. They are built once in
// setup and handed to the commands; nothing is global.
type app struct {
	verbose bool
	dataDir string
	clock   clockwork.Clock

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	files    *jsonfile.Files

	locs    *entity.Locations
	orgs    *entity.Organizers
	closers []io.Closer
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg
	a.logger = observability.NewLoggerTo(cmd.ErrOrStderr(), cfg)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetricsWith(a.registry)
	a.files = jsonfile.New(cfg.DataDir, a.clock, a.logger, a.metrics)
	a.logger.Debug("configuration loaded", "data_dir", cfg.DataDir, "config_file", cfg.ConfigFile)
	return nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil && a.logger != nil {
			a.logger.Error("close", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) locations() (*entity.Locations, error) {
	if a.locs == nil {
		locs, err := entity.OpenLocations(a.files, a.logger, a.metrics)
		if err != nil {
			return nil, err
		}
		a.locs = locs
	}
	return a.locs, nil
}

func (a *app) organizers() (*entity.Organizers, error) {
	if a.orgs == nil {
		orgs, err := entity.OpenOrganizers(a.files, a.logger, a.metrics)
		if err != nil {
			return nil, err
		}
		a.orgs = orgs
	}
	return a.orgs, nil
}

func (a *app) libraries() (*entity.Locations, *entity.Organizers, error) {
	locs, err := a.locations()
	if err != nil {
		return nil, nil, err
	}
	orgs, err := a.organizers()
	if err != nil {
		return nil, nil, err
	}
	return locs, orgs, nil
}

func (a *app) validator() *validation.Validator {
	return validation.New(validation.OptionsFromSettings(a.cfg.Settings), a.metrics)
}

// geocoder returns the cached Mapbox client, or nil when geocoding is off.
func (a *app) geocoder() domain.Geocoder {
	if !a.cfg.MapboxEnabled {
		a.metrics.GeocodeEnabled.Set(0)
		return nil
	}
	a.metrics.GeocodeEnabled.Set(1)
	client := mapbox.NewClient(mapbox.OptionsFromConfig(a.cfg), a.metrics, a.logger)
	a.logger.Debug("mapbox geocoding enabled", "cache_size", a.cfg.MapboxCacheSize, "timeout", a.cfg.MapboxTimeout)
	return mapbox.NewCachedGeocoder(client, a.cfg.MapboxCacheSize, a.metrics)
}

func (a *app) announcer() workflow.Announcer {
	if !a.cfg.KafkaEnabled {
		return workflow.NopAnnouncer{}
	}
	w := kafka.NewWriter(a.cfg, a.metrics, a.logger)
	a.closers = append(a.closers, w)
	return w
}

func (a *app) linker() (*linker.Linker, error) {
	locs, orgs, err := a.libraries()
	if err != nil {
		return nil, err
	}
	return linker.New(a.files, locs, orgs, a.logger, a.metrics), nil
}

func (a *app) workflow() (*workflow.Workflow, error) {
	locs, orgs, err := a.libraries()
	if err != nil {
		return nil, err
	}
	return workflow.New(a.files, locs, orgs, a.validator(), a.announcer(), a.logger, a.metrics), nil
}

func (a *app) reviewContexts() (review.PendingContexts, error) {
	locs, err := a.locations()
	if err != nil {
		return review.PendingContexts{}, err
	}
	notes, err := review.OpenNotes(a.files)
	if err != nil {
		return review.PendingContexts{}, err
	}
	agg := review.NewAggregator(a.validator(), locs, notes, review.OptionsFromSettings(a.cfg.Settings))
	return review.PendingContexts{Files: a.files, Aggregator: agg}, nil
}
