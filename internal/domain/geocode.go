package domain

import (
	"context"
	"log/slog"
)

// GeoSource records how a location's position or address was obtained.
type GeoSource string

const (
	GeoSkipped  GeoSource = "skipped"
	GeoForward  GeoSource = "forward"
	GeoReverse  GeoSource = "reverse"
	GeoOriginal GeoSource = "original"
	GeoFailed   GeoSource = "failed"
)

// ResolveCoordinates fills a missing position by forward geocoding the venue
// name within region. Locations that already have coordinates, or a nil
// geocoder, are left untouched (graceful degradation).
func ResolveCoordinates(ctx context.Context, loc *Location, region string, geocoder Geocoder, logger *slog.Logger) GeoSource {
	if geocoder == nil || loc.HasCoordinates() {
		return GeoSkipped
	}

	result, err := geocoder.ForwardGeocode(ctx, loc.Name, region)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"location_id", loc.ID,
			"name", loc.Name,
			"region", region,
			"error", err,
		)
		return GeoFailed
	}
	if !result.HasPosition() {
		return GeoOriginal
	}

	loc.Lat = result.Lat
	loc.Lon = result.Lon
	fillEmpty(&loc.Address, result.Address)
	return GeoForward
}

// ResolveAddress fills a missing address by reverse geocoding the position.
func ResolveAddress(ctx context.Context, loc *Location, geocoder Geocoder, logger *slog.Logger) GeoSource {
	if geocoder == nil || loc.Address != "" || !loc.HasCoordinates() {
		return GeoSkipped
	}

	result, err := geocoder.ReverseGeocode(ctx, loc.Lat, loc.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"location_id", loc.ID,
			"lat", loc.Lat,
			"lon", loc.Lon,
			"error", err,
		)
		return GeoFailed
	}
	if result.Address == "" {
		return GeoOriginal
	}

	loc.Address = result.Address
	return GeoReverse
}
