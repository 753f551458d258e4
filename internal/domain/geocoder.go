package domain

import "context"

// GeocodingResult is a provider's answer for one venue lookup. The zero
// value means nothing usable was found.
type GeocodingResult struct {
	Lat       float64
	Lon       float64
	Address   string  // street address, without the venue name
	Name      string  // the provider's name for the match
	Relevance float64 // 0.0–1.0 provider confidence score
}

// HasPosition reports whether the result carries coordinates.
func (r GeocodingResult) HasPosition() bool { return r.Lat != 0 || r.Lon != 0 }

// Found reports whether the result carries anything worth keeping.
func (r GeocodingResult) Found() bool { return r.HasPosition() || r.Address != "" }

// Geocoder resolves venue positions and addresses. Implementations return a
// zero result, not an error, when a query simply has no match.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, name, region string) (GeocodingResult, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
