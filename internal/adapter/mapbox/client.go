package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/community-events/internal/config"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/observability"
)

const (
	defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

	methodForward = "forward"
	methodReverse = "reverse"

	outcomeSuccess = "success"
	outcomeEmpty   = "empty"
	outcomeWeak    = "low_relevance"
	outcomeError   = "error"
)

// Options tunes lookups to the desk's home region.
type Options struct {
	Token   string
	Timeout time.Duration
	// Language of returned names, e.g. "de".
	Language string
	// Country restricts results to ISO 3166-1 alpha-2 codes ("de" or "de,cz").
	Country string
	// Proximity biases venue matches toward a point, usually the map center.
	Proximity *config.Point
	// MinRelevance rejects forward matches Mapbox itself is unsure about.
	// Venue names are short and ambiguous; a weak match is worse than none.
	MinRelevance float64
}

// OptionsFromConfig derives client options from the desk configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	center := cfg.Settings.Map.Center
	opts := Options{
		Token:        cfg.MapboxToken,
		Timeout:      cfg.MapboxTimeout,
		Language:     cfg.MapboxLanguage,
		Country:      cfg.MapboxCountry,
		MinRelevance: cfg.MapboxMinRelevance,
	}
	if center.Lat != 0 || center.Lon != 0 {
		opts.Proximity = &center
	}
	return opts
}

// Client implements domain.Geocoder on the Mapbox Geocoding API.
type Client struct {
	opts       Options
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    defaultBaseURL,
		metrics:    metrics,
		logger:     logger,
	}
}

// ForwardGeocode looks up a venue by name, optionally narrowed to a region
// such as a town ("Theater Hof, Hof"). No match, or only a weak one, yields a
// zero result and no error.
func (c *Client) ForwardGeocode(ctx context.Context, name, region string) (domain.GeocodingResult, error) {
	query := name
	if region != "" {
		query = name + ", " + region
	}

	params := c.params()
	params.Set("types", "poi,address,place")
	params.Set("autocomplete", "false")
	if p := c.opts.Proximity; p != nil {
		params.Set("proximity", coordPair(p.Lat, p.Lon))
	}

	f, ok, err := c.lookup(ctx, methodForward, query, params)
	if err != nil || !ok {
		return domain.GeocodingResult{}, err
	}
	if f.Relevance < c.opts.MinRelevance {
		c.metrics.GeocodeRequests.WithLabelValues(methodForward, outcomeWeak).Inc()
		c.logger.Debug("geocode match below relevance floor",
			"query", query, "match", f.PlaceName, "relevance", f.Relevance)
		return domain.GeocodingResult{}, nil
	}
	c.metrics.GeocodeRequests.WithLabelValues(methodForward, outcomeSuccess).Inc()
	return f.result(), nil
}

// ReverseGeocode finds the street address at a position.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	params := c.params()
	params.Set("types", "address,poi")

	f, ok, err := c.lookup(ctx, methodReverse, coordPair(lat, lon), params)
	if err != nil || !ok {
		return domain.GeocodingResult{}, err
	}
	c.metrics.GeocodeRequests.WithLabelValues(methodReverse, outcomeSuccess).Inc()
	return f.result(), nil
}

func (c *Client) params() url.Values {
	v := url.Values{
		"access_token": {c.opts.Token},
		"limit":        {"1"},
	}
	if c.opts.Language != "" {
		v.Set("language", c.opts.Language)
	}
	if c.opts.Country != "" {
		v.Set("country", c.opts.Country)
	}
	return v
}

// lookup runs one request and returns its best feature. ok is false when
// the response held no features; that outcome is already counted.
func (c *Client) lookup(ctx context.Context, method, query string, params url.Values) (feature, bool, error) {
	fullURL := fmt.Sprintf("%s/%s.json?%s", c.baseURL, url.PathEscape(query), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return feature{}, false, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, outcomeError).Inc()
		return feature{}, false, fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.metrics.GeocodeRequests.WithLabelValues(method, outcomeError).Inc()
		return feature{}, false, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, outcomeError).Inc()
		return feature{}, false, fmt.Errorf("decode response: %w", err)
	}
	if len(body.Features) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues(method, outcomeEmpty).Inc()
		c.logger.Debug("geocode returned no features", "method", method, "query", query)
		return feature{}, false, nil
	}
	return body.Features[0], true, nil
}

// Mapbox wants lon,lat.
func coordPair(lat, lon float64) string {
	return strconv.FormatFloat(lon, 'f', 6, 64) + "," + strconv.FormatFloat(lat, 'f', 6, 64)
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	PlaceType []string  `json:"place_type"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}

// result maps a feature onto the domain type. For a POI the place name
// starts with the venue itself ("Theater Hof, Kulmbacher Straße 5, ...");
// that prefix is dropped so only the street address is stored.
func (f feature) result() domain.GeocodingResult {
	r := domain.GeocodingResult{
		Address:   f.PlaceName,
		Name:      f.Text,
		Relevance: f.Relevance,
	}
	if slices.Contains(f.PlaceType, "poi") {
		r.Address = strings.TrimPrefix(f.PlaceName, f.Text+", ")
	}
	if len(f.Center) == 2 {
		r.Lon, r.Lat = f.Center[0], f.Center[1]
	}
	return r
}
