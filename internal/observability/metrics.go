package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "community_events"

// Metrics holds the Prometheus counters, histograms, and gauges for the desk.
type Metrics struct {
	ValidationsTotal *prometheus.CounterVec // labels: outcome={valid,invalid,warning}
	EntityWrites     *prometheus.CounterVec // labels: kind={location,organizer}, op={add,update,verify,delete,merge,usage,observe,replace}
	BackupsWritten   prometheus.Counter
	ReferencesAdded  *prometheus.CounterVec // labels: kind={location,organizer}
	EventTransitions *prometheus.CounterVec // labels: transition={import,approve,reject,archive}
	FeedMessages     *prometheus.CounterVec // labels: outcome={sent,error}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,empty,low_relevance,error}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}
	GeocodeEnabled     prometheus.Gauge
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		ValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      help("Event validations by outcome."),
		}, []string{"outcome"}),
		EntityWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_writes_total",
			Help:      help("Library mutations by entity kind and operation."),
		}, []string{"kind", "op"}),
		BackupsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_written_total",
			Help:      help("Backup snapshots written before a data file was replaced."),
		}),
		ReferencesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "references_added_total",
			Help:      help("Entity references attached to events by kind."),
		}, []string{"kind"}),
		EventTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_transitions_total",
			Help:      help("Editorial workflow transitions."),
		}, []string{"transition"}),
		FeedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_messages_total",
			Help:      help("Publication feed messages by outcome."),
		}, []string{"outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Geocoding API requests by method and outcome."),
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Geocoding cache lookups by method and result."),
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      help("1 when geocoding enrichment is enabled, 0 otherwise."),
		}),
	}
}

// NewMetrics creates and registers all desk metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all desk metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := newMetrics(true)
	reg.MustRegister(
		m.ValidationsTotal,
		m.EntityWrites,
		m.BackupsWritten,
		m.ReferencesAdded,
		m.EventTransitions,
		m.FeedMessages,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
