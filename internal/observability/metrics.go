package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "incidentmap"

// Metrics holds the Prometheus collectors for the incident service.
type Metrics struct {
	IncidentsReported  *prometheus.CounterVec // labels: type
	Confirmations      prometheus.Counter
	Resolutions        prometheus.Counter
	IncidentsExpired   prometheus.Counter
	ValidationFailures prometheus.Counter

	// Enrichment metrics.
	EnrichmentRequests *prometheus.CounterVec   // labels: provider={geoapify,openweather}, outcome={success,error,skipped}
	EnrichmentCache    *prometheus.CounterVec   // labels: provider, result={hit,miss}
	EnrichmentDuration *prometheus.HistogramVec // labels: provider

	// Realtime metrics.
	RealtimeSessions prometheus.Gauge
	EventsPublished  *prometheus.CounterVec // labels: event
	EventsDropped    prometheus.Counter

	WebhookQueueDepth prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.IncidentsReported,
		m.Confirmations,
		m.Resolutions,
		m.IncidentsExpired,
		m.ValidationFailures,
		m.EnrichmentRequests,
		m.EnrichmentCache,
		m.EnrichmentDuration,
		m.RealtimeSessions,
		m.EventsPublished,
		m.EventsDropped,
		m.WebhookQueueDepth,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many
// as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IncidentsReported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_reported_total",
			Help:      "Incidents persisted, by incident type.",
		}, []string{"type"}),
		Confirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Successful incident confirmations.",
		}),
		Resolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Incidents transitioned to inactive.",
		}),
		IncidentsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_expired_total",
			Help:      "Incidents hard-deleted by the expiry sweeper.",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected incident reports.",
		}),
		EnrichmentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_requests_total",
			Help:      "Enrichment lookups by provider and outcome.",
		}, []string{"provider", "outcome"}),
		EnrichmentCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_cache_total",
			Help:      "Enrichment cache lookups by provider and result.",
		}, []string{"provider", "result"}),
		EnrichmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "Enrichment API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		RealtimeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_sessions",
			Help:      "Currently connected realtime sessions.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Incident events published to the hub, by event name.",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Per-session deliveries dropped because the session buffer was full.",
		}),
		WebhookQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "webhook_queue_depth",
			Help:      "Webhook payloads waiting in the Redis queue, sampled after each pop.",
		}),
	}
}
