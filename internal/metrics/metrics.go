package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the attribution core.
type Metrics struct {
	// Sync metrics
	SyncPasses      *prometheus.CounterVec
	SyncRecords     *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec
	SyncFailures    *prometheus.CounterVec
	OrgsInFlight    prometheus.Gauge

	// Attribution metrics
	AttributionMatches *prometheus.CounterVec
	AttributionMisses  *prometheus.CounterVec
	MatchConfidence    *prometheus.HistogramVec

	// Cache metrics
	MetricsUpserts  *prometheus.CounterVec
	StaleChecks     *prometheus.CounterVec
	CacheAgeSeconds *prometheus.GaugeVec

	// Ingest metrics
	PixelEvents     *prometheus.CounterVec
	ArchiveBatches  *prometheus.CounterVec
	ArchiveFailures prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SyncPasses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_passes_total",
				Help:      "Completed sync passes by type and status",
			},
			[]string{"sync_type", "status"},
		),
		SyncRecords: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_records_total",
				Help:      "Records processed by sync passes",
			},
			[]string{"sync_type"},
		),
		SyncDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Wall time of one organization pipeline",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"sync_type"},
		),
		SyncFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_failures_total",
				Help:      "Failed sync passes by type",
			},
			[]string{"sync_type"},
		),
		OrgsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_orgs_in_flight",
				Help:      "Organization pipelines currently running",
			},
		),

		AttributionMatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribution_matches_total",
				Help:      "Successful attribution matches by method",
			},
			[]string{"organization_id", "method"},
		),
		AttributionMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribution_misses_total",
				Help:      "Purchase signals with no matching rule",
			},
			[]string{"organization_id"},
		),
		MatchConfidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attribution_confidence",
				Help:      "Confidence scores of emitted matches",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.7, 0.75, 0.9, 0.95, 1},
			},
			[]string{"method"},
		),

		MetricsUpserts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "daily_metrics_upserts_total",
				Help:      "Daily metrics rows written to the cache",
			},
			[]string{"organization_id"},
		),
		StaleChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_checks_total",
				Help:      "Freshness decisions by outcome",
			},
			[]string{"outcome"}, // fresh, stale, empty
		),
		CacheAgeSeconds: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_age_seconds",
				Help:      "Age of the newest cached metrics row per organization",
			},
			[]string{"organization_id"},
		),

		PixelEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pixel_events_total",
				Help:      "Ingested pixel events by type",
			},
			[]string{"event_type"},
		),
		ArchiveBatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_batches_total",
				Help:      "Pixel event batches written to the archive",
			},
			[]string{"status"},
		),
		ArchiveFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_failures_total",
				Help:      "Archive writes that returned an error",
			},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSyncPass records a completed sync pass.
func (m *Metrics) RecordSyncPass(syncType, status string, records int64, elapsed time.Duration) {
	m.SyncPasses.WithLabelValues(syncType, status).Inc()
	if records > 0 {
		m.SyncRecords.WithLabelValues(syncType).Add(float64(records))
	}
	m.SyncDuration.WithLabelValues(syncType).Observe(elapsed.Seconds())
	if status == "failed" {
		m.SyncFailures.WithLabelValues(syncType).Inc()
	}
}

// RecordAttributionMatch records a successful match.
func (m *Metrics) RecordAttributionMatch(orgID, method string, confidence float64) {
	m.AttributionMatches.WithLabelValues(orgID, method).Inc()
	m.MatchConfidence.WithLabelValues(method).Observe(confidence)
}

// RecordAttributionMiss records a purchase signal that stayed unmatched.
func (m *Metrics) RecordAttributionMiss(orgID string) {
	m.AttributionMisses.WithLabelValues(orgID).Inc()
}

// RecordMetricsUpsert records a daily metrics cache write.
func (m *Metrics) RecordMetricsUpsert(orgID string) {
	m.MetricsUpserts.WithLabelValues(orgID).Inc()
}

// RecordStaleCheck records a freshness decision.
func (m *Metrics) RecordStaleCheck(outcome string) {
	m.StaleChecks.WithLabelValues(outcome).Inc()
}

// RecordCacheAge records the age of an organization's newest cached row.
func (m *Metrics) RecordCacheAge(orgID string, age time.Duration) {
	m.CacheAgeSeconds.WithLabelValues(orgID).Set(age.Seconds())
}

// RecordPixelEvent records one ingested pixel event.
func (m *Metrics) RecordPixelEvent(eventType string) {
	m.PixelEvents.WithLabelValues(eventType).Inc()
}

// RecordArchiveBatch records an archive write.
func (m *Metrics) RecordArchiveBatch(ok bool) {
	if ok {
		m.ArchiveBatches.WithLabelValues("ok").Inc()
	} else {
		m.ArchiveBatches.WithLabelValues("error").Inc()
		m.ArchiveFailures.Inc()
	}
}
