package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIngestMetrics() {
	r.IngestQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "waternet_ingest_queue_depth",
			Help: "Readings waiting in the ingestion queue",
		},
	)

	r.IngestQueueCapacity = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "waternet_ingest_queue_capacity",
			Help: "Configured ingestion queue depth",
		},
	)

	r.IngestAcceptedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "waternet_ingest_accepted_total",
			Help: "Submissions accepted into the ingestion queue",
		},
		[]string{"kind"},
	)

	r.IngestRejectedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "waternet_ingest_rejected_total",
			Help: "Submissions rejected by the ingestion queue",
		},
		[]string{"kind", "reason"},
	)

	r.IngestInvalidTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "waternet_ingest_invalid_readings_total",
			Help: "Readings that were malformed (non-finite or out of range)",
		},
		[]string{"reason"},
	)

	r.IngestLatency = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waternet_ingest_processing_seconds",
			Help:    "Time from enqueue to fully processed",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	r.ReadingsRetained = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "waternet_readings_retained",
			Help: "Readings held inside the retention window",
		},
	)

	r.JournalEntriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "waternet_journal_entries_total",
			Help: "Journal entries appended by operation",
		},
		[]string{"op"},
	)

	r.JournalReplayedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "waternet_journal_replayed_total",
			Help: "Journal entries replayed at startup",
		},
	)
}
