package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	HTTPResponseSizeBytes *prometheus.HistogramVec
	HTTPRateLimitedTotal  prometheus.Counter

	// Network Metrics
	NetworkNodesTotal      *prometheus.GaugeVec
	NetworkEdgesTotal      *prometheus.GaugeVec
	NetworkStatusChanges   *prometheus.CounterVec
	NetworkTraversalLength prometheus.Histogram
	DMAsTotal              prometheus.Gauge
	DMABoundaryCacheMisses prometheus.Counter
	DMAIntegrityHalted     prometheus.Gauge

	// Ingest Metrics
	IngestQueueDepth     prometheus.Gauge
	IngestQueueCapacity  prometheus.Gauge
	IngestAcceptedTotal  *prometheus.CounterVec
	IngestRejectedTotal  *prometheus.CounterVec
	IngestInvalidTotal   *prometheus.CounterVec
	IngestLatency        prometheus.Histogram
	ReadingsRetained     prometheus.Gauge
	JournalEntriesTotal  *prometheus.CounterVec
	JournalReplayedTotal prometheus.Counter

	// NRW Metrics
	NRWPercent          *prometheus.GaugeVec
	NRWLossVolume       *prometheus.GaugeVec
	RollupsTotal        *prometheus.CounterVec
	RollupDuration      prometheus.Histogram
	RollupDeadlineTotal prometheus.Counter

	// Alert Metrics
	AlertsRaisedTotal    *prometheus.CounterVec
	AlertsActive         *prometheus.GaugeVec
	AlertsAckTotal       prometheus.Counter
	AlertsExpiredTotal   prometheus.Counter
	AlertsClearedTotal   prometheus.Counter
	AlertsEscalatedTotal prometheus.Counter

	// Leak Metrics
	LeakCasesTotal        *prometheus.CounterVec
	LeakTransitionsTotal  *prometheus.CounterVec
	LeakCASConflictsTotal prometheus.Counter
	LeakCasesArchived     prometheus.Counter

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initHTTPMetrics()
	r.initNetworkMetrics()
	r.initIngestMetrics()
	r.initNRWMetrics()
	r.initAlertMetrics()
	r.initLeakMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
