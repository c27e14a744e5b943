package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initNetworkMetrics() {
	r.NetworkNodesTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waternet_network_nodes",
			Help: "Registered network nodes by kind",
		},
		[]string{"kind"},
	)

	r.NetworkEdgesTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waternet_network_segments",
			Help: "Registered pipeline segments by status",
		},
		[]string{"status"},
	)

	r.NetworkStatusChanges = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "waternet_network_status_changes_total",
			Help: "Node and segment status transitions",
		},
		[]string{"entity", "status"},
	)

	r.NetworkTraversalLength = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waternet_network_reachable_nodes",
			Help:    "Nodes visited per reachability query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	r.DMAsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "waternet_dmas",
			Help: "Number of district metered areas",
		},
	)

	r.DMABoundaryCacheMisses = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "waternet_dma_boundary_cache_misses_total",
			Help: "Boundary set recomputations",
		},
	)

	r.DMAIntegrityHalted = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "waternet_dma_rebalancing_halted",
			Help: "1 while membership edits are halted after an integrity violation",
		},
	)
}
