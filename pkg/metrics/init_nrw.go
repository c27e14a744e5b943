package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initNRWMetrics() {
	r.NRWPercent = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waternet_nrw_percent",
			Help: "Current-period NRW percentage per DMA",
		},
		[]string{"dma"},
	)

	r.NRWLossVolume = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waternet_nrw_loss_m3",
			Help: "Current-period water loss volume per DMA",
		},
		[]string{"dma"},
	)

	r.RollupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "waternet_rollups_total",
			Help: "DMA rollup jobs by outcome",
		},
		[]string{"status"},
	)

	r.RollupDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waternet_rollup_duration_seconds",
			Help:    "Per-DMA rollup duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	r.RollupDeadlineTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "waternet_rollup_deadline_exceeded_total",
			Help: "Rollups that overran their time budget",
		},
	)
}
