package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initAlertMetrics() {
	r.AlertsRaisedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "waternet_alerts_raised_total",
			Help: "New alerts raised by type and severity",
		},
		[]string{"type", "severity"},
	)

	r.AlertsActive = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waternet_alerts_active",
			Help: "Unacknowledged alerts by severity",
		},
		[]string{"severity"},
	)

	r.AlertsAckTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "waternet_alerts_acknowledged_total",
			Help: "Alerts acknowledged by an operator",
		},
	)

	r.AlertsExpiredTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "waternet_alerts_expired_total",
			Help: "Alerts expired without acknowledgement",
		},
	)

	r.AlertsClearedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "waternet_alerts_cleared_total",
			Help: "Alerts whose condition cleared",
		},
	)

	r.AlertsEscalatedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "waternet_alerts_escalated_total",
			Help: "Deduplicated alerts whose severity increased",
		},
	)
}
