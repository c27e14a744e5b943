package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initLeakMetrics() {
	r.LeakCasesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "waternet_leak_cases_total",
			Help: "Leak cases opened by source",
		},
		[]string{"source"},
	)

	r.LeakTransitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "waternet_leak_transitions_total",
			Help: "Leak case status transitions",
		},
		[]string{"from", "to"},
	)

	r.LeakCASConflictsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "waternet_leak_cas_conflicts_total",
			Help: "Leak case transitions lost to a concurrent writer",
		},
	)

	r.LeakCasesArchived = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "waternet_leak_cases_archived_total",
			Help: "Resolved cases written to the archive",
		},
	)
}
