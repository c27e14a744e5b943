package leaks

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/dd0wney/cluso-waternet/pkg/metrics"
)

func testCounter(t *testing.T, reg *metrics.Registry, from, to string) float64 {
	t.Helper()
	var m dto.Metric
	if err := reg.LeakTransitionsTotal.WithLabelValues(from, to).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.Counter.GetValue()
}
