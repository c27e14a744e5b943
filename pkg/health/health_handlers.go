package health

import (
	"encoding/json"
	"net/http"
)

// HTTPHandler serves the full report. Degraded still answers 200 so load
// balancers keep routing while an optional dependency is down.
func (hc *HealthChecker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, hc.Check(), true)
	}
}

// ReadinessHandler answers 200 only when every readiness check is healthy
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, hc.CheckReadiness(), false)
	}
}

// LivenessHandler answers 200 only when every liveness check is healthy
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, hc.CheckLiveness(), false)
	}
}

func writeResponse(w http.ResponseWriter, resp Response, degradedOK bool) {
	code := http.StatusOK
	switch {
	case resp.Status == StatusUnhealthy:
		code = http.StatusServiceUnavailable
	case resp.Status == StatusDegraded && !degradedOK:
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
