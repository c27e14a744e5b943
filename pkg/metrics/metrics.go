package metrics

import (
	"runtime"
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordResponseSize records the size of an HTTP response body
func (r *Registry) RecordResponseSize(method, path string, size float64) {
	r.HTTPResponseSizeBytes.WithLabelValues(method, path).Observe(size)
}

// IncHTTPRequestsInFlight marks a request as started
func (r *Registry) IncHTTPRequestsInFlight() { r.HTTPRequestsInFlight.Inc() }

// DecHTTPRequestsInFlight marks a request as finished
func (r *Registry) DecHTTPRequestsInFlight() { r.HTTPRequestsInFlight.Dec() }

// RecordRateLimited counts a request rejected by the rate limiter
func (r *Registry) RecordRateLimited() { r.HTTPRateLimitedTotal.Inc() }

// RecordIngest records the outcome of a queue submission. An empty reason means accepted.
func (r *Registry) RecordIngest(kind, reason string) {
	if reason == "" {
		r.IngestAcceptedTotal.WithLabelValues(kind).Inc()
		return
	}
	r.IngestRejectedTotal.WithLabelValues(kind, reason).Inc()
}

// SetQueue publishes the ingestion queue depth and capacity
func (r *Registry) SetQueue(depth, capacity int) {
	r.IngestQueueDepth.Set(float64(depth))
	r.IngestQueueCapacity.Set(float64(capacity))
}

// RecordRollup records a per-DMA rollup job
func (r *Registry) RecordRollup(status string, duration time.Duration) {
	r.RollupsTotal.WithLabelValues(status).Inc()
	r.RollupDuration.Observe(duration.Seconds())
	if status == "deadline_exceeded" {
		r.RollupDeadlineTotal.Inc()
	}
}

// SetDMANRW publishes a DMA's current NRW figures
func (r *Registry) SetDMANRW(dma string, percent, lossM3 float64) {
	r.NRWPercent.WithLabelValues(dma).Set(percent)
	r.NRWLossVolume.WithLabelValues(dma).Set(lossM3)
}

// RecordAlertRaised records a newly raised alert
func (r *Registry) RecordAlertRaised(alertType, severity string) {
	r.AlertsRaisedTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordLeakTransition records a leak case status change
func (r *Registry) RecordLeakTransition(from, to string) {
	r.LeakTransitionsTotal.WithLabelValues(from, to).Inc()
}

// SetRebalancingHalted flips the integrity halt gauge
func (r *Registry) SetRebalancingHalted(halted bool) {
	if halted {
		r.DMAIntegrityHalted.Set(1)
	} else {
		r.DMAIntegrityHalted.Set(0)
	}
}

// UpdateSystemMetrics samples runtime statistics
func (r *Registry) UpdateSystemMetrics(started time.Time) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.UptimeSeconds.Set(time.Since(started).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}
