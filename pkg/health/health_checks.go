package health

import (
	"context"
	"fmt"
	"time"
)

// SaturationThreshold is the ingestion queue fill ratio reported as degraded
const SaturationThreshold = 0.8

// ReadyCheck reports whether the engine has replayed its journal and is
// accepting work
func ReadyCheck(ready func() bool) CheckFunc {
	return func() Check {
		check := Check{Name: "engine", Status: StatusHealthy, Message: "Accepting work"}
		if !ready() {
			check.Status = StatusUnhealthy
			check.Message = "Not ready"
		}
		return check
	}
}

// QueueCheck reports ingestion queue saturation. A queue at or above
// SaturationThreshold of its capacity is degraded.
func QueueCheck(depth func() (depth, capacity int)) CheckFunc {
	return func() Check {
		d, c := depth()
		check := Check{
			Name: "ingest_queue",
			Details: map[string]any{
				"depth":    d,
				"capacity": c,
			},
		}
		if c <= 0 {
			check.Status = StatusUnhealthy
			check.Message = "Queue not initialised"
			return check
		}

		ratio := float64(d) / float64(c)
		check.Details["fill_ratio"] = ratio
		if ratio >= SaturationThreshold {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Queue %.0f%% full", ratio*100)
		} else {
			check.Status = StatusHealthy
			check.Message = "Queue draining"
		}
		return check
	}
}

// IntegrityCheck reports a DMA integrity halt as unhealthy. Rebalancing
// stays blocked until an operator resumes it.
func IntegrityCheck(halted func() (bool, string)) CheckFunc {
	return func() Check {
		check := Check{Name: "dma_integrity", Status: StatusHealthy, Message: "Consistent"}
		if h, reason := halted(); h {
			check.Status = StatusUnhealthy
			check.Message = "Rebalancing halted"
			check.Details = map[string]any{"reason": reason}
		}
		return check
	}
}

// JournalCheck reports the replay journal. A nil errFn means journaling
// is disabled, which is healthy.
func JournalCheck(errFn func() error) CheckFunc {
	return func() Check {
		check := Check{Name: "journal"}
		switch {
		case errFn == nil:
			check.Status = StatusHealthy
			check.Message = "Disabled"
		default:
			if err := errFn(); err != nil {
				check.Status = StatusUnhealthy
				check.Message = err.Error()
			} else {
				check.Status = StatusHealthy
				check.Message = "Writable"
			}
		}
		return check
	}
}

// DependencyCheck pings an optional backing service such as the archive
// database or the snapshot cache. Failures degrade rather than fail the
// service, since the engine keeps working without them.
func DependencyCheck(name string, timeout time.Duration, ping func(context.Context) error) CheckFunc {
	return func() Check {
		check := Check{Name: name}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := ping(ctx); err != nil {
			check.Status = StatusDegraded
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}
		return check
	}
}

// CertificateCheck degrades once the serving certificate is within warn of
// expiry and fails after it has expired.
func CertificateCheck(expiresIn func() time.Duration, warn time.Duration) CheckFunc {
	return func() Check {
		left := expiresIn()
		check := Check{
			Name:    "tls_certificate",
			Status:  StatusHealthy,
			Message: "Valid",
			Details: map[string]any{"expires_in": left.Round(time.Second).String()},
		}
		switch {
		case left <= 0:
			check.Status = StatusUnhealthy
			check.Message = "Certificate expired"
		case left < warn:
			check.Status = StatusDegraded
			check.Message = "Certificate expires soon"
		}
		return check
	}
}

// MemoryCheck creates a health check for memory usage
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		alloc, sys := getUsage()
		check.Details["alloc_bytes"] = alloc
		check.Details["sys_bytes"] = sys

		if sys > 0 && float64(alloc)/float64(sys)*100 > 90 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}
		return check
	}
}
