package health

import (
	"sync"
	"time"
)

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:      make(map[string]CheckFunc),
		readyChecks: make(map[string]CheckFunc),
		liveChecks:  make(map[string]CheckFunc),
		started:     time.Now(),
	}
}

// RegisterCheck adds a check to the full /health report
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.register(hc.checks, name, check)
}

// RegisterReadinessCheck adds a check that gates traffic
func (hc *HealthChecker) RegisterReadinessCheck(name string, check CheckFunc) {
	hc.register(hc.readyChecks, name, check)
}

// RegisterLivenessCheck adds a check that decides restarts
func (hc *HealthChecker) RegisterLivenessCheck(name string, check CheckFunc) {
	hc.register(hc.liveChecks, name, check)
}

func (hc *HealthChecker) register(group map[string]CheckFunc, name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	group[name] = check
}

// Check runs the full set of checks
func (hc *HealthChecker) Check() Response { return hc.run(hc.checks) }

// CheckReadiness runs the readiness checks
func (hc *HealthChecker) CheckReadiness() Response { return hc.run(hc.readyChecks) }

// CheckLiveness runs the liveness checks
func (hc *HealthChecker) CheckLiveness() Response { return hc.run(hc.liveChecks) }

// run executes a group concurrently so one slow dependency ping does not
// stack behind another. The worst status wins.
func (hc *HealthChecker) run(group map[string]CheckFunc) Response {
	hc.mu.RLock()
	funcs := make(map[string]CheckFunc, len(group))
	for name, fn := range group {
		funcs[name] = fn
	}
	hc.mu.RUnlock()

	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(funcs)),
		Uptime:    time.Since(hc.started).Seconds(),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, fn := range funcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			check := fn()
			check.Duration = time.Since(start)
			check.LastChecked = start
			if check.Name == "" {
				check.Name = name
			}

			mu.Lock()
			response.Checks[name] = check
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, check := range response.Checks {
		switch {
		case check.Status == StatusUnhealthy:
			response.Status = StatusUnhealthy
		case check.Status == StatusDegraded && response.Status != StatusUnhealthy:
			response.Status = StatusDegraded
		}
	}
	return response
}
