package alerts

import (
	"slices"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// lookup returns the alert pointer and its shard
func (e *Evaluator) lookup(id string) (*Alert, *shard, bool) {
	e.byIDMu.RLock()
	a, ok := e.byID[id]
	e.byIDMu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	// SensorID never changes after creation
	return a, e.shardFor(a.SensorID), true
}

// Acknowledge moves an unacknowledged alert to Acknowledged. A later
// crossing for the same sensor and type raises a new alert.
func (e *Evaluator) Acknowledge(id, actor string, at time.Time) (Alert, error) {
	a, sh, ok := e.lookup(id)
	if !ok {
		return Alert{}, fault.New("Acknowledge").Alert(id).Cause(fault.ErrUnknownAlert).Err()
	}
	if at.IsZero() {
		at = e.now()
	}

	sh.mu.Lock()
	switch a.State {
	case Acknowledged:
		sh.mu.Unlock()
		return Alert{}, fault.New("Acknowledge").Alert(id).Transition(string(Acknowledged), string(Acknowledged)).
			Cause(fault.ErrAlreadyAcknowledged).Err()
	case Expired:
		sh.mu.Unlock()
		return Alert{}, fault.New("Acknowledge").Alert(id).Transition(string(Expired), string(Acknowledged)).
			Cause(fault.ErrInvalidTransition).Err()
	}
	a.State = Acknowledged
	a.AcknowledgedBy = actor
	a.AcknowledgedAt = &at
	k := key{sensor: a.SensorID, typ: a.Type}
	if sh.active[k] == a {
		delete(sh.active, k)
	}
	if !a.Cleared {
		sh.acked[k] = append(sh.acked[k], a)
	}
	out := *a
	sh.mu.Unlock()

	if e.metrics != nil {
		e.metrics.AlertsAckTotal.Inc()
		e.metrics.AlertsActive.WithLabelValues(out.Severity.String()).Dec()
	}
	e.logger.Info("alert acknowledged", logging.AlertID(id), logging.Sensor(out.SensorID), logging.String("actor", actor))
	e.emit(Event{Type: EventAcknowledged, Alert: out})
	return out, nil
}

// ExpireStale expires unacknowledged alerts whose last update is older
// than the policy window for their type. Critical alerts never expire.
func (e *Evaluator) ExpireStale(now time.Time) []Alert {
	policy := e.ExpiryPolicy()
	var expired []Alert

	for _, sh := range e.shards {
		sh.mu.Lock()
		for k, a := range sh.active {
			if a.Severity == SeverityCritical {
				continue
			}
			window := policy.For(a.Type)
			if window <= 0 || now.Sub(a.UpdatedAt) < window {
				continue
			}
			at := now
			a.State = Expired
			a.ExpiredAt = &at
			delete(sh.active, k)
			expired = append(expired, *a)
		}
		sh.mu.Unlock()
	}

	for _, a := range expired {
		if e.metrics != nil {
			e.metrics.AlertsExpiredTotal.Inc()
			e.metrics.AlertsActive.WithLabelValues(a.Severity.String()).Dec()
		}
		e.logger.Info("alert expired", logging.AlertID(a.ID), logging.Sensor(a.SensorID), logging.String("type", string(a.Type)))
		e.emit(Event{Type: EventExpired, Alert: a})
	}
	return expired
}

// Get returns a copy of an alert
func (e *Evaluator) Get(id string) (Alert, error) {
	a, sh, ok := e.lookup(id)
	if !ok {
		return Alert{}, fault.New("Get").Alert(id).Cause(fault.ErrUnknownAlert).Err()
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return *a, nil
}

// Active returns unacknowledged alerts, most recent first
func (e *Evaluator) Active() []Alert {
	var out []Alert
	for _, sh := range e.shards {
		sh.mu.Lock()
		for _, a := range sh.active {
			out = append(out, *a)
		}
		sh.mu.Unlock()
	}
	sortRecent(out)
	return out
}

// ActiveFor returns the unacknowledged alert for (sensor, type), if any
func (e *Evaluator) ActiveFor(sensorID string, t Type) (Alert, bool) {
	sh := e.shardFor(sensorID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	a, ok := sh.active[key{sensor: sensorID, typ: t}]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// List returns tracked alerts matching f, most recent first
func (e *Evaluator) List(f Filter) []Alert {
	e.byIDMu.RLock()
	ptrs := make([]*Alert, 0, len(e.byID))
	for _, a := range e.byID {
		ptrs = append(ptrs, a)
	}
	e.byIDMu.RUnlock()

	out := make([]Alert, 0, len(ptrs))
	for _, a := range ptrs {
		sh := e.shardFor(a.SensorID)
		sh.mu.Lock()
		if f.match(a) {
			out = append(out, *a)
		}
		sh.mu.Unlock()
	}
	sortRecent(out)
	return out
}

// Prune forgets closed alerts last updated before cutoff and returns them
func (e *Evaluator) Prune(cutoff time.Time) []Alert {
	e.byIDMu.RLock()
	ptrs := make([]*Alert, 0, len(e.byID))
	for _, a := range e.byID {
		ptrs = append(ptrs, a)
	}
	e.byIDMu.RUnlock()

	var removed []Alert
	for _, a := range ptrs {
		sh := e.shardFor(a.SensorID)
		sh.mu.Lock()
		if a.Closed() && lastTouched(a).Before(cutoff) {
			removed = append(removed, *a)
			e.byIDMu.Lock()
			delete(e.byID, a.ID)
			e.byIDMu.Unlock()
		}
		sh.mu.Unlock()
	}
	if len(removed) > 0 {
		e.logger.Debug("closed alerts pruned", logging.Count(len(removed)))
	}
	return removed
}

// markCleared records that the condition behind a no longer holds.
// Caller holds the shard lock.
func (e *Evaluator) markCleared(a *Alert, at time.Time) {
	a.Cleared = true
	a.ClearedAt = &at
	if e.metrics != nil {
		e.metrics.AlertsClearedTotal.Inc()
	}
	e.logger.Info("alert cleared", logging.AlertID(a.ID), logging.Sensor(a.SensorID))
}

func lastTouched(a *Alert) time.Time {
	t := a.UpdatedAt
	for _, ts := range []*time.Time{a.AcknowledgedAt, a.ClearedAt, a.ExpiredAt} {
		if ts != nil && ts.After(t) {
			t = *ts
		}
	}
	return t
}

func sortRecent(alerts []Alert) {
	slices.SortFunc(alerts, func(a, b Alert) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
