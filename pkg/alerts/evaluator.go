package alerts

import (
	"cmp"
	"hash/fnv"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
)

// DefaultShards is the number of sensor lock shards
const DefaultShards = 64

type key struct {
	sensor string
	typ    Type
}

// shard owns the alerts of the sensors hashed to it. Alert fields are
// only read or written under the owning shard's mutex. Lock order is
// shard.mu then byIDMu.
type shard struct {
	mu     sync.Mutex
	active map[key]*Alert
	// acknowledged alerts still waiting for their condition to clear
	acked map[key][]*Alert
}

// Stats counts evaluator activity
type Stats struct {
	Evaluated uint64 `json:"evaluated"`
	NonFinite uint64 `json:"non_finite"`
	Clamped   uint64 `json:"clamped"`
	Raised    uint64 `json:"raised"`
	Active    int    `json:"active"`
	Tracked   int    `json:"tracked"`
}

// Evaluator checks readings against per-sensor rules and manages alerts
type Evaluator struct {
	shards []*shard

	rulesMu sync.RWMutex
	rules   map[string][]Rule

	byIDMu sync.RWMutex
	byID   map[string]*Alert

	expiry atomic.Pointer[ExpiryPolicy]

	listenersMu sync.RWMutex
	listeners   []Listener

	leaks    LeakOpener
	segments SegmentResolver

	evaluated atomic.Uint64
	nonFinite atomic.Uint64
	clamped   atomic.Uint64
	raised    atomic.Uint64

	logger  logging.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithShards sets the shard count
func WithShards(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.shards = newShards(n)
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithMetrics sets the metrics registry
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithLeakOpener wires automatic leak case creation for critical pressure alerts
func WithLeakOpener(o LeakOpener, r SegmentResolver) Option {
	return func(e *Evaluator) {
		e.leaks = o
		e.segments = r
	}
}

// WithExpiry sets the initial expiry policy
func WithExpiry(p ExpiryPolicy) Option {
	return func(e *Evaluator) { e.SetExpiryPolicy(p) }
}

func newShards(n int) []*shard {
	s := make([]*shard, n)
	for i := range s {
		s[i] = &shard{active: make(map[key]*Alert), acked: make(map[key][]*Alert)}
	}
	return s
}

// NewEvaluator creates an evaluator with a 24h default expiry
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		shards: newShards(DefaultShards),
		rules:  make(map[string][]Rule),
		byID:   make(map[string]*Alert),
		logger: logging.NewNopLogger(),
		now:    time.Now,
	}
	e.SetExpiryPolicy(ExpiryPolicy{Default: 24 * time.Hour})
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logging.Component("alerts"))
	return e
}

// SetExpiryPolicy replaces the expiry policy
func (e *Evaluator) SetExpiryPolicy(p ExpiryPolicy) {
	cp := ExpiryPolicy{Default: p.Default, PerType: make(map[Type]time.Duration, len(p.PerType))}
	for k, v := range p.PerType {
		cp.PerType[k] = v
	}
	e.expiry.Store(&cp)
}

// ExpiryPolicy returns the current expiry policy
func (e *Evaluator) ExpiryPolicy() ExpiryPolicy {
	return *e.expiry.Load()
}

// OnEvent registers a listener for alert events
func (e *Evaluator) OnEvent(l Listener) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, l)
	e.listenersMu.Unlock()
}

func (e *Evaluator) emit(ev Event) {
	e.listenersMu.RLock()
	ls := e.listeners
	e.listenersMu.RUnlock()
	for _, l := range ls {
		l(ev)
	}
}

func (e *Evaluator) shardFor(sensor string) *shard {
	h := fnv.New32a()
	h.Write([]byte(sensor))
	return e.shards[h.Sum32()%uint32(len(e.shards))]
}

// SetRule installs or replaces the rule for (sensor, type)
func (e *Evaluator) SetRule(r Rule) (Rule, error) {
	r, err := r.Validate()
	if err != nil {
		return r, fault.New("SetRule").Entity("sensor", r.SensorID).Cause(fault.ErrInvalidValue).Context("%v", err).Err()
	}

	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	list := e.rules[r.SensorID]
	i := slices.IndexFunc(list, func(x Rule) bool { return x.Type == r.Type })
	if i >= 0 {
		list[i] = r
	} else {
		list = append(list, r)
		slices.SortFunc(list, func(a, b Rule) int { return cmp.Compare(a.Type, b.Type) })
	}
	e.rules[r.SensorID] = list
	e.logger.Info("threshold rule set", logging.Sensor(r.SensorID), logging.String("type", string(r.Type)))
	return r, nil
}

// Rules returns the rules of a sensor
func (e *Evaluator) Rules(sensorID string) []Rule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return slices.Clone(e.rules[sensorID])
}

// AllRules returns every rule, ordered by sensor then type
func (e *Evaluator) AllRules() []Rule {
	e.rulesMu.RLock()
	sensors := make([]string, 0, len(e.rules))
	for s := range e.rules {
		sensors = append(sensors, s)
	}
	slices.Sort(sensors)
	var out []Rule
	for _, s := range sensors {
		out = append(out, e.rules[s]...)
	}
	e.rulesMu.RUnlock()
	return out
}

// HasRules reports whether any rule exists for a sensor
func (e *Evaluator) HasRules(sensorID string) bool {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return len(e.rules[sensorID]) > 0
}

// Evaluate checks a reading against every rule of its sensor. It returns
// the alert raised or updated by the reading (the most severe when several
// rules cross) and true, or false when nothing crosses. Non-finite values
// are logged and counted and never raise.
func (e *Evaluator) Evaluate(r Reading) (Alert, bool) {
	e.evaluated.Add(1)
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		e.nonFinite.Add(1)
		if e.metrics != nil {
			e.metrics.IngestInvalidTotal.WithLabelValues("non_finite").Inc()
		}
		e.logger.Warn("non-finite reading ignored", logging.Sensor(r.SensorID), logging.Float64("value", r.Value))
		return Alert{}, false
	}

	rules := e.Rules(r.SensorID)
	if len(rules) == 0 {
		return Alert{}, false
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = e.now()
	}

	var (
		best   Alert
		found  bool
		events []Event
		leaks  []string
	)

	sh := e.shardFor(r.SensorID)
	sh.mu.Lock()
	for _, rule := range rules {
		v, clamped := rule.clamp(r.Value)
		if clamped {
			e.clamped.Add(1)
			if e.metrics != nil {
				e.metrics.IngestInvalidTotal.WithLabelValues("out_of_range").Inc()
			}
			e.logger.Warn("reading outside valid range clamped",
				logging.Sensor(r.SensorID), logging.Float64("value", r.Value), logging.Float64("clamped", v))
		}

		k := key{sensor: r.SensorID, typ: rule.Type}
		level, crossed := rule.classify(v)
		cur := sh.active[k]

		if !crossed {
			if cur != nil && !cur.Cleared {
				e.markCleared(cur, r.Timestamp)
			}
			for _, a := range sh.acked[k] {
				e.markCleared(a, r.Timestamp)
			}
			delete(sh.acked, k)
			continue
		}

		var ev *Event
		if cur == nil {
			cur = &Alert{
				ID:          uuid.NewString(),
				SensorID:    r.SensorID,
				Type:        rule.Type,
				Value:       v,
				Threshold:   level.Limit,
				Severity:    level.Severity,
				RaisedAt:    r.Timestamp,
				UpdatedAt:   r.Timestamp,
				Occurrences: 1,
				State:       Unacknowledged,
			}
			sh.active[k] = cur
			e.byIDMu.Lock()
			e.byID[cur.ID] = cur
			e.byIDMu.Unlock()
			e.raised.Add(1)
			if e.metrics != nil {
				e.metrics.RecordAlertRaised(string(rule.Type), level.Severity.String())
				e.metrics.AlertsActive.WithLabelValues(level.Severity.String()).Inc()
			}
			ev = &Event{Type: EventRaised}
		} else {
			cur.Value = v
			cur.UpdatedAt = r.Timestamp
			cur.Occurrences++
			cur.Cleared = false
			cur.ClearedAt = nil
			if level.Severity > cur.Severity {
				if e.metrics != nil {
					e.metrics.AlertsEscalatedTotal.Inc()
					e.metrics.AlertsActive.WithLabelValues(cur.Severity.String()).Dec()
					e.metrics.AlertsActive.WithLabelValues(level.Severity.String()).Inc()
				}
				cur.Severity = level.Severity
				cur.Threshold = level.Limit
				ev = &Event{Type: EventRaised, Escalated: true}
			}
		}

		if cur.Severity == SeverityCritical && rule.Type.Pressure() && cur.LeakCaseID == "" && !cur.leakPending && e.leaks != nil {
			cur.leakPending = true
			leaks = append(leaks, cur.ID)
		}
		if ev != nil {
			ev.Alert = *cur
			events = append(events, *ev)
		}
		if !found || cur.Severity > best.Severity {
			best = *cur
			found = true
		}
	}
	sh.mu.Unlock()

	for _, ev := range events {
		if ev.Escalated {
			e.logger.Warn("alert escalated", logging.AlertID(ev.Alert.ID), logging.Sensor(ev.Alert.SensorID),
				logging.String("severity", ev.Alert.Severity.String()))
		} else {
			e.logger.Info("alert raised", logging.AlertID(ev.Alert.ID), logging.Sensor(ev.Alert.SensorID),
				logging.String("type", string(ev.Alert.Type)), logging.String("severity", ev.Alert.Severity.String()))
		}
		e.emit(ev)
	}
	for _, id := range leaks {
		if caseID := e.openLeak(sh, id); caseID != "" && best.ID == id {
			best.LeakCaseID = caseID
		}
	}
	return best, found
}

// openLeak creates a leak case for a critical pressure alert. Called without the shard lock.
func (e *Evaluator) openLeak(sh *shard, alertID string) string {
	e.byIDMu.RLock()
	a := e.byID[alertID]
	e.byIDMu.RUnlock()

	sh.mu.Lock()
	snapshot := *a
	sh.mu.Unlock()

	segment := ""
	if e.segments != nil {
		segment, _ = e.segments.SensorSegment(snapshot.SensorID)
	}
	caseID, err := e.leaks.CreateFromAlert(snapshot, segment)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	a.leakPending = false
	if err != nil {
		e.logger.Error("failed to open leak case for critical alert",
			logging.AlertID(alertID), logging.Sensor(snapshot.SensorID), logging.Error(err))
		return ""
	}
	a.LeakCaseID = caseID
	e.logger.Warn("leak case opened from critical alert",
		logging.AlertID(alertID), logging.CaseID(caseID), logging.String("segment", segment))
	return caseID
}

// Stats returns evaluator counters
func (e *Evaluator) Stats() Stats {
	st := Stats{
		Evaluated: e.evaluated.Load(),
		NonFinite: e.nonFinite.Load(),
		Clamped:   e.clamped.Load(),
		Raised:    e.raised.Load(),
	}
	for _, sh := range e.shards {
		sh.mu.Lock()
		st.Active += len(sh.active)
		sh.mu.Unlock()
	}
	e.byIDMu.RLock()
	st.Tracked = len(e.byID)
	e.byIDMu.RUnlock()
	return st
}
