package leaks

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
)

// pack stores (version, status) in one word so a transition is a single CAS
func pack(version uint64, s Status) uint64 { return version<<8 | uint64(s) }

func unpack(w uint64) (uint64, Status) { return w >> 8, Status(w & 0xff) }

// record holds one case. word is the authority for status and version;
// mu guards the detail fields and is held across the CAS so readers see
// a coherent case.
type record struct {
	word atomic.Uint64
	mu   sync.Mutex
	c    Case
}

func (r *record) snapshot() Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneCase(r.c)
}

func cloneCase(c Case) Case {
	c.History = slices.Clone(c.History)
	c.PartsUsed = slices.Clone(c.PartsUsed)
	return c
}

// Tracker manages leak case lifecycles
type Tracker struct {
	mu    sync.RWMutex
	cases map[string]*record

	hooksMu sync.RWMutex
	hooks   []Hook

	topology Topology
	zones    ZoneResolver

	logger  logging.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithTopology validates locations against the asset graph
func WithTopology(t Topology) Option {
	return func(tr *Tracker) { tr.topology = t }
}

// WithZones resolves the owning DMA of new cases
func WithZones(z ZoneResolver) Option {
	return func(tr *Tracker) { tr.zones = z }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(tr *Tracker) { tr.logger = l }
}

// WithMetrics sets the metrics registry
func WithMetrics(m *metrics.Registry) Option {
	return func(tr *Tracker) { tr.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(tr *Tracker) { tr.now = now }
}

// NewTracker creates an empty tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		cases:  make(map[string]*record),
		logger: logging.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(logging.Component("leaks"))
	return t
}

// OnChange registers a hook for committed changes
func (t *Tracker) OnChange(h Hook) {
	t.hooksMu.Lock()
	t.hooks = append(t.hooks, h)
	t.hooksMu.Unlock()
}

func (t *Tracker) notify(ch Change) {
	t.hooksMu.RLock()
	hs := t.hooks
	t.hooksMu.RUnlock()
	for _, h := range hs {
		h(ch)
	}
}

func (t *Tracker) validate(rep Report) error {
	if rep.Location.NodeID == "" && rep.Location.SegmentID == "" {
		return fault.New("Create").Cause(fault.ErrInvalidValue).Context("location requires a node or segment").Err()
	}
	if rep.Severity != 0 && !rep.Severity.Valid() {
		return fault.New("Create").Cause(fault.ErrInvalidValue).Context("severity %d", int(rep.Severity)).Err()
	}
	if t.topology == nil {
		return nil
	}
	if id := rep.Location.NodeID; id != "" && !t.topology.HasNode(id) {
		return fault.New("Create").Node(id).Cause(fault.ErrUnknownNode).Err()
	}
	for _, id := range []string{rep.Location.SegmentID, rep.PipelineID} {
		if id != "" && !t.topology.HasEdge(id) {
			return fault.New("Create").Edge(id).Cause(fault.ErrUnknownEdge).Err()
		}
	}
	return nil
}

// Create opens a new case in status Open
func (t *Tracker) Create(rep Report) (string, error) {
	return t.create(rep, "")
}

func (t *Tracker) create(rep Report, alertID string) (string, error) {
	if err := t.validate(rep); err != nil {
		return "", err
	}
	if rep.Severity == 0 {
		rep.Severity = alerts.SeverityMedium
	}
	if rep.Source == "" {
		rep.Source = SourceReport
	}
	if rep.PipelineID == "" {
		rep.PipelineID = rep.Location.SegmentID
	}
	if rep.DetectedAt.IsZero() {
		rep.DetectedAt = t.now()
	}
	c := Case{
		ID:          newID(),
		Location:    rep.Location,
		PipelineID:  rep.PipelineID,
		Severity:    rep.Severity,
		Description: rep.Description,
		Status:      Open,
		Source:      rep.Source,
		DetectedAt:  rep.DetectedAt,
		AlertID:     alertID,
		History:     []Transition{{To: Open, At: rep.DetectedAt, Note: string(rep.Source)}},
	}
	if t.zones != nil {
		if z, ok := t.zones(rep.Location, rep.PipelineID); ok {
			c.DMA = z
		}
	}
	return t.insert(c)
}

func (t *Tracker) insert(c Case) (string, error) {
	rec := &record{c: c}
	rec.word.Store(pack(c.Version, c.Status))

	t.mu.Lock()
	t.cases[c.ID] = rec
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.LeakCasesTotal.WithLabelValues(string(c.Source)).Inc()
	}
	t.logger.Info("leak case opened", logging.CaseID(c.ID), logging.String("source", string(c.Source)),
		logging.String("segment", c.PipelineID), logging.DMA(c.DMA))
	t.notify(Change{Kind: ChangeCreated, To: c.Status, Case: cloneCase(c)})
	return c.ID, nil
}

// CreateFromAlert opens a case for a critical alert on the given segment
func (t *Tracker) CreateFromAlert(a alerts.Alert, segmentID string) (string, error) {
	rel := "<"
	if a.Type == alerts.HighPressure {
		rel = ">"
	}
	return t.create(Report{
		Location:    Location{NodeID: a.SensorID, SegmentID: segmentID},
		PipelineID:  segmentID,
		Severity:    a.Severity,
		Description: fmt.Sprintf("%s %s on %s (%.2f %s %.2f)", strings.ToLower(a.Severity.String()), a.Type, a.SensorID, a.Value, rel, a.Threshold),
		Source:      SourceAlert,
		DetectedAt:  a.UpdatedAt,
	}, a.ID)
}

func newID() string { return uuid.NewString() }

func (t *Tracker) get(id string) (*record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.cases[id]
	return rec, ok
}

// Get returns a copy of the case
func (t *Tracker) Get(id string) (Case, error) {
	rec, ok := t.get(id)
	if !ok {
		return Case{}, fault.New("Get").Case(id).Cause(fault.ErrUnknownCase).Err()
	}
	return rec.snapshot(), nil
}

// List returns cases matching f, most recently detected first
func (t *Tracker) List(f Filter) []Case {
	t.mu.RLock()
	recs := make([]*record, 0, len(t.cases))
	for _, r := range t.cases {
		recs = append(recs, r)
	}
	t.mu.RUnlock()

	out := make([]Case, 0, len(recs))
	for _, r := range recs {
		c := r.snapshot()
		if f.match(&c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b Case) int {
		if c := b.DetectedAt.Compare(a.DetectedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Stats counts cases by status
func (t *Tracker) Stats() map[Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Status]int, 4)
	for _, r := range t.cases {
		_, s := unpack(r.word.Load())
		out[s]++
	}
	return out
}
