package nrw

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
)

const day = 24 * time.Hour

// Config holds MetricsEngine settings
type Config struct {
	BillingInterval time.Duration
	Retention       time.Duration
	CostPerM3       float64
}

// DefaultConfig returns a 30-day billing interval and 90-day retention
func DefaultConfig() Config {
	return Config{
		BillingInterval: 720 * time.Hour,
		Retention:       2160 * time.Hour,
	}
}

// Engine folds volume readings into per-DMA period and day buckets
type Engine struct {
	mu      sync.RWMutex
	ledgers map[dma.ID]*ledger
	cfg     Config
	zones   ZoneReader

	logger  logging.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics registry
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used for "current period"
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a metrics engine
func NewEngine(zones ZoneReader, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.BillingInterval <= 0 {
		cfg.BillingInterval = def.BillingInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	e := &Engine{
		ledgers: make(map[dma.ID]*ledger),
		cfg:     cfg,
		zones:   zones,
		logger:  logging.NewNopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logging.Component("nrw"))
	return e
}

// SetCostPerM3 updates the unit cost used by LossCost
func (e *Engine) SetCostPerM3(c float64) {
	e.mu.Lock()
	e.cfg.CostPerM3 = c
	e.mu.Unlock()
}

func (e *Engine) periodStart(ts time.Time) time.Time {
	return ts.UTC().Truncate(e.cfg.BillingInterval)
}

func dayStart(ts time.Time) time.Time {
	return ts.UTC().Truncate(day)
}

// ledgerFor returns the ledger for id, creating it when create is set.
// The returned ledger must be used under e.mu.
func (e *Engine) ledgerFor(op string, id dma.ID, create bool) (*ledger, error) {
	if l, ok := e.ledgers[id]; ok {
		return l, nil
	}
	if _, err := e.zones.Get(id); err != nil {
		return nil, fault.New(op).DMA(string(id)).Cause(fault.ErrUnknownDMA).Err()
	}
	if !create {
		return nil, nil
	}
	l := newLedger()
	e.ledgers[id] = l
	return l, nil
}

func validVolume(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IngestVolume adds supplied and billed volumes (m³) to the period and day
// containing ts
func (e *Engine) IngestVolume(id dma.ID, supplied, billed float64, ts time.Time) error {
	if !validVolume(supplied) || !validVolume(billed) {
		return fault.New("IngestVolume").DMA(string(id)).Cause(fault.ErrInvalidValue).
			Context("supplied %v billed %v", supplied, billed).Err()
	}
	if ts.IsZero() {
		return fault.New("IngestVolume").DMA(string(id)).Cause(fault.ErrInvalidValue).Context("missing timestamp").Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.ledgerFor("IngestVolume", id, true)
	if err != nil {
		return err
	}

	p := e.period(l, ts)
	p.Supplied += supplied
	p.Billed += billed

	dk := dayStart(ts).Unix()
	b, ok := l.days[dk]
	if !ok {
		b = &bucket{}
		l.days[dk] = b
	}
	b.supplied += supplied
	b.billed += billed
	return nil
}

// period returns (creating) the period containing ts. Caller holds e.mu.
func (e *Engine) period(l *ledger, ts time.Time) *Period {
	start := e.periodStart(ts)
	if p, ok := l.periods[start.Unix()]; ok {
		return p
	}
	p := &Period{Start: start, End: start.Add(e.cfg.BillingInterval)}
	if l.pending && !start.Before(l.rebaselineFrom) {
		p.Baseline = true
		p.Annotations = append(p.Annotations, Annotation{At: start, Kind: "rebaseline", Detail: l.reason})
		l.pending = false
		l.reason = ""
	}
	l.periods[start.Unix()] = p
	return p
}

func (e *Engine) currentPeriod(id dma.ID, op string, at time.Time) (Period, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, err := e.ledgerFor(op, id, false)
	if err != nil {
		return Period{}, err
	}
	if l == nil {
		return Period{}, fault.New(op).DMA(string(id)).Cause(fault.ErrNoData).Err()
	}
	p, ok := l.periods[e.periodStart(at).Unix()]
	if !ok {
		return Period{}, fault.New(op).DMA(string(id)).Cause(fault.ErrNoData).Err()
	}
	return *p, nil
}

// NRWPercent returns the NRW percentage of the current billing period
func (e *Engine) NRWPercent(id dma.ID) (float64, error) {
	return e.NRWPercentAt(id, e.now())
}

// NRWPercentAt returns the NRW percentage of the period containing at
func (e *Engine) NRWPercentAt(id dma.ID, at time.Time) (float64, error) {
	p, err := e.currentPeriod(id, "NRWPercent", at)
	if err != nil {
		return 0, err
	}
	pct, ok := p.NRW()
	if !ok {
		return 0, fault.New("NRWPercent").DMA(string(id)).Cause(fault.ErrNoData).Context("nothing supplied").Err()
	}
	return pct, nil
}

// RollingAverage returns the mean daily NRW over the last windowDays UTC
// days, today included. Days without supply are left out of the mean.
func (e *Engine) RollingAverage(id dma.ID, windowDays int) (float64, error) {
	if windowDays <= 0 {
		return 0, fault.New("RollingAverage").DMA(string(id)).Cause(fault.ErrInvalidValue).Context("window %d", windowDays).Err()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	l, err := e.ledgerFor("RollingAverage", id, false)
	if err != nil {
		return 0, err
	}
	if l == nil {
		return 0, fault.New("RollingAverage").DMA(string(id)).Cause(fault.ErrNoData).Err()
	}

	today := dayStart(e.now())
	var sum float64
	var n int
	for i := 0; i < windowDays; i++ {
		b, ok := l.days[today.Add(-time.Duration(i)*day).Unix()]
		if !ok {
			continue
		}
		if pct, ok := percent(b.supplied, b.billed); ok {
			sum += pct
			n++
		}
	}
	if n == 0 {
		return 0, fault.New("RollingAverage").DMA(string(id)).Cause(fault.ErrNoData).Context("window %d days", windowDays).Err()
	}
	return sum / float64(n), nil
}

// WithinTarget reports whether pct meets target, within Epsilon
func WithinTarget(pct, target float64) bool {
	return pct <= target+Epsilon
}

// LossVolume returns supplied minus billed for the current period, floored at zero
func (e *Engine) LossVolume(id dma.ID) (float64, error) {
	p, err := e.currentPeriod(id, "LossVolume", e.now())
	if err != nil {
		return 0, err
	}
	if p.Supplied <= 0 {
		return 0, fault.New("LossVolume").DMA(string(id)).Cause(fault.ErrNoData).Err()
	}
	return math.Max(0, p.Supplied-p.Billed), nil
}

// LossCost returns the current period's loss volume priced at the configured unit cost
func (e *Engine) LossCost(id dma.ID) (float64, error) {
	loss, err := e.LossVolume(id)
	if err != nil {
		return 0, err
	}
	e.mu.RLock()
	cost := e.cfg.CostPerM3
	e.mu.RUnlock()
	return loss * cost, nil
}

// LossPerConnection returns the current period's loss per service connection
func (e *Engine) LossPerConnection(id dma.ID) (float64, error) {
	loss, err := e.LossVolume(id)
	if err != nil {
		return 0, err
	}
	d, err := e.zones.Get(id)
	if err != nil {
		return 0, fault.New("LossPerConnection").DMA(string(id)).Cause(fault.ErrUnknownDMA).Err()
	}
	if d.Connections == 0 {
		return 0, fault.New("LossPerConnection").DMA(string(id)).Cause(fault.ErrNoData).Context("no service connections").Err()
	}
	return loss / float64(d.Connections), nil
}

// Periods returns the DMA's billing periods in chronological order
func (e *Engine) Periods(id dma.ID) ([]Period, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, err := e.ledgerFor("Periods", id, false)
	if err != nil || l == nil {
		return nil, err
	}
	out := make([]Period, 0, len(l.periods))
	for _, p := range l.periods {
		cp := *p
		cp.Annotations = slices.Clone(p.Annotations)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Period) int { return a.Start.Compare(b.Start) })
	return out, nil
}

// FlagRebaseline marks the DMA's next billing period as a new baseline
func (e *Engine) FlagRebaseline(id dma.ID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.ledgerFor("FlagRebaseline", id, true)
	if err != nil {
		return err
	}
	next := e.periodStart(e.now()).Add(e.cfg.BillingInterval)
	if p, ok := l.periods[next.Unix()]; ok {
		p.Baseline = true
		p.Annotations = append(p.Annotations, Annotation{At: e.now(), Kind: "rebaseline", Detail: reason})
		return nil
	}
	l.pending = true
	l.rebaselineFrom = next
	l.reason = reason
	e.logger.Info("next billing period flagged for re-baseline",
		logging.DMA(string(id)), logging.Time("from", next), logging.String("reason", reason))
	return nil
}

// RebaselinePending reports whether a re-baseline is waiting for the next period
func (e *Engine) RebaselinePending(id dma.ID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.ledgers[id]
	return ok && l.pending
}

// NoteTopologyChange annotates the DMA's current period
func (e *Engine) NoteTopologyChange(id dma.ID, kind, detail string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.ledgerFor("NoteTopologyChange", id, true)
	if err != nil {
		return err
	}
	at := e.now()
	p := e.period(l, at)
	p.Annotations = append(p.Annotations, Annotation{At: at, Kind: kind, Detail: detail})
	return nil
}

// Rollup closes finished periods and prunes day buckets older than the
// retention window. It stops early and reports RollupDeadlineExceeded
// when ctx is done.
func (e *Engine) Rollup(ctx context.Context, id dma.ID) (RollupResult, error) {
	res := RollupResult{DMA: id}
	if err := ctx.Err(); err != nil {
		return res, deadline(id, err)
	}

	now := e.now()
	cutoff := dayStart(now.Add(-e.cfg.Retention)).Unix()

	e.mu.Lock()
	l, err := e.ledgerFor("Rollup", id, false)
	if err != nil || l == nil {
		e.mu.Unlock()
		return res, err
	}
	for _, p := range l.periods {
		if !p.Closed && !p.End.After(now) {
			p.Closed = true
			res.ClosedPeriods++
		}
	}
	if err := ctx.Err(); err != nil {
		e.mu.Unlock()
		return res, deadline(id, err)
	}
	for k := range l.days {
		if k < cutoff {
			delete(l.days, k)
			res.PrunedDays++
		}
	}
	var cur *Period
	if p, ok := l.periods[e.periodStart(now).Unix()]; ok {
		cp := *p
		cur = &cp
	}
	e.mu.Unlock()

	if cur != nil {
		res.NRW, res.HasNRW = cur.NRW()
		res.Loss = math.Max(0, cur.Supplied-cur.Billed)
		if res.HasNRW && e.metrics != nil {
			e.metrics.SetDMANRW(string(id), res.NRW, res.Loss)
		}
	}
	return res, nil
}

func deadline(id dma.ID, cause error) error {
	b := fault.New("Rollup").DMA(string(id)).Cause(fault.ErrRollupDeadlineExceeded)
	if errors.Is(cause, context.Canceled) {
		b = b.Context("canceled")
	}
	return b.Err()
}
