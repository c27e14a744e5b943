package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/journal"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
	"github.com/dd0wney/cluso-waternet/pkg/network"
	"github.com/dd0wney/cluso-waternet/pkg/nrw"
	"github.com/dd0wney/cluso-waternet/pkg/parallel"
	"github.com/dd0wney/cluso-waternet/pkg/pubsub"
)

// Archiver durably stores closed alerts and finished leak cases
type Archiver interface {
	ArchiveAlert(ctx context.Context, a alerts.Alert) error
	ArchiveCase(ctx context.Context, c leaks.Case) error
}

// SnapshotStore caches zone summaries for dashboards
type SnapshotStore interface {
	PutZone(ctx context.Context, s ZoneSummary) error
}

// Engine owns the network components and the background workers that feed them
type Engine struct {
	cfg Config

	graph    *network.Graph
	zones    *dma.Registry
	nrw      *nrw.Engine
	alerts   *alerts.Evaluator
	leaks    *leaks.Tracker
	bus      *pubsub.PubSub
	readings *ReadingLog

	ingest  *parallel.WorkerPool
	workers *parallel.WorkerPool

	journal   *journal.Journal
	archiver  Archiver
	snapshots SnapshotStore

	// control serialises journaled mutations so the journal order is the apply order
	control   sync.Mutex
	replaying atomic.Bool
	ready     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	started time.Time
	logger  logging.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger shared by all components
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics registry shared by all components
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source of every component
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithJournal records control-plane operations and replays them on Start
func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithArchiver stores closed alerts and finished cases
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithSnapshots publishes zone summaries after each rollup
func WithSnapshots(s SnapshotStore) Option {
	return func(e *Engine) { e.snapshots = s }
}

// New builds an engine. It accepts topology calls immediately; readings
// are accepted once Start has replayed the journal.
func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      cfg.withDefaults(),
		readings: NewReadingLog(),
		logger:   logging.NewNopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.started = e.now()
	log := e.logger

	e.graph = network.NewGraph(network.WithLogger(log), network.WithMetrics(e.metrics), network.WithClock(e.now))
	e.zones = dma.NewRegistry(e.graph, dma.WithLogger(log), dma.WithMetrics(e.metrics), dma.WithClock(e.now))
	e.nrw = nrw.NewEngine(e.zones, nrw.Config{
		BillingInterval: e.cfg.BillingInterval,
		Retention:       e.cfg.ReadingRetention,
		CostPerM3:       e.cfg.CostPerM3,
	}, nrw.WithLogger(log), nrw.WithMetrics(e.metrics), nrw.WithClock(e.now))
	e.leaks = leaks.NewTracker(
		leaks.WithTopology(topology{e.graph}),
		leaks.WithZones(e.zoneOfLocation),
		leaks.WithLogger(log),
		leaks.WithMetrics(e.metrics),
		leaks.WithClock(e.now),
	)
	e.alerts = alerts.NewEvaluator(
		alerts.WithShards(e.cfg.AlertShards),
		alerts.WithExpiry(e.cfg.Expiry),
		alerts.WithLeakOpener(e.leaks, segments{e.graph}),
		alerts.WithLogger(log),
		alerts.WithMetrics(e.metrics),
		alerts.WithClock(e.now),
	)
	e.bus = pubsub.NewPubSub(e.cfg.EventBuffer)

	var err error
	e.ingest, err = parallel.NewWorkerPool(e.cfg.IngestWorkers, e.cfg.IngestQueueDepth,
		parallel.WithLogger(log), parallel.WithName("ingest"))
	if err != nil {
		return nil, err
	}
	e.workers, err = parallel.NewWorkerPool(e.cfg.RollupWorkers, 0,
		parallel.WithLogger(log), parallel.WithName("rollup"))
	if err != nil {
		e.ingest.Close()
		return nil, err
	}

	e.graph.Subscribe(e.onGraphEvent)
	e.alerts.OnEvent(e.onAlertEvent)
	e.leaks.OnChange(e.onCaseChange)

	if e.metrics != nil {
		e.metrics.SetQueue(0, e.ingest.Cap())
	}
	e.logger = log.With(logging.Component("engine"))
	return e, nil
}

// Graph returns the asset graph
func (e *Engine) Graph() *network.Graph { return e.graph }

// Zones returns the DMA registry
func (e *Engine) Zones() *dma.Registry { return e.zones }

// NRW returns the metrics engine
func (e *Engine) NRW() *nrw.Engine { return e.nrw }

// Alerts returns the alert evaluator
func (e *Engine) Alerts() *alerts.Evaluator { return e.alerts }

// Leaks returns the leak case tracker
func (e *Engine) Leaks() *leaks.Tracker { return e.leaks }

// Bus returns the event bus
func (e *Engine) Bus() *pubsub.PubSub { return e.bus }

// Readings returns the retained reading log
func (e *Engine) Readings() *ReadingLog { return e.readings }

// Journal returns the journal, or nil when journaling is off
func (e *Engine) Journal() *journal.Journal { return e.journal }

// Ready reports whether the journal has been replayed and readings are accepted
func (e *Engine) Ready() bool { return e.ready.Load() && !e.closed.Load() }

// QueueDepth returns queued ingestion tasks and the queue capacity
func (e *Engine) QueueDepth() (depth, capacity int) {
	return e.ingest.Len(), e.ingest.Cap()
}

// Now returns the engine clock's current time
func (e *Engine) Now() time.Time { return e.now() }

// Uptime returns time since New
func (e *Engine) Uptime() time.Duration { return e.now().Sub(e.started) }

// Close stops accepting work, drains the queues and closes the journal
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.ingest.Close()
		e.workers.Close()
		e.bus.Shutdown()
		if e.journal != nil {
			err = e.journal.Close()
		}
		e.logger.Info("engine closed")
	})
	return err
}

// topology adapts the graph to the tracker's string-keyed lookups
type topology struct{ g *network.Graph }

func (t topology) HasNode(id string) bool { return t.g.HasNode(network.NodeID(id)) }
func (t topology) HasEdge(id string) bool { return t.g.HasEdge(network.EdgeID(id)) }

// segments resolves a sensor node to the segment it monitors
type segments struct{ g *network.Graph }

func (s segments) SensorSegment(id string) (string, bool) {
	n, err := s.g.Node(network.NodeID(id))
	if err != nil {
		return "", false
	}
	attrs, ok := n.Sensor()
	if !ok || attrs.SegmentID == "" {
		return "", false
	}
	return string(attrs.SegmentID), true
}

// zoneOfLocation picks the owning DMA of a leak location: the node's DMA,
// else the DMA of either endpoint of the segment.
func (e *Engine) zoneOfLocation(loc leaks.Location, pipeline string) (string, bool) {
	if loc.NodeID != "" {
		if id, ok := e.zones.DMAOf(network.NodeID(loc.NodeID)); ok {
			return string(id), true
		}
	}
	for _, seg := range []string{loc.SegmentID, pipeline} {
		if seg == "" {
			continue
		}
		s, err := e.graph.Edge(network.EdgeID(seg))
		if err != nil {
			continue
		}
		for _, n := range []network.NodeID{s.A, s.B} {
			if id, ok := e.zones.DMAOf(n); ok {
				return string(id), true
			}
		}
	}
	return "", false
}
