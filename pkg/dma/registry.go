package dma

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

// Registry partitions graph nodes into non-overlapping DMAs.
//
// Lock order is Registry.mu then the graph's lock, and Registry.mu then
// cacheMu. Membership edits bump the boundary generation before releasing
// mu. Graph events arrive without the graph lock held and only take mu for
// reading.
type Registry struct {
	mu         sync.RWMutex
	graph      *network.Graph
	zones      map[ID]*zone
	membership map[network.NodeID]ID
	halted     bool
	haltReason string
	lastSweep  time.Time

	cacheMu sync.Mutex
	gens    map[ID]uint64
	cache   map[ID]boundary

	logger  logging.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics registry
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry over g and subscribes to its events
func NewRegistry(g *network.Graph, opts ...Option) *Registry {
	r := &Registry{
		graph:      g,
		zones:      make(map[ID]*zone),
		membership: make(map[network.NodeID]ID),
		gens:       make(map[ID]uint64),
		cache:      make(map[ID]boundary),
		logger:     logging.NewNopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logging.Component("dma"))
	g.Subscribe(r.onGraphEvent)
	return r
}

func validTarget(pct float64) bool {
	return pct >= 0 && pct <= 100 && !math.IsNaN(pct)
}

// CreateDMA creates a DMA named id containing nodes
func (r *Registry) CreateDMA(id ID, nodes []network.NodeID, targetNRW float64) (ID, error) {
	if id == "" {
		return "", fault.New("CreateDMA").Cause(fault.ErrInvalidValue).Context("empty name").Err()
	}
	if !validTarget(targetNRW) {
		return "", fault.New("CreateDMA").DMA(string(id)).Cause(fault.ErrInvalidValue).
			Context("target %v outside [0,100]", targetNRW).Err()
	}

	r.mu.Lock()
	if r.halted {
		r.mu.Unlock()
		return "", fault.New("CreateDMA").DMA(string(id)).Cause(fault.ErrRebalancingHalted).Err()
	}
	if _, exists := r.zones[id]; exists {
		r.mu.Unlock()
		return "", fault.New("CreateDMA").DMA(string(id)).Cause(fault.ErrDuplicateID).Err()
	}

	members := make(map[network.NodeID]struct{}, len(nodes))
	var err error
	r.graph.View(func(v network.ReadView) {
		for _, n := range nodes {
			if !v.HasNode(n) {
				err = fault.New("CreateDMA").DMA(string(id)).Cause(fault.ErrUnknownNode).Context("node %s", n).Err()
				return
			}
			if owner, taken := r.membership[n]; taken {
				err = fault.New("CreateDMA").DMA(string(id)).Cause(fault.ErrNodeAlreadyAssigned).
					Context("node %s belongs to %s", n, owner).Err()
				return
			}
			if _, dup := members[n]; dup {
				err = fault.New("CreateDMA").DMA(string(id)).Cause(fault.ErrNodeAlreadyAssigned).
					Context("node %s listed twice", n).Err()
				return
			}
			members[n] = struct{}{}
		}
	})
	if err != nil {
		r.mu.Unlock()
		return "", err
	}

	r.zones[id] = &zone{id: id, members: members, target: targetNRW, createdAt: r.now()}
	for n := range members {
		r.membership[n] = id
	}
	count := len(r.zones)
	r.invalidate(id)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.DMAsTotal.Set(float64(count))
	}
	r.logger.Info("dma created", logging.DMA(string(id)), logging.Count(len(members)), logging.Float64("target_nrw", targetNRW))
	return id, nil
}

// Reassign moves a node into dmaID, or assigns it if it has no DMA yet
func (r *Registry) Reassign(node network.NodeID, to ID) error {
	r.mu.Lock()
	if r.halted {
		r.mu.Unlock()
		return fault.New("Reassign").Node(string(node)).Cause(fault.ErrRebalancingHalted).Err()
	}
	target, ok := r.zones[to]
	if !ok {
		r.mu.Unlock()
		return fault.New("Reassign").DMA(string(to)).Cause(fault.ErrUnknownDMA).Err()
	}
	if !r.graph.HasNode(node) {
		r.mu.Unlock()
		return fault.New("Reassign").Node(string(node)).Cause(fault.ErrUnknownNode).Err()
	}

	from, had := r.membership[node]
	if had && from == to {
		r.mu.Unlock()
		return nil
	}
	if had {
		delete(r.zones[from].members, node)
	}
	target.members[node] = struct{}{}
	r.membership[node] = to
	r.invalidate(to)
	if had {
		r.invalidate(from)
	}
	r.mu.Unlock()

	r.logger.Info("node reassigned", logging.NodeID(string(node)), logging.String("from", string(from)), logging.DMA(string(to)))
	return nil
}

// Unassign removes a node from its DMA. It is allowed while rebalancing
// is halted so an operator can repair membership.
func (r *Registry) Unassign(node network.NodeID) error {
	r.mu.Lock()
	from, had := r.membership[node]
	if !had {
		r.mu.Unlock()
		return fault.New("Unassign").Node(string(node)).Cause(fault.ErrUnknownNode).Context("not assigned").Err()
	}
	delete(r.membership, node)
	if z, ok := r.zones[from]; ok {
		delete(z.members, node)
	}
	r.invalidate(from)
	r.mu.Unlock()

	r.logger.Info("node unassigned", logging.NodeID(string(node)), logging.DMA(string(from)))
	return nil
}

// Get returns a snapshot of the DMA
func (r *Registry) Get(id ID) (DMA, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	if !ok {
		return DMA{}, fault.New("Get").DMA(string(id)).Cause(fault.ErrUnknownDMA).Err()
	}
	return z.snapshot(), nil
}

// Exists reports whether a DMA is registered
func (r *Registry) Exists(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.zones[id]
	return ok
}

// List returns all DMAs sorted by id
func (r *Registry) List() []DMA {
	r.mu.RLock()
	out := make([]DMA, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z.snapshot())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b DMA) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// IDs returns all DMA ids sorted
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	out := make([]ID, 0, len(r.zones))
	for id := range r.zones {
		out = append(out, id)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// DMAOf returns the DMA a node belongs to
func (r *Registry) DMAOf(node network.NodeID) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.membership[node]
	return id, ok
}

// SetTarget updates a DMA's target NRW percentage
func (r *Registry) SetTarget(id ID, pct float64) error {
	if !validTarget(pct) {
		return fault.New("SetTarget").DMA(string(id)).Cause(fault.ErrInvalidValue).Context("target %v outside [0,100]", pct).Err()
	}
	return r.update("SetTarget", id, func(z *zone) { z.target = pct })
}

// SetConnections updates a DMA's service connection count
func (r *Registry) SetConnections(id ID, n int) error {
	if n < 0 {
		return fault.New("SetConnections").DMA(string(id)).Cause(fault.ErrInvalidValue).Context("negative count %d", n).Err()
	}
	return r.update("SetConnections", id, func(z *zone) { z.connections = n })
}

// RecordCurrentNRW stores the latest computed NRW percentage
func (r *Registry) RecordCurrentNRW(id ID, pct float64, at time.Time) error {
	return r.update("RecordCurrentNRW", id, func(z *zone) {
		z.current = pct
		z.currentAt = at
	})
}

func (r *Registry) update(op string, id ID, fn func(*zone)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[id]
	if !ok {
		return fault.New(op).DMA(string(id)).Cause(fault.ErrUnknownDMA).Err()
	}
	fn(z)
	return nil
}

// Stats returns a registry summary
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	st := Stats{
		DMAs:          len(r.zones),
		AssignedNodes: len(r.membership),
		Halted:        r.halted,
		HaltReason:    r.haltReason,
		LastSweepAt:   r.lastSweep,
	}
	r.mu.RUnlock()
	r.cacheMu.Lock()
	st.CachedBounds = len(r.cache)
	r.cacheMu.Unlock()
	return st
}

func sortNodes(ids []network.NodeID) {
	slices.Sort(ids)
}
