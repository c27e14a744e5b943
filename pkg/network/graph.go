package network

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
)

// adjacency entry; lists are kept sorted by (neighbor, edge)
type adj struct {
	neighbor NodeID
	edge     EdgeID
}

// Graph is the in-memory asset graph. Nodes and segments are stored in
// id-indexed maps and never removed.
type Graph struct {
	mu        sync.RWMutex
	nodes     map[NodeID]*Node
	edges     map[EdgeID]*Segment
	adjacency map[NodeID][]adj
	lastMut   time.Time

	listenersMu sync.RWMutex
	listeners   []Listener

	logger  logging.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// Option configures a Graph
type Option func(*Graph)

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// WithMetrics sets the metrics registry
func WithMetrics(r *metrics.Registry) Option {
	return func(g *Graph) { g.metrics = r }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// NewGraph creates an empty graph
func NewGraph(opts ...Option) *Graph {
	g := &Graph{
		nodes:     make(map[NodeID]*Node),
		edges:     make(map[EdgeID]*Segment),
		adjacency: make(map[NodeID][]adj),
		logger:    logging.NewNopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logging.Component("network"))
	return g
}

// AddNode registers a node. The node is validated fully before anything is
// stored. A zero CreatedAt is stamped with the graph clock; a set one is
// kept so restored nodes retain their registration time.
func (g *Graph) AddNode(n Node) (NodeID, error) {
	if err := ValidateNode(n); err != nil {
		return "", err
	}
	if n.Status == "" {
		n.Status = NodeOperational
	}

	g.mu.Lock()
	if _, exists := g.nodes[n.ID]; exists {
		g.mu.Unlock()
		return "", fault.New("AddNode").Node(string(n.ID)).Cause(fault.ErrDuplicateID).Err()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = g.now()
	}
	stored := n
	g.nodes[n.ID] = &stored
	g.lastMut = n.CreatedAt
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.NetworkNodesTotal.WithLabelValues(string(n.Kind())).Inc()
	}
	g.logger.Debug("node added", logging.NodeID(string(n.ID)), logging.String("kind", string(n.Kind())))
	g.emit(Event{Type: EventNodeAdded, Node: n.ID, At: n.CreatedAt})
	return n.ID, nil
}

// AddEdge registers a segment between two existing nodes
func (g *Graph) AddEdge(id EdgeID, a, b NodeID, attrs SegmentAttrs) (EdgeID, error) {
	if id == "" {
		return "", fault.New("AddEdge").Cause(fault.ErrInvalidValue).Context("empty id").Err()
	}
	if a == b {
		return "", fault.New("AddEdge").Edge(string(id)).Cause(fault.ErrSelfLoop).Context("endpoint %s", a).Err()
	}
	if err := attrs.validate(); err != nil {
		return "", fault.New("AddEdge").Edge(string(id)).Cause(fault.ErrInvalidValue).Context("%v", err).Err()
	}
	if attrs.Status == "" {
		attrs.Status = EdgeActive
	}

	g.mu.Lock()
	if _, exists := g.edges[id]; exists {
		g.mu.Unlock()
		return "", fault.New("AddEdge").Edge(string(id)).Cause(fault.ErrDuplicateID).Err()
	}
	for _, end := range []NodeID{a, b} {
		if _, ok := g.nodes[end]; !ok {
			g.mu.Unlock()
			return "", fault.New("AddEdge").Edge(string(id)).Cause(fault.ErrUnknownNode).Context("endpoint %s", end).Err()
		}
	}

	seg := &Segment{ID: id, A: a, B: b, SegmentAttrs: attrs}
	g.edges[id] = seg
	g.link(a, adj{neighbor: b, edge: id})
	g.link(b, adj{neighbor: a, edge: id})
	at := g.now()
	g.lastMut = at
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.NetworkEdgesTotal.WithLabelValues(string(attrs.Status)).Inc()
	}
	g.logger.Debug("segment added", logging.EdgeID(string(id)), logging.NodeID(string(a)), logging.String("to", string(b)))
	g.emit(Event{Type: EventEdgeAdded, Edge: id, Endpoints: [2]NodeID{a, b}, NewStatus: string(attrs.Status), At: at})
	return id, nil
}

// link inserts e into n's adjacency keeping it sorted. Caller holds mu.
func (g *Graph) link(n NodeID, e adj) {
	list := g.adjacency[n]
	i, _ := slices.BinarySearchFunc(list, e, compareAdj)
	g.adjacency[n] = slices.Insert(list, i, e)
}

func compareAdj(x, y adj) int {
	if c := cmp.Compare(x.neighbor, y.neighbor); c != 0 {
		return c
	}
	return cmp.Compare(x.edge, y.edge)
}

// SetNodeStatus changes a node's status
func (g *Graph) SetNodeStatus(id NodeID, status NodeStatus) error {
	if !status.Valid() {
		return fault.New("SetNodeStatus").Node(string(id)).Cause(fault.ErrInvalidStatus).Context("%s", status).Err()
	}

	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return fault.New("SetNodeStatus").Node(string(id)).Cause(fault.ErrUnknownNode).Err()
	}
	old := n.Status
	if old == status {
		g.mu.Unlock()
		return nil
	}
	n.Status = status
	at := g.now()
	g.lastMut = at
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.NetworkStatusChanges.WithLabelValues("node", string(status)).Inc()
	}
	g.logger.Info("node status changed",
		logging.NodeID(string(id)), logging.String("from", string(old)), logging.String("to", string(status)))
	g.emit(Event{Type: EventNodeStatusChanged, Node: id, OldStatus: string(old), NewStatus: string(status), At: at})
	return nil
}

// SetEdgeStatus changes a segment's status
func (g *Graph) SetEdgeStatus(id EdgeID, status EdgeStatus) error {
	if !status.Valid() {
		return fault.New("SetEdgeStatus").Edge(string(id)).Cause(fault.ErrInvalidStatus).Context("%s", status).Err()
	}

	g.mu.Lock()
	seg, ok := g.edges[id]
	if !ok {
		g.mu.Unlock()
		return fault.New("SetEdgeStatus").Edge(string(id)).Cause(fault.ErrUnknownEdge).Err()
	}
	old := seg.Status
	if old == status {
		g.mu.Unlock()
		return nil
	}
	seg.Status = status
	ends := [2]NodeID{seg.A, seg.B}
	at := g.now()
	g.lastMut = at
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.NetworkStatusChanges.WithLabelValues("segment", string(status)).Inc()
		g.metrics.NetworkEdgesTotal.WithLabelValues(string(old)).Dec()
		g.metrics.NetworkEdgesTotal.WithLabelValues(string(status)).Inc()
	}
	g.logger.Info("segment status changed",
		logging.EdgeID(string(id)), logging.String("from", string(old)), logging.String("to", string(status)))
	g.emit(Event{Type: EventEdgeStatusChanged, Edge: id, Endpoints: ends, OldStatus: string(old), NewStatus: string(status), At: at})
	return nil
}

// Node returns a copy of the node
func (g *Graph) Node(id NodeID) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, fault.New("Node").Node(string(id)).Cause(fault.ErrUnknownNode).Err()
	}
	return *n, nil
}

// Edge returns a copy of the segment
func (g *Graph) Edge(id EdgeID) (Segment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.edges[id]
	if !ok {
		return Segment{}, fault.New("Edge").Edge(string(id)).Cause(fault.ErrUnknownEdge).Err()
	}
	return *s, nil
}

// HasNode reports whether a node is registered
func (g *Graph) HasNode(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// HasEdge reports whether a segment is registered
func (g *Graph) HasEdge(id EdgeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edges[id]
	return ok
}

// Nodes returns all nodes sorted by id
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	g.mu.RUnlock()
	slices.SortFunc(out, func(a, b Node) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// NodesOfKind returns nodes of one kind sorted by id
func (g *Graph) NodesOfKind(kind NodeKind) []Node {
	all := g.Nodes()
	out := all[:0]
	for _, n := range all {
		if n.Kind() == kind {
			out = append(out, n)
		}
	}
	return out
}

// Edges returns all segments sorted by id
func (g *Graph) Edges() []Segment {
	g.mu.RLock()
	out := make([]Segment, 0, len(g.edges))
	for _, s := range g.edges {
		out = append(out, *s)
	}
	g.mu.RUnlock()
	slices.SortFunc(out, func(a, b Segment) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// IncidentEdges returns the segments touching a node, decommissioned ones included
func (g *Graph) IncidentEdges(id NodeID) ([]Segment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return nil, fault.New("IncidentEdges").Node(string(id)).Cause(fault.ErrUnknownNode).Err()
	}
	list := g.adjacency[id]
	out := make([]Segment, 0, len(list))
	for _, e := range list {
		out = append(out, *g.edges[e.edge])
	}
	return out, nil
}

// SensorsOnSegment returns sensors linked to a segment, sorted by id
func (g *Graph) SensorsOnSegment(id EdgeID) []NodeID {
	g.mu.RLock()
	var out []NodeID
	for nid, n := range g.nodes {
		if s, ok := n.Attrs.(SensorAttrs); ok && s.SegmentID == id {
			out = append(out, nid)
		}
	}
	g.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Stats returns a summary of the graph
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := Stats{
		Nodes:          len(g.nodes),
		Edges:          len(g.edges),
		NodesByKind:    make(map[NodeKind]int),
		NodesByStatus:  make(map[NodeStatus]int),
		EdgesByStatus:  make(map[EdgeStatus]int),
		LastMutationAt: g.lastMut,
	}
	for _, n := range g.nodes {
		st.NodesByKind[n.Kind()]++
		st.NodesByStatus[n.Status]++
	}
	for _, s := range g.edges {
		st.EdgesByStatus[s.Status]++
	}
	return st
}

// View runs fn under the read lock. fn must not call back into the Graph.
func (g *Graph) View(fn func(v ReadView)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(ReadView{g: g})
}

// ReadView gives lock-free access to graph state inside View
type ReadView struct {
	g *Graph
}

// HasNode reports whether the node exists
func (v ReadView) HasNode(id NodeID) bool {
	_, ok := v.g.nodes[id]
	return ok
}

// Edge returns the segment, if present
func (v ReadView) Edge(id EdgeID) (Segment, bool) {
	s, ok := v.g.edges[id]
	if !ok {
		return Segment{}, false
	}
	return *s, true
}

// Incident calls fn for every segment touching n
func (v ReadView) Incident(n NodeID, fn func(Segment)) {
	for _, e := range v.g.adjacency[n] {
		fn(*v.g.edges[e.edge])
	}
}

// EachEdge calls fn for every segment
func (v ReadView) EachEdge(fn func(Segment)) {
	for _, s := range v.g.edges {
		fn(*s)
	}
}
