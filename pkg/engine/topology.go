package engine

import (
	"slices"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/journal"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

// mutate applies a control-plane operation and journals it once applied.
// Invalid operations never reach the journal.
func (e *Engine) mutate(op journal.OpType, payload any, apply func() error) error {
	if e.closed.Load() {
		return fault.New(op.String()).Cause(fault.ErrClosed).Err()
	}
	e.control.Lock()
	defer e.control.Unlock()

	if err := apply(); err != nil {
		return err
	}
	if e.journal == nil || e.replaying.Load() {
		return nil
	}
	data, err := journal.Encode(payload)
	if err == nil {
		_, err = e.journal.Append(op, data)
	}
	if err != nil {
		// the change is live in memory but will not survive a restart
		e.logger.Error("failed to journal operation", logging.Operation(op.String()), logging.Error(err))
		return err
	}
	return nil
}

// RegisterNode adds a reservoir, valve or sensor
func (e *Engine) RegisterNode(n network.Node) (network.NodeID, error) {
	if !e.replaying.Load() {
		n.CreatedAt = time.Time{}
	}
	var id network.NodeID
	err := e.mutate(journal.OpRegisterNode, &n, func() error {
		var err error
		id, err = e.graph.AddNode(n)
		if err == nil {
			// journal the stored status and timestamp
			n, _ = e.graph.Node(id)
		}
		return err
	})
	return id, err
}

// RegisterEdge adds a pipeline segment between two registered nodes
func (e *Engine) RegisterEdge(id network.EdgeID, a, b network.NodeID, attrs network.SegmentAttrs) (network.EdgeID, error) {
	rec := edgeRecord{ID: id, A: a, B: b, SegmentAttrs: attrs}
	var out network.EdgeID
	err := e.mutate(journal.OpRegisterEdge, rec, func() error {
		var err error
		out, err = e.graph.AddEdge(id, a, b, attrs)
		return err
	})
	return out, err
}

// SetNodeStatus changes a node's operational status
func (e *Engine) SetNodeStatus(id network.NodeID, status network.NodeStatus) error {
	return e.mutate(journal.OpSetNodeStatus, statusRecord{ID: string(id), Status: string(status)}, func() error {
		return e.graph.SetNodeStatus(id, status)
	})
}

// SetEdgeStatus changes a segment's status
func (e *Engine) SetEdgeStatus(id network.EdgeID, status network.EdgeStatus) error {
	return e.mutate(journal.OpSetEdgeStatus, statusRecord{ID: string(id), Status: string(status)}, func() error {
		return e.graph.SetEdgeStatus(id, status)
	})
}

// CreateDMA registers a zone over unassigned nodes
func (e *Engine) CreateDMA(id dma.ID, nodes []network.NodeID, targetNRW float64) (dma.ID, error) {
	rec := dmaRecord{ID: id, Nodes: nodes, Target: targetNRW}
	var out dma.ID
	err := e.mutate(journal.OpCreateDMA, rec, func() error {
		var err error
		out, err = e.zones.CreateDMA(id, nodes, targetNRW)
		return err
	})
	return out, err
}

// AssignDMA moves a node into a zone
func (e *Engine) AssignDMA(node network.NodeID, to dma.ID) error {
	return e.mutate(journal.OpAssignDMA, assignRecord{Node: node, DMA: to}, func() error {
		return e.zones.Reassign(node, to)
	})
}

// UnassignDMA removes a node from its zone
func (e *Engine) UnassignDMA(node network.NodeID) error {
	return e.mutate(journal.OpUnassignDMA, assignRecord{Node: node}, func() error {
		return e.zones.Unassign(node)
	})
}

// SetTarget changes a zone's target NRW percentage
func (e *Engine) SetTarget(id dma.ID, pct float64) error {
	return e.mutate(journal.OpSetTarget, zoneValueRecord{DMA: id, Target: pct}, func() error {
		return e.zones.SetTarget(id, pct)
	})
}

// SetConnections records a zone's service connection count
func (e *Engine) SetConnections(id dma.ID, n int) error {
	return e.mutate(journal.OpSetConnections, zoneValueRecord{DMA: id, Connections: n}, func() error {
		return e.zones.SetConnections(id, n)
	})
}

// SetThreshold installs or replaces a sensor threshold rule. The sensor
// must be registered.
func (e *Engine) SetThreshold(r alerts.Rule) (alerts.Rule, error) {
	var out alerts.Rule
	err := e.mutate(journal.OpSetThreshold, &out, func() error {
		n, err := e.graph.Node(network.NodeID(r.SensorID))
		if err != nil {
			return fault.New("SetThreshold").Entity("sensor", r.SensorID).Cause(fault.ErrUnknownSensor).Err()
		}
		attrs, ok := n.Sensor()
		if !ok {
			return fault.New("SetThreshold").Node(r.SensorID).Cause(fault.ErrUnknownSensor).Context("node is a %s", n.Kind()).Err()
		}
		if r.Unit == "" {
			r.Unit = attrs.Unit
		}
		out, err = e.alerts.SetRule(r)
		return err
	})
	return out, err
}

// AffectedDMAs reports the zones that would lose supply if node were closed,
// along with every isolated node
func (e *Engine) AffectedDMAs(node network.NodeID) ([]dma.ID, []network.NodeID, error) {
	isolated, err := e.graph.IsolatedBy(node)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[dma.ID]bool)
	var zones []dma.ID
	for _, n := range isolated {
		if id, ok := e.zones.DMAOf(n); ok && !seen[id] {
			seen[id] = true
			zones = append(zones, id)
		}
	}
	slices.Sort(zones)
	return zones, isolated, nil
}
