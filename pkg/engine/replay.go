package engine

import (
	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/journal"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

// Recover replays the journal into the empty engine and opens it for
// readings. It is called by Start and is a no-op once the engine is ready.
func (e *Engine) Recover() error {
	if e.ready.Load() {
		return nil
	}
	if e.journal != nil {
		e.replaying.Store(true)
		timer := logging.StartTimer(e.logger, "journal replay")
		err := e.journal.Replay(e.apply)
		e.replaying.Store(false)
		if err != nil {
			timer.EndError(err)
			return err
		}
		timer.End()
	}
	e.ready.Store(true)
	st := e.graph.Stats()
	e.logger.Info("engine ready",
		logging.Int("nodes", st.Nodes), logging.Int("segments", st.Edges), logging.Int("dmas", len(e.zones.IDs())))
	return nil
}

// apply re-executes one journaled operation
func (e *Engine) apply(en *journal.Entry) error {
	switch en.OpType {
	case journal.OpRegisterNode:
		var n network.Node
		if err := en.Decode(&n); err != nil {
			return err
		}
		_, err := e.RegisterNode(n)
		return err
	case journal.OpRegisterEdge:
		var r edgeRecord
		if err := en.Decode(&r); err != nil {
			return err
		}
		_, err := e.RegisterEdge(r.ID, r.A, r.B, r.SegmentAttrs)
		return err
	case journal.OpSetNodeStatus:
		var r statusRecord
		if err := en.Decode(&r); err != nil {
			return err
		}
		return e.SetNodeStatus(network.NodeID(r.ID), network.NodeStatus(r.Status))
	case journal.OpSetEdgeStatus:
		var r statusRecord
		if err := en.Decode(&r); err != nil {
			return err
		}
		return e.SetEdgeStatus(network.EdgeID(r.ID), network.EdgeStatus(r.Status))
	case journal.OpCreateDMA:
		var r dmaRecord
		if err := en.Decode(&r); err != nil {
			return err
		}
		_, err := e.CreateDMA(r.ID, r.Nodes, r.Target)
		return err
	case journal.OpAssignDMA:
		var r assignRecord
		if err := en.Decode(&r); err != nil {
			return err
		}
		return e.AssignDMA(r.Node, r.DMA)
	case journal.OpUnassignDMA:
		var r assignRecord
		if err := en.Decode(&r); err != nil {
			return err
		}
		return e.UnassignDMA(r.Node)
	case journal.OpSetTarget:
		var r zoneValueRecord
		if err := en.Decode(&r); err != nil {
			return err
		}
		return e.SetTarget(r.DMA, r.Target)
	case journal.OpSetConnections:
		var r zoneValueRecord
		if err := en.Decode(&r); err != nil {
			return err
		}
		return e.SetConnections(r.DMA, r.Connections)
	case journal.OpSetThreshold:
		var r alerts.Rule
		if err := en.Decode(&r); err != nil {
			return err
		}
		_, err := e.SetThreshold(r)
		return err
	default:
		return fault.New("Replay").Cause(fault.ErrUnknownOp).Context("%s at LSN %d", en.OpType, en.LSN).Err()
	}
}
