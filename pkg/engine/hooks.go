package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/network"
	"github.com/dd0wney/cluso-waternet/pkg/pubsub"
)

var alertTopics = map[alerts.EventType]string{
	alerts.EventRaised:       pubsub.TopicAlertRaised,
	alerts.EventAcknowledged: pubsub.TopicAlertAcknowledged,
	alerts.EventExpired:      pubsub.TopicAlertExpired,
}

func (e *Engine) onAlertEvent(ev alerts.Event) {
	if topic, ok := alertTopics[ev.Type]; ok {
		e.bus.Publish(topic, ev)
	}
}

// CaseEvent is the payload of LeakCaseStatusChanged
type CaseEvent struct {
	Kind leaks.ChangeKind `json:"kind"`
	From leaks.Status     `json:"from,omitempty"`
	To   leaks.Status     `json:"to"`
	Case leaks.Case       `json:"case"`
}

func (e *Engine) onCaseChange(ch leaks.Change) {
	e.bus.Publish(pubsub.TopicLeakCaseStatusChanged, CaseEvent{Kind: ch.Kind, From: ch.From, To: ch.To, Case: ch.Case})

	if ch.Kind != leaks.ChangeTransition {
		return
	}
	if ch.To == leaks.Resolved && ch.Case.DMA != "" {
		reason := fmt.Sprintf("leak case %s resolved", ch.Case.ID)
		if err := e.nrw.FlagRebaseline(dma.ID(ch.Case.DMA), reason); err != nil {
			e.logger.Warn("failed to flag re-baseline", logging.CaseID(ch.Case.ID), logging.DMA(ch.Case.DMA), logging.Error(err))
		}
	}
	if ch.To.Terminal() && e.archiver != nil {
		c := ch.Case
		e.background("archive_case", func(ctx context.Context) error {
			return e.archiver.ArchiveCase(ctx, c)
		})
	}
}

// NetworkEvent is the payload of NetworkChanged
type NetworkEvent struct {
	Type      string   `json:"type"`
	Node      string   `json:"node,omitempty"`
	Edge      string   `json:"edge,omitempty"`
	OldStatus string   `json:"old_status,omitempty"`
	NewStatus string   `json:"new_status,omitempty"`
	DMAs      []dma.ID `json:"dmas,omitempty"`
}

// onGraphEvent annotates the current billing period of every zone touched
// by a topology change. Replayed history is not annotated.
func (e *Engine) onGraphEvent(ev network.Event) {
	var (
		kind   string
		detail string
		nodes  []network.NodeID
	)
	switch ev.Type {
	case network.EventNodeStatusChanged:
		kind = "node_status"
		detail = fmt.Sprintf("%s %s -> %s", ev.Node, ev.OldStatus, ev.NewStatus)
		nodes = []network.NodeID{ev.Node}
	case network.EventEdgeStatusChanged:
		kind = "segment_status"
		detail = fmt.Sprintf("%s %s -> %s", ev.Edge, ev.OldStatus, ev.NewStatus)
		nodes = ev.Endpoints[:]
	case network.EventEdgeAdded:
		kind = "segment_added"
		detail = string(ev.Edge)
		nodes = ev.Endpoints[:]
	default:
		return
	}

	var touched []dma.ID
	for _, n := range nodes {
		if id, ok := e.zones.DMAOf(n); ok && !slices.Contains(touched, id) {
			touched = append(touched, id)
		}
	}

	if !e.replaying.Load() {
		for _, id := range touched {
			if err := e.nrw.NoteTopologyChange(id, kind, detail); err != nil {
				e.logger.Warn("failed to annotate topology change", logging.DMA(string(id)), logging.Error(err))
			}
		}
	}
	e.bus.Publish(pubsub.TopicNetworkChanged, NetworkEvent{
		Type:      ev.Type.String(),
		Node:      string(ev.Node),
		Edge:      string(ev.Edge),
		OldStatus: ev.OldStatus,
		NewStatus: ev.NewStatus,
		DMAs:      touched,
	})
}

// background runs fn on the rollup pool without blocking the caller.
// Work is dropped with a warning when the pool is saturated or closed.
func (e *Engine) background(name string, fn func(ctx context.Context) error) {
	err := e.workers.TrySubmit(func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			e.logger.Warn("background task failed", logging.Operation(name), logging.Error(err))
		}
	})
	if err != nil {
		e.logger.Warn("background task dropped", logging.Operation(name), logging.Error(err))
	}
}
