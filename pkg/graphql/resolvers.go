package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

type resolver struct {
	eng    *engine.Engine
	limits LimitConfig
}

// impact is the result of the impact query
type impact struct {
	node     network.NodeID
	zones    []dma.ID
	isolated []network.NodeID
}

func stringArg(p graphql.ResolveParams, name string) string {
	s, _ := p.Args[name].(string)
	return s
}

func boolArg(p graphql.ResolveParams, name string) bool {
	b, _ := p.Args[name].(bool)
	return b
}

func (r *resolver) limit(p graphql.ResolveParams) int {
	n, ok := p.Args["limit"].(int)
	if !ok {
		n = -1
	}
	return applyLimit(n, &r.limits)
}

func truncate[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// nodes resolves ids to nodes, skipping ids removed since they were read
func (r *resolver) nodes(ids []network.NodeID) []network.Node {
	out := make([]network.Node, 0, len(ids))
	for _, id := range ids {
		if n, err := r.eng.Graph().Node(id); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func (r *resolver) queryType(t *types) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"health": field(graphql.String, func(graphql.ResolveParams) (any, error) {
				if r.eng.Ready() {
					return "ok", nil
				}
				return "starting", nil
			}),
			"zones": {
				Type:    graphql.NewList(t.zone),
				Resolve: func(graphql.ResolveParams) (any, error) { return r.eng.ZoneSummaries(), nil },
			},
			"zone": {
				Type: t.zone,
				Args: graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return r.eng.ZoneSummary(dma.ID(stringArg(p, "id")))
				},
			},
			"node": {
				Type: t.node,
				Args: graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return r.eng.Graph().Node(network.NodeID(stringArg(p, "id")))
				},
			},
			"nodes": {
				Type: graphql.NewList(t.node),
				Args: graphql.FieldConfigArgument{
					"kind":   &graphql.ArgumentConfig{Type: graphql.String},
					"status": &graphql.ArgumentConfig{Type: graphql.String},
					"limit":  limitArg,
				},
				Resolve: r.listNodes,
			},
			"segment": {
				Type: t.segment,
				Args: graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return r.eng.Graph().Edge(network.EdgeID(stringArg(p, "id")))
				},
			},
			"segments": {
				Type: graphql.NewList(t.segment),
				Args: graphql.FieldConfigArgument{
					"status": &graphql.ArgumentConfig{Type: graphql.String},
					"limit":  limitArg,
				},
				Resolve: r.listSegments,
			},
			"alerts": {
				Type: graphql.NewList(t.alert),
				Args: graphql.FieldConfigArgument{
					"sensorId":      &graphql.ArgumentConfig{Type: graphql.String},
					"state":         &graphql.ArgumentConfig{Type: graphql.String},
					"minSeverity":   &graphql.ArgumentConfig{Type: graphql.String},
					"includeClosed": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
					"limit":         limitArg,
				},
				Resolve: r.listAlerts,
			},
			"leakCase": {
				Type: t.leakCase,
				Args: graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return r.eng.Leaks().Get(stringArg(p, "id"))
				},
			},
			"leakCases": {
				Type: graphql.NewList(t.leakCase),
				Args: graphql.FieldConfigArgument{
					"status": &graphql.ArgumentConfig{Type: graphql.String},
					"dma":    &graphql.ArgumentConfig{Type: graphql.String},
					"open":   &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
					"limit":  limitArg,
				},
				Resolve: r.listCases,
			},
			"impact": {
				Type:        t.impact,
				Description: "Zones and nodes cut off from supply if a node is closed",
				Args:        graphql.FieldConfigArgument{"nodeId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					id := network.NodeID(stringArg(p, "nodeId"))
					zones, isolated, err := r.eng.AffectedDMAs(id)
					if err != nil {
						return nil, err
					}
					return impact{node: id, zones: zones, isolated: isolated}, nil
				},
			},
		},
	})
}

func (r *resolver) mutationType(t *types) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"acknowledgeAlert": {
				Type: t.alert,
				Args: graphql.FieldConfigArgument{
					"id":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"actor": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return r.eng.AcknowledgeAlert(stringArg(p, "id"), stringArg(p, "actor"))
				},
			},
			"reportLeak": {
				Type: t.leakCase,
				Args: graphql.FieldConfigArgument{
					"nodeId":      &graphql.ArgumentConfig{Type: graphql.String},
					"segmentId":   &graphql.ArgumentConfig{Type: graphql.String},
					"description": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"severity":    &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "Medium"},
				},
				Resolve: r.reportLeak,
			},
			"advanceLeakCase": {
				Type: t.leakCase,
				Args: graphql.FieldConfigArgument{
					"id":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"expected": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"to":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"actor":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.advanceCase,
			},
			"acknowledgeLeakCase": {
				Type: t.leakCase,
				Args: graphql.FieldConfigArgument{
					"id":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"actor": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return r.eng.AcknowledgeCase(stringArg(p, "id"), stringArg(p, "actor"))
				},
			},
		},
	})
}

func (r *resolver) listNodes(p graphql.ResolveParams) (any, error) {
	kind := network.NodeKind(stringArg(p, "kind"))
	status := network.NodeStatus(stringArg(p, "status"))
	if status != "" && !status.Valid() {
		return nil, fault.New("nodes").Context("status %q", status).Cause(fault.ErrInvalidStatus).Err()
	}
	var all []network.Node
	if kind != "" {
		all = r.eng.Graph().NodesOfKind(kind)
	} else {
		all = r.eng.Graph().Nodes()
	}
	out := all[:0]
	for _, n := range all {
		if status == "" || n.Status == status {
			out = append(out, n)
		}
	}
	return truncate(out, r.limit(p)), nil
}

func (r *resolver) listSegments(p graphql.ResolveParams) (any, error) {
	status := network.EdgeStatus(stringArg(p, "status"))
	if status != "" && !status.Valid() {
		return nil, fault.New("segments").Context("status %q", status).Cause(fault.ErrInvalidStatus).Err()
	}
	all := r.eng.Graph().Edges()
	out := all[:0]
	for _, s := range all {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	return truncate(out, r.limit(p)), nil
}

func (r *resolver) listAlerts(p graphql.ResolveParams) (any, error) {
	f := alerts.Filter{
		SensorID:      stringArg(p, "sensorId"),
		State:         alerts.State(stringArg(p, "state")),
		IncludeClosed: boolArg(p, "includeClosed"),
	}
	if s := stringArg(p, "minSeverity"); s != "" {
		sev, err := alerts.ParseSeverity(s)
		if err != nil {
			return nil, err
		}
		f.MinSeverity = sev
	}
	return truncate(r.eng.Alerts().List(f), r.limit(p)), nil
}

func (r *resolver) listCases(p graphql.ResolveParams) (any, error) {
	f := leaks.Filter{DMA: stringArg(p, "dma"), Open: boolArg(p, "open")}
	if s := stringArg(p, "status"); s != "" {
		st, err := leaks.ParseStatus(s)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	return truncate(r.eng.Leaks().List(f), r.limit(p)), nil
}

func (r *resolver) reportLeak(p graphql.ResolveParams) (any, error) {
	sev, err := alerts.ParseSeverity(stringArg(p, "severity"))
	if err != nil {
		return nil, err
	}
	loc := leaks.Location{NodeID: stringArg(p, "nodeId"), SegmentID: stringArg(p, "segmentId")}
	id, err := r.eng.ReportLeak(loc, stringArg(p, "description"), sev)
	if err != nil {
		return nil, err
	}
	return r.eng.Leaks().Get(id)
}

func (r *resolver) advanceCase(p graphql.ResolveParams) (any, error) {
	expected, err := leaks.ParseStatus(stringArg(p, "expected"))
	if err != nil {
		return nil, err
	}
	next, err := leaks.ParseStatus(stringArg(p, "to"))
	if err != nil {
		return nil, err
	}
	return r.eng.AdvanceCase(stringArg(p, "id"), expected, next, stringArg(p, "actor"))
}

func (r *resolver) nodeIncident(p graphql.ResolveParams) (any, error) {
	n, ok := p.Source.(network.Node)
	if !ok {
		return nil, nil
	}
	return r.eng.Graph().IncidentEdges(n.ID)
}

func (r *resolver) nodeReachable(p graphql.ResolveParams) (any, error) {
	n, ok := p.Source.(network.Node)
	if !ok {
		return nil, nil
	}
	var allowed []network.EdgeStatus
	if list, ok := p.Args["statuses"].([]any); ok {
		for _, v := range list {
			s := network.EdgeStatus(v.(string))
			if !s.Valid() {
				return nil, fault.New("reachable").Context("status %q", s).Cause(fault.ErrInvalidStatus).Err()
			}
			allowed = append(allowed, s)
		}
	}
	ids, err := r.eng.Graph().ReachableFrom(n.ID, allowed...)
	if err != nil {
		return nil, err
	}
	return r.nodes(truncate(ids, r.limit(p))), nil
}

func (r *resolver) nodeIsolatedBy(p graphql.ResolveParams) (any, error) {
	n, ok := p.Source.(network.Node)
	if !ok {
		return nil, nil
	}
	ids, err := r.eng.Graph().IsolatedBy(n.ID)
	if err != nil {
		return nil, err
	}
	return r.nodes(ids), nil
}

func (r *resolver) nodeAlerts(p graphql.ResolveParams) (any, error) {
	n, ok := p.Source.(network.Node)
	if !ok || n.Kind() != network.KindSensor {
		return nil, nil
	}
	return r.eng.Alerts().List(alerts.Filter{SensorID: string(n.ID), IncludeClosed: boolArg(p, "includeClosed")}), nil
}

func (r *resolver) segmentEndpoints(p graphql.ResolveParams) (any, error) {
	s, ok := p.Source.(network.Segment)
	if !ok {
		return nil, nil
	}
	return r.nodes([]network.NodeID{s.A, s.B}), nil
}

func (r *resolver) segmentSensors(p graphql.ResolveParams) (any, error) {
	s, ok := p.Source.(network.Segment)
	if !ok {
		return nil, nil
	}
	return r.nodes(r.eng.Graph().SensorsOnSegment(s.ID)), nil
}

func (r *resolver) alertSensor(p graphql.ResolveParams) (any, error) {
	a, ok := p.Source.(alerts.Alert)
	if !ok {
		return nil, nil
	}
	n, err := r.eng.Graph().Node(network.NodeID(a.SensorID))
	if err != nil {
		return nil, nil
	}
	return n, nil
}

func (r *resolver) caseAlert(p graphql.ResolveParams) (any, error) {
	c, ok := p.Source.(leaks.Case)
	if !ok || c.AlertID == "" {
		return nil, nil
	}
	a, err := r.eng.Alerts().Get(c.AlertID)
	if err != nil {
		// pruned alerts are gone from memory
		return nil, nil
	}
	return a, nil
}

func (r *resolver) zoneNodes(p graphql.ResolveParams) (any, error) {
	s, ok := p.Source.(engine.ZoneSummary)
	if !ok {
		return nil, nil
	}
	return r.nodes(s.Nodes), nil
}

func (r *resolver) zoneBoundary(p graphql.ResolveParams) (any, error) {
	s, ok := p.Source.(engine.ZoneSummary)
	if !ok {
		return nil, nil
	}
	out := make([]network.Segment, 0, len(s.Boundary))
	for _, id := range s.Boundary {
		if seg, err := r.eng.Graph().Edge(id); err == nil {
			out = append(out, seg)
		}
	}
	return out, nil
}

func (r *resolver) zoneAlerts(p graphql.ResolveParams) (any, error) {
	s, ok := p.Source.(engine.ZoneSummary)
	if !ok {
		return nil, nil
	}
	return r.eng.AlertsForZone(s.ID)
}

func (r *resolver) zoneCases(p graphql.ResolveParams) (any, error) {
	s, ok := p.Source.(engine.ZoneSummary)
	if !ok {
		return nil, nil
	}
	return r.eng.Leaks().List(leaks.Filter{DMA: string(s.ID), Open: boolArg(p, "open")}), nil
}

func (r *resolver) zonePeriods(p graphql.ResolveParams) (any, error) {
	s, ok := p.Source.(engine.ZoneSummary)
	if !ok {
		return nil, nil
	}
	periods, err := r.eng.NRW().Periods(s.ID)
	if fault.IsNotFound(err) {
		return nil, nil
	}
	return periods, err
}

func (r *resolver) impactZones(p graphql.ResolveParams) (any, error) {
	i, ok := p.Source.(impact)
	if !ok {
		return nil, nil
	}
	out := make([]engine.ZoneSummary, 0, len(i.zones))
	for _, id := range i.zones {
		if s, err := r.eng.ZoneSummary(id); err == nil {
			out = append(out, s)
		}
	}
	return out, nil
}
