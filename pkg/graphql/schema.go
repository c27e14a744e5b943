package graphql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
	"github.com/dd0wney/cluso-waternet/pkg/network"
	"github.com/dd0wney/cluso-waternet/pkg/nrw"
)

// from adapts a typed accessor into a field resolver. Sources of any other
// type resolve to null.
func from[T any](fn func(T) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		v, ok := p.Source.(T)
		if !ok {
			return nil, nil
		}
		return fn(v), nil
	}
}

// optFloat unwraps an optional metric so missing data serializes as null
func optFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func optBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func idStrings[T ~string](ids []T) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func field(t graphql.Output, resolve graphql.FieldResolveFn) *graphql.Field {
	return &graphql.Field{Type: t, Resolve: resolve}
}

var (
	listString = graphql.NewList(graphql.String)
	limitArg   = &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: -1}
)

// types holds the object types of the schema. Object fields that drill
// into other objects are thunks so the types can refer to each other.
type types struct {
	node, segment, zone, period, annotation *graphql.Object
	alert, leakCase, transition, impact     *graphql.Object
	alertEvent, caseEvent, networkEvent     *graphql.Object
}

// NewSchema builds the drill-down schema over an engine
func NewSchema(eng *engine.Engine, limits LimitConfig) (graphql.Schema, error) {
	if err := ValidateLimitConfig(&limits); err != nil {
		return graphql.Schema{}, err
	}
	r := &resolver{eng: eng, limits: limits}
	t := &types{}
	t.build(r)

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:        r.queryType(t),
		Mutation:     r.mutationType(t),
		Subscription: r.subscriptionType(t),
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to create schema: %w", err)
	}
	return schema, nil
}

func (t *types) build(r *resolver) {
	t.annotation = graphql.NewObject(graphql.ObjectConfig{
		Name: "Annotation",
		Fields: graphql.Fields{
			"at":     field(graphql.DateTime, from(func(a nrw.Annotation) any { return a.At })),
			"kind":   field(graphql.String, from(func(a nrw.Annotation) any { return a.Kind })),
			"detail": field(graphql.String, from(func(a nrw.Annotation) any { return a.Detail })),
		},
	})

	t.period = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Period",
		Description: "One billing period of a zone's volume ledger",
		Fields: graphql.Fields{
			"start":      field(graphql.DateTime, from(func(p nrw.Period) any { return p.Start })),
			"end":        field(graphql.DateTime, from(func(p nrw.Period) any { return p.End })),
			"suppliedM3": field(graphql.Float, from(func(p nrw.Period) any { return p.Supplied })),
			"billedM3":   field(graphql.Float, from(func(p nrw.Period) any { return p.Billed })),
			"closed":     field(graphql.Boolean, from(func(p nrw.Period) any { return p.Closed })),
			"baseline":   field(graphql.Boolean, from(func(p nrw.Period) any { return p.Baseline })),
			"nrw": field(graphql.Float, from(func(p nrw.Period) any {
				if v, ok := p.NRW(); ok {
					return v
				}
				return nil
			})),
			"annotations": field(graphql.NewList(t.annotation), from(func(p nrw.Period) any { return p.Annotations })),
		},
	})

	t.transition = graphql.NewObject(graphql.ObjectConfig{
		Name: "Transition",
		Fields: graphql.Fields{
			"from":  field(graphql.String, from(func(tr leaks.Transition) any { return tr.From.String() })),
			"to":    field(graphql.String, from(func(tr leaks.Transition) any { return tr.To.String() })),
			"actor": field(graphql.String, from(func(tr leaks.Transition) any { return tr.Actor })),
			"at":    field(graphql.DateTime, from(func(tr leaks.Transition) any { return tr.At })),
			"note":  field(graphql.String, from(func(tr leaks.Transition) any { return tr.Note })),
		},
	})

	t.node = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Node",
		Description: "A reservoir, valve or sensor",
		Fields: (graphql.FieldsThunk)(func() graphql.Fields {
			return graphql.Fields{
				"id":        field(graphql.ID, from(func(n network.Node) any { return string(n.ID) })),
				"kind":      field(graphql.String, from(func(n network.Node) any { return string(n.Kind()) })),
				"status":    field(graphql.String, from(func(n network.Node) any { return string(n.Status) })),
				"lat":       field(graphql.Float, from(func(n network.Node) any { return n.Location.Lat })),
				"lon":       field(graphql.Float, from(func(n network.Node) any { return n.Location.Lon })),
				"createdAt": field(graphql.DateTime, from(func(n network.Node) any { return n.CreatedAt })),
				"dma": field(graphql.String, from(func(n network.Node) any {
					if id, ok := r.eng.Zones().DMAOf(n.ID); ok {
						return string(id)
					}
					return nil
				})),
				"capacityM3": field(graphql.Float, from(func(n network.Node) any {
					if a, ok := n.Attrs.(network.ReservoirAttrs); ok {
						return a.CapacityM3
					}
					return nil
				})),
				"diameterMm": field(graphql.Float, from(func(n network.Node) any {
					if a, ok := n.Attrs.(network.ValveAttrs); ok {
						return a.DiameterMM
					}
					return nil
				})),
				"valveType": field(graphql.String, from(func(n network.Node) any {
					if a, ok := n.Attrs.(network.ValveAttrs); ok {
						return string(a.ValveType)
					}
					return nil
				})),
				"measure": field(graphql.String, from(func(n network.Node) any {
					if a, ok := n.Sensor(); ok {
						return string(a.Measure)
					}
					return nil
				})),
				"unit": field(graphql.String, from(func(n network.Node) any {
					if a, ok := n.Sensor(); ok {
						return a.Unit
					}
					return nil
				})),
				"segmentId": field(graphql.String, from(func(n network.Node) any {
					if a, ok := n.Sensor(); ok && a.SegmentID != "" {
						return string(a.SegmentID)
					}
					return nil
				})),
				"incident": {Type: graphql.NewList(t.segment), Resolve: r.nodeIncident},
				"reachable": {
					Type:        graphql.NewList(t.node),
					Description: "Nodes reachable over segments in the given statuses, BFS order",
					Args: graphql.FieldConfigArgument{
						"statuses": &graphql.ArgumentConfig{Type: listString},
						"limit":    limitArg,
					},
					Resolve: r.nodeReachable,
				},
				"isolatedBy": {
					Type:        graphql.NewList(t.node),
					Description: "Nodes that lose supply if this node is closed",
					Resolve:     r.nodeIsolatedBy,
				},
				"alerts": {
					Type:    graphql.NewList(t.alert),
					Args:    graphql.FieldConfigArgument{"includeClosed": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false}},
					Resolve: r.nodeAlerts,
				},
			}
		}),
	})

	t.segment = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Segment",
		Description: "A pipeline segment between two nodes",
		Fields: (graphql.FieldsThunk)(func() graphql.Fields {
			return graphql.Fields{
				"id":         field(graphql.ID, from(func(s network.Segment) any { return string(s.ID) })),
				"a":          field(graphql.String, from(func(s network.Segment) any { return string(s.A) })),
				"b":          field(graphql.String, from(func(s network.Segment) any { return string(s.B) })),
				"material":   field(graphql.String, from(func(s network.Segment) any { return string(s.Material) })),
				"diameterMm": field(graphql.Float, from(func(s network.Segment) any { return s.DiameterMM })),
				"lengthKm":   field(graphql.Float, from(func(s network.Segment) any { return s.LengthKM })),
				"status":     field(graphql.String, from(func(s network.Segment) any { return string(s.Status) })),
				"endpoints":  {Type: graphql.NewList(t.node), Resolve: r.segmentEndpoints},
				"sensors":    {Type: graphql.NewList(t.node), Resolve: r.segmentSensors},
			}
		}),
	})

	t.alert = graphql.NewObject(graphql.ObjectConfig{
		Name: "Alert",
		Fields: (graphql.FieldsThunk)(func() graphql.Fields {
			return graphql.Fields{
				"id":             field(graphql.ID, from(func(a alerts.Alert) any { return a.ID })),
				"sensorId":       field(graphql.String, from(func(a alerts.Alert) any { return a.SensorID })),
				"type":           field(graphql.String, from(func(a alerts.Alert) any { return string(a.Type) })),
				"value":          field(graphql.Float, from(func(a alerts.Alert) any { return a.Value })),
				"threshold":      field(graphql.Float, from(func(a alerts.Alert) any { return a.Threshold })),
				"severity":       field(graphql.String, from(func(a alerts.Alert) any { return a.Severity.String() })),
				"raisedAt":       field(graphql.DateTime, from(func(a alerts.Alert) any { return a.RaisedAt })),
				"updatedAt":      field(graphql.DateTime, from(func(a alerts.Alert) any { return a.UpdatedAt })),
				"occurrences":    field(graphql.Int, from(func(a alerts.Alert) any { return a.Occurrences })),
				"state":          field(graphql.String, from(func(a alerts.Alert) any { return string(a.State) })),
				"acknowledgedBy": field(graphql.String, from(func(a alerts.Alert) any { return a.AcknowledgedBy })),
				"acknowledgedAt": field(graphql.DateTime, from(func(a alerts.Alert) any { return a.AcknowledgedAt })),
				"cleared":        field(graphql.Boolean, from(func(a alerts.Alert) any { return a.Cleared })),
				"clearedAt":      field(graphql.DateTime, from(func(a alerts.Alert) any { return a.ClearedAt })),
				"expiredAt":      field(graphql.DateTime, from(func(a alerts.Alert) any { return a.ExpiredAt })),
				"closed":         field(graphql.Boolean, from(func(a alerts.Alert) any { return a.Closed() })),
				"leakCaseId":     field(graphql.String, from(func(a alerts.Alert) any { return a.LeakCaseID })),
				"sensor":         {Type: t.node, Resolve: r.alertSensor},
			}
		}),
	})

	t.leakCase = graphql.NewObject(graphql.ObjectConfig{
		Name: "LeakCase",
		Fields: (graphql.FieldsThunk)(func() graphql.Fields {
			return graphql.Fields{
				"id":             field(graphql.ID, from(func(c leaks.Case) any { return c.ID })),
				"nodeId":         field(graphql.String, from(func(c leaks.Case) any { return c.Location.NodeID })),
				"segmentId":      field(graphql.String, from(func(c leaks.Case) any { return c.Location.SegmentID })),
				"pipelineId":     field(graphql.String, from(func(c leaks.Case) any { return c.PipelineID })),
				"severity":       field(graphql.String, from(func(c leaks.Case) any { return c.Severity.String() })),
				"description":    field(graphql.String, from(func(c leaks.Case) any { return c.Description })),
				"status":         field(graphql.String, from(func(c leaks.Case) any { return c.Status.String() })),
				"source":         field(graphql.String, from(func(c leaks.Case) any { return string(c.Source) })),
				"detectedAt":     field(graphql.DateTime, from(func(c leaks.Case) any { return c.DetectedAt })),
				"repairedAt":     field(graphql.DateTime, from(func(c leaks.Case) any { return c.RepairedAt })),
				"rootCause":      field(graphql.String, from(func(c leaks.Case) any { return c.RootCause })),
				"partsUsed":      field(listString, from(func(c leaks.Case) any { return c.PartsUsed })),
				"reopenedFrom":   field(graphql.String, from(func(c leaks.Case) any { return c.ReopenedFrom })),
				"alertId":        field(graphql.String, from(func(c leaks.Case) any { return c.AlertID })),
				"dma":            field(graphql.String, from(func(c leaks.Case) any { return c.DMA })),
				"version":        field(graphql.Int, from(func(c leaks.Case) any { return int(c.Version) })),
				"acknowledgedBy": field(graphql.String, from(func(c leaks.Case) any { return c.AcknowledgedBy })),
				"acknowledgedAt": field(graphql.DateTime, from(func(c leaks.Case) any { return c.AcknowledgedAt })),
				"history":        field(graphql.NewList(t.transition), from(func(c leaks.Case) any { return c.History })),
				"alert":          {Type: t.alert, Resolve: r.caseAlert},
			}
		}),
	})

	t.zone = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Zone",
		Description: "A district metered area with its current NRW figures",
		Fields: (graphql.FieldsThunk)(func() graphql.Fields {
			return graphql.Fields{
				"id":                field(graphql.ID, from(func(s engine.ZoneSummary) any { return string(s.ID) })),
				"connections":       field(graphql.Int, from(func(s engine.ZoneSummary) any { return s.Connections })),
				"targetNrw":         field(graphql.Float, from(func(s engine.ZoneSummary) any { return s.TargetNRW })),
				"nrw":               field(graphql.Float, from(func(s engine.ZoneSummary) any { return optFloat(s.NRW) })),
				"rollingNrw7d":      field(graphql.Float, from(func(s engine.ZoneSummary) any { return optFloat(s.RollingNRW7d) })),
				"withinTarget":      field(graphql.Boolean, from(func(s engine.ZoneSummary) any { return optBool(s.WithinTarget) })),
				"lossM3":            field(graphql.Float, from(func(s engine.ZoneSummary) any { return optFloat(s.LossM3) })),
				"lossCost":          field(graphql.Float, from(func(s engine.ZoneSummary) any { return optFloat(s.LossCost) })),
				"lossPerConnection": field(graphql.Float, from(func(s engine.ZoneSummary) any { return optFloat(s.LossPerConnection) })),
				"rebaselinePending": field(graphql.Boolean, from(func(s engine.ZoneSummary) any { return s.RebaselinePending })),
				"activeAlerts":      field(graphql.Int, from(func(s engine.ZoneSummary) any { return s.ActiveAlerts })),
				"openCases":         field(graphql.Int, from(func(s engine.ZoneSummary) any { return s.OpenCases })),
				"generatedAt":       field(graphql.DateTime, from(func(s engine.ZoneSummary) any { return s.GeneratedAt })),
				"nodeIds":           field(listString, from(func(s engine.ZoneSummary) any { return idStrings(s.Nodes) })),
				"nodes":             {Type: graphql.NewList(t.node), Resolve: r.zoneNodes},
				"boundary":          {Type: graphql.NewList(t.segment), Resolve: r.zoneBoundary},
				"alerts":            {Type: graphql.NewList(t.alert), Resolve: r.zoneAlerts},
				"cases": {
					Type:    graphql.NewList(t.leakCase),
					Args:    graphql.FieldConfigArgument{"open": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false}},
					Resolve: r.zoneCases,
				},
				"periods": {Type: graphql.NewList(t.period), Resolve: r.zonePeriods},
			}
		}),
	})

	t.impact = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Impact",
		Description: "The effect of closing a node",
		Fields: graphql.Fields{
			"nodeId":   field(graphql.String, from(func(i impact) any { return string(i.node) })),
			"zones":    {Type: graphql.NewList(t.zone), Resolve: r.impactZones},
			"isolated": field(listString, from(func(i impact) any { return idStrings(i.isolated) })),
		},
	})

	t.alertEvent = graphql.NewObject(graphql.ObjectConfig{
		Name: "AlertEvent",
		Fields: graphql.Fields{
			"type":      field(graphql.String, from(func(ev alerts.Event) any { return string(ev.Type) })),
			"escalated": field(graphql.Boolean, from(func(ev alerts.Event) any { return ev.Escalated })),
			"alert":     field(t.alert, from(func(ev alerts.Event) any { return ev.Alert })),
		},
	})

	t.caseEvent = graphql.NewObject(graphql.ObjectConfig{
		Name: "LeakCaseEvent",
		Fields: graphql.Fields{
			"kind": field(graphql.String, from(func(ev engine.CaseEvent) any { return string(ev.Kind) })),
			"from": field(graphql.String, from(func(ev engine.CaseEvent) any {
				if ev.From == 0 {
					return nil
				}
				return ev.From.String()
			})),
			"to":   field(graphql.String, from(func(ev engine.CaseEvent) any { return ev.To.String() })),
			"case": field(t.leakCase, from(func(ev engine.CaseEvent) any { return ev.Case })),
		},
	})

	t.networkEvent = graphql.NewObject(graphql.ObjectConfig{
		Name: "NetworkEvent",
		Fields: graphql.Fields{
			"type":      field(graphql.String, from(func(ev engine.NetworkEvent) any { return ev.Type })),
			"node":      field(graphql.String, from(func(ev engine.NetworkEvent) any { return ev.Node })),
			"edge":      field(graphql.String, from(func(ev engine.NetworkEvent) any { return ev.Edge })),
			"oldStatus": field(graphql.String, from(func(ev engine.NetworkEvent) any { return ev.OldStatus })),
			"newStatus": field(graphql.String, from(func(ev engine.NetworkEvent) any { return ev.NewStatus })),
			"dmas":      field(listString, from(func(ev engine.NetworkEvent) any { return idStrings(ev.DMAs) })),
		},
	})
}
