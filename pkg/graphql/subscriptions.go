package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/pubsub"
)

// subscribe returns a subscriber that forwards bus messages on topic whose
// payload passes keep. The feed stops when the operation's context ends.
func (r *resolver) subscribe(topic string, keep func(p graphql.ResolveParams, payload any) bool) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		sub, err := r.eng.Bus().Subscribe(p.Context, topic)
		if err != nil {
			return nil, err
		}
		out := make(chan any)
		go func() {
			defer close(out)
			defer sub.Unsubscribe()
			for {
				select {
				case <-p.Context.Done():
					return
				case msg, ok := <-sub.Channel():
					if !ok {
						return
					}
					if keep != nil && !keep(p, msg.Payload) {
						continue
					}
					select {
					case out <- msg.Payload:
					case <-p.Context.Done():
						return
					}
				}
			}
		}()
		return out, nil
	}
}

// payload resolves a subscription field to the event it was fired with
func payload(p graphql.ResolveParams) (any, error) {
	return p.Source, nil
}

func alertForSensor(p graphql.ResolveParams, v any) bool {
	ev, ok := v.(alerts.Event)
	if !ok {
		return false
	}
	sensor := stringArg(p, "sensorId")
	return sensor == "" || ev.Alert.SensorID == sensor
}

func caseInZone(p graphql.ResolveParams, v any) bool {
	ev, ok := v.(engine.CaseEvent)
	if !ok {
		return false
	}
	zone := stringArg(p, "dma")
	return zone == "" || ev.Case.DMA == zone
}

func (r *resolver) subscriptionType(t *types) *graphql.Object {
	sensorArg := graphql.FieldConfigArgument{"sensorId": &graphql.ArgumentConfig{Type: graphql.String}}
	alertField := func(topic string) *graphql.Field {
		return &graphql.Field{
			Type:      t.alertEvent,
			Args:      sensorArg,
			Subscribe: r.subscribe(topic, alertForSensor),
			Resolve:   payload,
		}
	}
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Subscription",
		Fields: graphql.Fields{
			"alertRaised":       alertField(pubsub.TopicAlertRaised),
			"alertAcknowledged": alertField(pubsub.TopicAlertAcknowledged),
			"alertExpired":      alertField(pubsub.TopicAlertExpired),
			"leakCaseChanged": {
				Type:      t.caseEvent,
				Args:      graphql.FieldConfigArgument{"dma": &graphql.ArgumentConfig{Type: graphql.String}},
				Subscribe: r.subscribe(pubsub.TopicLeakCaseStatusChanged, caseInZone),
				Resolve:   payload,
			},
			"networkChanged": {
				Type:      t.networkEvent,
				Subscribe: r.subscribe(pubsub.TopicNetworkChanged, nil),
				Resolve:   payload,
			},
		},
	})
}
