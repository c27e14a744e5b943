package graphql

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

var pipe = network.SegmentAttrs{Material: network.MaterialDuctileIron, DiameterMM: 200, LengthKM: 1.2}

// newTestEngine builds R1 -P1- V1 -P2- PS-01 with Zone-A over {V1, PS-01}
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	for _, n := range []network.Node{
		{ID: "R1", Attrs: network.ReservoirAttrs{CapacityM3: 5000}},
		{ID: "V1", Attrs: network.ValveAttrs{DiameterMM: 200, ValveType: network.ValveGate}},
		{ID: "PS-01", Attrs: network.SensorAttrs{Measure: network.MeasurePressure, Unit: "bar", SegmentID: "P2"}},
	} {
		_, err := e.RegisterNode(n)
		require.NoError(t, err)
	}
	_, err = e.RegisterEdge("P1", "R1", "V1", pipe)
	require.NoError(t, err)
	_, err = e.RegisterEdge("P2", "V1", "PS-01", pipe)
	require.NoError(t, err)
	_, err = e.CreateDMA("Zone-A", []network.NodeID{"V1", "PS-01"}, 18)
	require.NoError(t, err)
	require.NoError(t, e.Recover())
	return e
}

func newTestSchema(t *testing.T, e *engine.Engine) graphql.Schema {
	t.Helper()
	schema, err := NewSchema(e, DefaultLimitConfig())
	require.NoError(t, err)
	return schema
}

// run executes a query and decodes its data into out
func run(t *testing.T, schema graphql.Schema, query string, out any) *graphql.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result := Execute(ctx, schema, Request{Query: query}, DefaultLimits())
	if out != nil {
		require.False(t, result.HasErrors(), "errors: %v", result.Errors)
		data, err := json.Marshal(result.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out))
	}
	return result
}
