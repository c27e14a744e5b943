package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

var pipe = network.SegmentAttrs{Material: network.MaterialDuctileIron, DiameterMM: 200, LengthKM: 1.2}

// newTestEngine builds R1 -P1- V1 -P2- PS-01 with Zone-A over {V1, PS-01}.
// The journal is replayed unless replay is false.
func newTestEngine(t *testing.T, replay bool) *engine.Engine {
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
	if replay {
		require.NoError(t, e.Recover())
	}
	return e
}

// setupTestServer returns a server over the seeded engine and its full handler chain
func setupTestServer(t *testing.T, opts Options) (*Server, *engine.Engine, http.Handler) {
	t.Helper()
	e := newTestEngine(t, true)
	return serverFor(t, e, opts)
}

func serverFor(t *testing.T, e *engine.Engine, opts Options) (*Server, *engine.Engine, http.Handler) {
	t.Helper()
	s, err := NewServer(e, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, e, s.Handler()
}

// do sends body (marshalled unless it is already a string) through h
func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// decode asserts the status and unmarshals the body into out
func decode(t *testing.T, rr *httptest.ResponseRecorder, status int, out any) {
	t.Helper()
	require.Equal(t, status, rr.Code, "body: %s", rr.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out))
	}
}
