package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-waternet/pkg/network"
)

func TestCreateAndListNodes(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{
			name:   "valve",
			body:   `{"id":"V2","kind":"Valve","valve":{"diameter_mm":150,"valve_type":"Butterfly"},"location":{"lat":-33.86,"lon":151.2}}`,
			status: http.StatusCreated,
		},
		{
			name:   "duplicate id",
			body:   `{"id":"V1","kind":"Valve","valve":{"diameter_mm":150,"valve_type":"Gate"}}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "missing attributes",
			body:   `{"id":"V3","kind":"Valve"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "bad valve type",
			body:   `{"id":"V4","kind":"Valve","valve":{"diameter_mm":150,"valve_type":"Sluice"}}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed json",
			body:   `{"id":`,
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/nodes", tt.body)
			assert.Equal(t, tt.status, rr.Code, "body: %s", rr.Body.String())
		})
	}

	var valves []network.Node
	decode(t, do(t, h, http.MethodGet, "/nodes?kind=Valve", nil), http.StatusOK, &valves)
	require.Len(t, valves, 2)
	assert.Equal(t, network.NodeID("V1"), valves[0].ID)
	assert.Equal(t, network.NodeOperational, valves[1].Status)
	assert.Equal(t, network.ValveAttrs{DiameterMM: 150, ValveType: network.ValveButterfly}, valves[1].Attrs)

	rr := do(t, h, http.MethodGet, "/nodes?status=Leaking", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetNode(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})

	var node network.Node
	decode(t, do(t, h, http.MethodGet, "/nodes/PS-01", nil), http.StatusOK, &node)
	sensor, ok := node.Sensor()
	require.True(t, ok)
	assert.Equal(t, network.EdgeID("P2"), sensor.SegmentID)

	var errResp ErrorResponse
	decode(t, do(t, h, http.MethodGet, "/nodes/PS-99", nil), http.StatusNotFound, &errResp)
	assert.Equal(t, "ValidationError", errResp.Kind)

	rr := do(t, h, http.MethodGet, "/nodes/bad%20id", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNodeStatus(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})

	var node network.Node
	decode(t, do(t, h, http.MethodPut, "/nodes/V1/status", StatusRequest{Status: "Closed"}), http.StatusOK, &node)
	assert.Equal(t, network.NodeClosed, node.Status)

	rr := do(t, h, http.MethodPut, "/nodes/V1/status", StatusRequest{Status: "Leaking"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/nodes/V1/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/nodes/V1/status", StatusRequest{Status: "Closed"})
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPut, rr.Header().Get("Allow"))
}

func TestReachable(t *testing.T) {
	_, e, h := setupTestServer(t, Options{})

	var got ReachableResponse
	decode(t, do(t, h, http.MethodGet, "/nodes/R1/reachable", nil), http.StatusOK, &got)
	assert.Equal(t, []network.NodeID{"R1", "V1", "PS-01"}, got.Reachable)

	decode(t, do(t, h, http.MethodGet, "/nodes/V1/reachable", nil), http.StatusOK, &got)
	assert.ElementsMatch(t, []network.NodeID{"V1", "PS-01"}, got.Isolated)
	assert.Equal(t, "Zone-A", string(got.DMAs[0]))

	require.NoError(t, e.SetEdgeStatus("P2", network.EdgeUnderRepair))
	decode(t, do(t, h, http.MethodGet, "/nodes/R1/reachable?status=Active", nil), http.StatusOK, &got)
	assert.Equal(t, []network.NodeID{"R1", "V1"}, got.Reachable)
	assert.Equal(t, []string{"Active"}, got.Statuses)

	rr := do(t, h, http.MethodGet, "/nodes/R1/reachable?status=Active,Broken", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEdges(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})

	var seg network.Segment
	decode(t, do(t, h, http.MethodPost, "/edges", EdgeRequest{
		ID: "P3", A: "PS-01", B: "R1", Material: "PVC", DiameterMM: 110, LengthKM: 0.4,
	}), http.StatusCreated, &seg)
	assert.Equal(t, network.EdgeActive, seg.Status)
	assert.Equal(t, network.MaterialPVC, seg.Material)

	tests := []struct {
		name string
		req  EdgeRequest
	}{
		{"self loop", EdgeRequest{ID: "P4", A: "R1", B: "R1", Material: "PVC", DiameterMM: 110, LengthKM: 1}},
		{"unknown material", EdgeRequest{ID: "P5", A: "R1", B: "V1", Material: "Lead", DiameterMM: 110, LengthKM: 1}},
		{"zero length", EdgeRequest{ID: "P6", A: "R1", B: "V1", Material: "PVC", DiameterMM: 110}},
		{"unknown endpoint", EdgeRequest{ID: "P7", A: "R1", B: "X9", Material: "PVC", DiameterMM: 110, LengthKM: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/edges", tt.req)
			assert.Contains(t, []int{http.StatusBadRequest, http.StatusNotFound}, rr.Code, "body: %s", rr.Body.String())
		})
	}

	decode(t, do(t, h, http.MethodPut, "/edges/P2/status", StatusRequest{Status: "UnderRepair"}), http.StatusOK, &seg)
	assert.Equal(t, network.EdgeUnderRepair, seg.Status)

	var repairing []network.Segment
	decode(t, do(t, h, http.MethodGet, "/edges?status=UnderRepair", nil), http.StatusOK, &repairing)
	require.Len(t, repairing, 1)
	assert.Equal(t, network.EdgeID("P2"), repairing[0].ID)
}
