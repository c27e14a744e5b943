package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

func TestDMAEndpoints(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})

	var zones []engine.ZoneSummary
	decode(t, do(t, h, http.MethodGet, "/dmas", nil), http.StatusOK, &zones)
	require.Len(t, zones, 1)
	assert.Equal(t, []network.EdgeID{"P1"}, zones[0].Boundary)
	assert.Nil(t, zones[0].NRW, "no volumes yet")

	var created engine.ZoneSummary
	decode(t, do(t, h, http.MethodPost, "/dmas", DMARequest{
		ID: "Zone-B", Nodes: []string{"R1"}, TargetNRW: 20, Connections: 150,
	}), http.StatusCreated, &created)
	assert.Equal(t, 150, created.Connections)
	assert.Equal(t, 20.0, created.TargetNRW)

	var errResp ErrorResponse
	decode(t, do(t, h, http.MethodPost, "/dmas", DMARequest{ID: "Zone-C", Nodes: []string{"V1"}}),
		http.StatusConflict, &errResp)
	assert.Equal(t, "StateConflict", errResp.Kind)

	rr := do(t, h, http.MethodPost, "/dmas", DMARequest{ID: "Zone-D", TargetNRW: 140})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/dmas/Zone-Z", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDMAUpdateAndMembers(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})
	decode(t, do(t, h, http.MethodPost, "/dmas", DMARequest{ID: "Zone-B", Nodes: []string{"R1"}}), http.StatusCreated, nil)

	target := 12.5
	var z engine.ZoneSummary
	decode(t, do(t, h, http.MethodPut, "/dmas/Zone-A", DMAUpdateRequest{TargetNRW: &target}), http.StatusOK, &z)
	assert.Equal(t, 12.5, z.TargetNRW)

	decode(t, do(t, h, http.MethodPost, "/dmas/Zone-B/members", MembersRequest{Add: []string{"V1"}}), http.StatusOK, &z)
	assert.ElementsMatch(t, []network.NodeID{"R1", "V1"}, z.Nodes)

	decode(t, do(t, h, http.MethodGet, "/dmas/Zone-A", nil), http.StatusOK, &z)
	assert.Equal(t, []network.NodeID{"PS-01"}, z.Nodes)
	assert.Equal(t, []network.EdgeID{"P2"}, z.Boundary)

	decode(t, do(t, h, http.MethodPost, "/dmas/Zone-B/members", MembersRequest{Remove: []string{"R1"}}), http.StatusOK, &z)
	assert.Equal(t, []network.NodeID{"V1"}, z.Nodes)

	rr := do(t, h, http.MethodPost, "/dmas/Zone-Z/members", MembersRequest{Add: []string{"R1"}})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestZoneNRW(t *testing.T) {
	_, e, h := setupTestServer(t, Options{})

	var resp IngestResponse
	decode(t, do(t, h, http.MethodPost, "/volumes", VolumesRequest{Volumes: []VolumeRequest{
		{DMA: "Zone-A", Supplied: 1000, Billed: 820},
		{DMA: "Zone-Z", Supplied: 10, Billed: 5},
	}}), http.StatusAccepted, &resp)
	assert.Equal(t, 1, resp.Accepted)
	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, 1, resp.Rejected[0].Index)

	require.Eventually(t, func() bool {
		_, err := e.NRW().NRWPercent("Zone-A")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	var got ZoneNRWResponse
	decode(t, do(t, h, http.MethodGet, "/dmas/Zone-A/nrw", nil), http.StatusOK, &got)
	require.NotNil(t, got.NRW)
	assert.InDelta(t, 18.0, *got.NRW, 1e-9)
	require.Len(t, got.Periods, 1)
	assert.Equal(t, 1000.0, got.Periods[0].Supplied)

	var z engine.ZoneSummary
	decode(t, do(t, h, http.MethodGet, "/dmas/Zone-A", nil), http.StatusOK, &z)
	require.NotNil(t, z.WithinTarget)
	assert.True(t, *z.WithinTarget)
}

func TestZoneReadingSummaries(t *testing.T) {
	_, e, h := setupTestServer(t, Options{})
	e.Readings().Append(alerts.Reading{SensorID: "PS-01", Value: 2.5, Unit: "bar", Timestamp: time.Now().Add(-200 * 24 * time.Hour)})
	e.RollupAll(context.Background())

	var sums []engine.DaySummary
	decode(t, do(t, h, http.MethodGet, "/dmas/Zone-A/readings/daily", nil), http.StatusOK, &sums)
	require.Len(t, sums, 1)
	assert.Equal(t, "PS-01", sums[0].SensorID)
	assert.Equal(t, 1, sums[0].Count)

	rr := do(t, h, http.MethodGet, "/dmas/Zone-Z/readings/daily", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
