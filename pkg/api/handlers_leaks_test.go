package api

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
)

func TestLeakLifecycle(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})

	var c leaks.Case
	decode(t, do(t, h, http.MethodPost, "/leaks", LeakRequest{
		NodeID: "PS-01", Description: "wet patch on verge", Severity: "high",
	}), http.StatusCreated, &c)
	assert.Equal(t, leaks.Open, c.Status)
	assert.Equal(t, alerts.SeverityHigh, c.Severity)
	assert.Equal(t, "Zone-A", c.DMA)
	id := c.ID

	decode(t, do(t, h, http.MethodPost, "/leaks/"+id+"/advance", AdvanceRequest{
		Expected: "Open", To: "UnderRepair", Actor: "crew-7",
	}), http.StatusOK, &c)
	assert.Equal(t, leaks.UnderRepair, c.Status)

	// a second operator acting on the stale Open status loses
	var errResp ErrorResponse
	decode(t, do(t, h, http.MethodPost, "/leaks/"+id+"/advance", AdvanceRequest{
		Expected: "Open", To: "Rejected", Actor: "crew-9",
	}), http.StatusConflict, &errResp)
	assert.True(t, errResp.Retryable)

	rr := do(t, h, http.MethodPost, "/leaks/"+id+"/advance", AdvanceRequest{To: "Fixed", Actor: "crew-7"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	decode(t, do(t, h, http.MethodPost, "/leaks/"+id+"/resolve", ResolveRequest{
		RepairedAt: time.Now().UTC(),
		RootCause:  "corroded joint",
		PartsUsed:  []string{"repair clamp 200mm"},
		Actor:      "crew-7",
	}), http.StatusOK, &c)
	assert.Equal(t, leaks.Resolved, c.Status)
	require.NotNil(t, c.RepairedAt)
	assert.Len(t, c.History, 3)

	rr = do(t, h, http.MethodPost, "/leaks/"+id+"/advance", AdvanceRequest{To: "UnderRepair", Actor: "crew-7"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	var reopened leaks.Case
	decode(t, do(t, h, http.MethodPost, "/leaks/"+id+"/reopen", ReopenRequest{Actor: "op-1"}), http.StatusCreated, &reopened)
	assert.Equal(t, id, reopened.ReopenedFrom)
	assert.Equal(t, leaks.SourceReopen, reopened.Source)
	assert.Equal(t, "wet patch on verge", reopened.Description)

	var open []leaks.Case
	decode(t, do(t, h, http.MethodGet, "/leaks?open=true&dma=Zone-A", nil), http.StatusOK, &open)
	require.Len(t, open, 1)
	assert.Equal(t, reopened.ID, open[0].ID)

	rr = do(t, h, http.MethodPost, "/leaks/"+reopened.ID+"/reopen", ReopenRequest{Actor: "op-1"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestLeakAcknowledgeAndLookup(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})

	var c leaks.Case
	decode(t, do(t, h, http.MethodPost, "/leaks", LeakRequest{SegmentID: "P1", Description: "hiss at hydrant"}), http.StatusCreated, &c)
	assert.Equal(t, alerts.SeverityMedium, c.Severity)

	var acked leaks.Case
	decode(t, do(t, h, http.MethodPost, "/leaks/"+c.ID+"/ack", ActorRequest{Actor: "op-1"}), http.StatusOK, &acked)
	assert.Equal(t, "op-1", acked.AcknowledgedBy)
	assert.Greater(t, acked.Version, c.Version)

	var got leaks.Case
	decode(t, do(t, h, http.MethodGet, "/leaks/"+c.ID, nil), http.StatusOK, &got)
	assert.Equal(t, acked.Version, got.Version)

	rr := do(t, h, http.MethodGet, "/leaks/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/leaks?status=Leaking", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/leaks", LeakRequest{Description: "somewhere"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/leaks", LeakRequest{NodeID: "PS-01", Severity: "dire"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestZoneReport(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})
	decode(t, do(t, h, http.MethodPost, "/leaks", LeakRequest{NodeID: "V1", Description: "valve chamber flooded"}), http.StatusCreated, nil)

	rr := do(t, h, http.MethodGet, "/reports/zones.xlsx", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "zones-")

	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	zones, err := f.GetRows("Zones")
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "Zone-A", zones[1][0])

	cases, err := f.GetRows("Open Leak Cases")
	require.NoError(t, err)
	assert.Len(t, cases, 2)
}
