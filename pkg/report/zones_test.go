package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

func TestZoneWorkbook(t *testing.T) {
	nrw := 18.0
	within := true
	zones := []engine.ZoneSummary{
		{
			ID:           "Zone-A",
			Nodes:        []network.NodeID{"V1", "PS-01"},
			Boundary:     []network.EdgeID{"P1", "P7"},
			TargetNRW:    18,
			NRW:          &nrw,
			WithinTarget: &within,
			ActiveAlerts: 2,
			GeneratedAt:  time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC),
		},
		{ID: "Zone-B", TargetNRW: 12},
	}
	cases := []leaks.Case{{
		ID: "case-1", DMA: "Zone-A", Status: leaks.Open, Severity: alerts.SeverityHigh,
		Source: leaks.SourceAlert, Location: leaks.Location{SegmentID: "P2"},
		DetectedAt: time.Date(2026, 4, 1, 5, 0, 0, 0, time.UTC), Description: "pressure drop",
	}}

	data, err := ZoneWorkbook(zones, cases)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{zoneSheet, caseSheet}, f.GetSheetList())

	rows, err := f.GetRows(zoneSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ZoneHeader, rows[0])
	assert.Equal(t, "Zone-A", rows[1][0])
	assert.Equal(t, "P1, P7", rows[1][2])
	assert.Equal(t, "18", rows[1][5])
	assert.Equal(t, "Yes", rows[1][7])

	nrwCell, err := f.GetCellValue(zoneSheet, "F3")
	require.NoError(t, err)
	assert.Empty(t, nrwCell, "zone without data leaves NRW blank")

	caseRows, err := f.GetRows(caseSheet)
	require.NoError(t, err)
	require.Len(t, caseRows, 2)
	assert.Equal(t, []string{"case-1", "Zone-A", "Open", "High", "alert", "", "P2", "2026-04-01 05:00:00", "pressure drop"}, caseRows[1])
}

func TestZoneWorkbook_Empty(t *testing.T) {
	data, err := ZoneWorkbook(nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(zoneSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
