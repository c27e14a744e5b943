// Package report renders zone NRW summaries as spreadsheets
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
)

const (
	zoneSheet = "Zones"
	caseSheet = "Open Leak Cases"
	timeFmt   = "2006-01-02 15:04:05"
)

// ZoneHeader is the column order of the Zones sheet
var ZoneHeader = []string{
	"DMA", "Nodes", "Boundary Segments", "Connections", "Target NRW %", "NRW %", "7d Avg NRW %",
	"Within Target", "Loss m3", "Loss Cost", "Loss per Connection", "Active Alerts", "Open Cases",
	"Re-baseline Pending", "Generated At",
}

// CaseHeader is the column order of the leak case sheet
var CaseHeader = []string{
	"Case", "DMA", "Status", "Severity", "Source", "Node", "Segment", "Detected At", "Description",
}

var zoneWidths = []float64{16, 8, 30, 12, 12, 10, 12, 12, 12, 12, 16, 12, 10, 18, 20}

// ZoneWorkbook builds an xlsx workbook with one row per zone and one row
// per open leak case. Missing metrics are left blank.
func ZoneWorkbook(zones []engine.ZoneSummary, cases []leaks.Case) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(zoneSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(caseSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeHeader(f, zoneSheet, ZoneHeader, zoneWidths, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	for i, z := range zones {
		if err := writeRow(f, zoneSheet, i+2, zoneRow(z)); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := writeHeader(f, caseSheet, CaseHeader, nil, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	for i, c := range cases {
		if err := writeRow(f, caseSheet, i+2, caseRow(c)); err != nil {
			f.Close()
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func zoneRow(z engine.ZoneSummary) []any {
	boundary := make([]string, len(z.Boundary))
	for i, e := range z.Boundary {
		boundary[i] = string(e)
	}
	var within any
	if z.WithinTarget != nil {
		within = yesNo(*z.WithinTarget)
	}
	return []any{
		string(z.ID),
		len(z.Nodes),
		strings.Join(boundary, ", "),
		z.Connections,
		z.TargetNRW,
		deref(z.NRW),
		deref(z.RollingNRW7d),
		within,
		deref(z.LossM3),
		deref(z.LossCost),
		deref(z.LossPerConnection),
		z.ActiveAlerts,
		z.OpenCases,
		yesNo(z.RebaselinePending),
		z.GeneratedAt.UTC().Format(timeFmt),
	}
}

func caseRow(c leaks.Case) []any {
	return []any{
		c.ID,
		c.DMA,
		c.Status.String(),
		c.Severity.String(),
		string(c.Source),
		c.Location.NodeID,
		c.Location.SegmentID,
		c.DetectedAt.UTC().Format(timeFmt),
		c.Description,
	}
}

func writeHeader(f *excelize.File, sheet string, headers []string, widths []float64, style int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		if i < len(widths) {
			col, _ := excelize.ColumnNumberToName(i + 1)
			if err := f.SetColWidth(sheet, col, col, widths[i]); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// writeRow skips nil values so missing metrics stay empty cells
func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
