package engine

import (
	"errors"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
	"github.com/dd0wney/cluso-waternet/pkg/network"
	"github.com/dd0wney/cluso-waternet/pkg/nrw"
)

// ZoneSummary is the drill-down view of one DMA. Metric pointers are nil
// when the current period has no data.
type ZoneSummary struct {
	ID                dma.ID           `json:"id"`
	Nodes             []network.NodeID `json:"nodes"`
	Boundary          []network.EdgeID `json:"boundary"`
	Connections       int              `json:"connections"`
	TargetNRW         float64          `json:"target_nrw"`
	NRW               *float64         `json:"nrw,omitempty"`
	RollingNRW7d      *float64         `json:"rolling_nrw_7d,omitempty"`
	WithinTarget      *bool            `json:"within_target,omitempty"`
	LossM3            *float64         `json:"loss_m3,omitempty"`
	LossCost          *float64         `json:"loss_cost,omitempty"`
	LossPerConnection *float64         `json:"loss_per_connection,omitempty"`
	RebaselinePending bool             `json:"rebaseline_pending"`
	ActiveAlerts      int              `json:"active_alerts"`
	OpenCases         int              `json:"open_cases"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// ZoneSummary assembles the drill-down view of a zone
func (e *Engine) ZoneSummary(id dma.ID) (ZoneSummary, error) {
	d, err := e.zones.Get(id)
	if err != nil {
		return ZoneSummary{}, err
	}
	boundary, err := e.zones.BoundaryEdges(id)
	if err != nil {
		return ZoneSummary{}, err
	}

	s := ZoneSummary{
		ID:                d.ID,
		Nodes:             d.Nodes,
		Boundary:          boundary,
		Connections:       d.Connections,
		TargetNRW:         d.TargetNRW,
		RebaselinePending: e.nrw.RebaselinePending(id),
		GeneratedAt:       e.now(),
	}

	if s.NRW, err = optional(e.nrw.NRWPercent(id)); err != nil {
		return ZoneSummary{}, err
	}
	if s.NRW != nil {
		ok := nrw.WithinTarget(*s.NRW, d.TargetNRW)
		s.WithinTarget = &ok
	}
	if s.RollingNRW7d, err = optional(e.nrw.RollingAverage(id, 7)); err != nil {
		return ZoneSummary{}, err
	}
	if s.LossM3, err = optional(e.nrw.LossVolume(id)); err != nil {
		return ZoneSummary{}, err
	}
	if s.LossCost, err = optional(e.nrw.LossCost(id)); err != nil {
		return ZoneSummary{}, err
	}
	if s.LossPerConnection, err = optional(e.nrw.LossPerConnection(id)); err != nil {
		return ZoneSummary{}, err
	}

	members := make(map[network.NodeID]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		members[n] = true
	}
	for _, a := range e.alerts.Active() {
		if members[network.NodeID(a.SensorID)] {
			s.ActiveAlerts++
		}
	}
	s.OpenCases = len(e.leaks.List(leaks.Filter{DMA: string(id), Open: true}))
	return s, nil
}

// ZoneSummaries returns a summary for every zone, ordered by id
func (e *Engine) ZoneSummaries() []ZoneSummary {
	ids := e.zones.IDs()
	out := make([]ZoneSummary, 0, len(ids))
	for _, id := range ids {
		if s, err := e.ZoneSummary(id); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// optional maps NoData to a nil value
func optional(v float64, err error) (*float64, error) {
	if errors.Is(err, fault.ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// AlertsForZone returns unacknowledged alerts on sensors inside a zone
func (e *Engine) AlertsForZone(id dma.ID) ([]alerts.Alert, error) {
	d, err := e.zones.Get(id)
	if err != nil {
		return nil, err
	}
	members := make(map[network.NodeID]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		members[n] = true
	}
	var out []alerts.Alert
	for _, a := range e.alerts.Active() {
		if members[network.NodeID(a.SensorID)] {
			out = append(out, a)
		}
	}
	return out, nil
}

// ReadingSummaries returns the day summaries of sensors inside a zone,
// ordered by sensor then day
func (e *Engine) ReadingSummaries(id dma.ID) ([]DaySummary, error) {
	d, err := e.zones.Get(id)
	if err != nil {
		return nil, err
	}
	out := make([]DaySummary, 0)
	for _, n := range d.Nodes {
		out = append(out, e.readings.Summaries(string(n))...)
	}
	return out, nil
}
