package nrw

import (
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/dma"
)

// Epsilon is the tolerance used for target comparisons
const Epsilon = 1e-6

// Annotation marks an event that affects the interpretation of a period
type Annotation struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// Period is one billing period of a DMA's volume ledger
type Period struct {
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Supplied    float64      `json:"supplied_m3"`
	Billed      float64      `json:"billed_m3"`
	Closed      bool         `json:"closed"`
	Baseline    bool         `json:"baseline"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// NRW returns the period's NRW percentage and false when nothing was supplied
func (p Period) NRW() (float64, bool) {
	return percent(p.Supplied, p.Billed)
}

// RollupResult reports what a rollup did for one DMA
type RollupResult struct {
	DMA           dma.ID
	ClosedPeriods int
	PrunedDays    int
	NRW           float64
	HasNRW        bool
	Loss          float64
}

// ZoneReader is the part of the DMA registry the engine needs
type ZoneReader interface {
	Get(id dma.ID) (dma.DMA, error)
}

type bucket struct {
	supplied float64
	billed   float64
}

type ledger struct {
	periods        map[int64]*Period
	days           map[int64]*bucket
	rebaselineFrom time.Time
	pending        bool
	reason         string
}

func newLedger() *ledger {
	return &ledger{
		periods: make(map[int64]*Period),
		days:    make(map[int64]*bucket),
	}
}

// percent computes (supplied-billed)/supplied*100 clamped to [0,100]
func percent(supplied, billed float64) (float64, bool) {
	if supplied <= 0 {
		return 0, false
	}
	p := (supplied - billed) / supplied * 100
	switch {
	case p < 0:
		return 0, true
	case p > 100:
		return 100, true
	}
	return p, true
}
