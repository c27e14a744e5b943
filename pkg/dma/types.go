package dma

import (
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/network"
)

// ID identifies a DMA. A DMA's id is its name.
type ID string

// DMA is a snapshot of a district metered area
type DMA struct {
	ID           ID               `json:"id"`
	Nodes        []network.NodeID `json:"nodes"`
	TargetNRW    float64          `json:"target_nrw"`
	CurrentNRW   float64          `json:"current_nrw"`
	CurrentNRWAt time.Time        `json:"current_nrw_at"`
	Connections  int              `json:"connections"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Stats summarises the registry
type Stats struct {
	DMAs          int       `json:"dmas"`
	AssignedNodes int       `json:"assigned_nodes"`
	CachedBounds  int       `json:"cached_boundaries"`
	Halted        bool      `json:"halted"`
	HaltReason    string    `json:"halt_reason,omitempty"`
	LastSweepAt   time.Time `json:"last_sweep_at"`
}

// zone is the registry's internal record of a DMA
type zone struct {
	id          ID
	members     map[network.NodeID]struct{}
	target      float64
	current     float64
	currentAt   time.Time
	connections int
	createdAt   time.Time
}

func (z *zone) snapshot() DMA {
	nodes := make([]network.NodeID, 0, len(z.members))
	for n := range z.members {
		nodes = append(nodes, n)
	}
	sortNodes(nodes)
	return DMA{
		ID:           z.id,
		Nodes:        nodes,
		TargetNRW:    z.target,
		CurrentNRW:   z.current,
		CurrentNRWAt: z.currentAt,
		Connections:  z.connections,
		CreatedAt:    z.createdAt,
	}
}

// boundary is a cached boundary set tagged with the generation it was computed at
type boundary struct {
	gen   uint64
	edges []network.EdgeID
}
