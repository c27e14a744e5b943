package engine

import (
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

// Journal payloads. Node and threshold operations reuse the domain types.

type edgeRecord struct {
	ID network.EdgeID `json:"id"`
	A  network.NodeID `json:"a"`
	B  network.NodeID `json:"b"`
	network.SegmentAttrs
}

type statusRecord struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type dmaRecord struct {
	ID     dma.ID           `json:"id"`
	Nodes  []network.NodeID `json:"nodes"`
	Target float64          `json:"target_nrw"`
}

type assignRecord struct {
	Node network.NodeID `json:"node"`
	DMA  dma.ID         `json:"dma,omitempty"`
}

type zoneValueRecord struct {
	DMA         dma.ID  `json:"dma"`
	Target      float64 `json:"target_nrw,omitempty"`
	Connections int     `json:"connections,omitempty"`
}
