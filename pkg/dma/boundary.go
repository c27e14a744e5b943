package dma

import (
	"slices"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

// BoundaryEdges returns the non-decommissioned segments with exactly one
// endpoint inside the DMA, sorted by id. Results are cached per DMA until
// a membership edit or a segment change touching the DMA.
func (r *Registry) BoundaryEdges(id ID) ([]network.EdgeID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	z, ok := r.zones[id]
	if !ok {
		return nil, fault.New("BoundaryEdges").DMA(string(id)).Cause(fault.ErrUnknownDMA).Err()
	}

	r.cacheMu.Lock()
	gen := r.gens[id]
	if b, hit := r.cache[id]; hit && b.gen == gen {
		r.cacheMu.Unlock()
		return slices.Clone(b.edges), nil
	}
	r.cacheMu.Unlock()

	edges := computeBoundary(r.graph, z.members)
	if r.metrics != nil {
		r.metrics.DMABoundaryCacheMisses.Inc()
	}

	r.cacheMu.Lock()
	if r.gens[id] == gen {
		r.cache[id] = boundary{gen: gen, edges: edges}
	}
	r.cacheMu.Unlock()
	return slices.Clone(edges), nil
}

func computeBoundary(g *network.Graph, members map[network.NodeID]struct{}) []network.EdgeID {
	out := make([]network.EdgeID, 0)
	g.View(func(v network.ReadView) {
		for n := range members {
			v.Incident(n, func(s network.Segment) {
				if s.Status == network.EdgeDecommissioned {
					return
				}
				if _, inside := members[s.Other(n)]; !inside {
					out = append(out, s.ID)
				}
			})
		}
	})
	slices.Sort(out)
	return out
}

// invalidate drops the cached boundary for a DMA
func (r *Registry) invalidate(id ID) {
	r.cacheMu.Lock()
	r.gens[id]++
	delete(r.cache, id)
	r.cacheMu.Unlock()
}

func (r *Registry) onGraphEvent(e network.Event) {
	switch e.Type {
	case network.EventEdgeAdded, network.EventEdgeStatusChanged:
		r.mu.RLock()
		for _, n := range e.Endpoints {
			if id, ok := r.membership[n]; ok {
				r.invalidate(id)
			}
		}
		r.mu.RUnlock()
	case network.EventNodeAdded, network.EventNodeStatusChanged:
	}
}
