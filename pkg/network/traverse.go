package network

import (
	"slices"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
)

// traversable reports whether a segment may be walked given the allowed
// statuses. Decommissioned segments are never walked.
func traversable(s *Segment, allowed []EdgeStatus) bool {
	if s.Status == EdgeDecommissioned {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, st := range allowed {
		if s.Status == st {
			return true
		}
	}
	return false
}

// ReachableFrom returns the nodes reachable from start over segments whose
// status is in allowed (all non-decommissioned segments when empty), in BFS
// order with ties broken by ascending node id. start is the first element.
func (g *Graph) ReachableFrom(start NodeID, allowed ...EdgeStatus) ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[start]; !ok {
		return nil, fault.New("ReachableFrom").Node(string(start)).Cause(fault.ErrUnknownNode).Err()
	}
	out := g.bfs([]NodeID{start}, allowed, nil)
	if g.metrics != nil {
		g.metrics.NetworkTraversalLength.Observe(float64(len(out)))
	}
	return out, nil
}

// bfs walks from starts. Nodes in blocked are never entered. Caller holds mu.
func (g *Graph) bfs(starts []NodeID, allowed []EdgeStatus, blocked map[NodeID]bool) []NodeID {
	visited := make(map[NodeID]bool, len(starts))
	queue := make([]NodeID, 0, len(starts))
	for _, s := range starts {
		if visited[s] || blocked[s] {
			continue
		}
		visited[s] = true
		queue = append(queue, s)
	}

	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for _, e := range g.adjacency[cur] {
			if visited[e.neighbor] || blocked[e.neighbor] {
				continue
			}
			if !traversable(g.edges[e.edge], allowed) {
				continue
			}
			visited[e.neighbor] = true
			queue = append(queue, e.neighbor)
		}
	}
	return queue
}

// IsolatedBy returns the nodes that lose every supply path from an
// operational reservoir if node id is closed. Nodes already marked Closed
// block flow, and only Active segments carry supply. The result is sorted.
func (g *Graph) IsolatedBy(id NodeID) ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, fault.New("IsolatedBy").Node(string(id)).Cause(fault.ErrUnknownNode).Err()
	}

	var sources, remaining []NodeID
	blocked := make(map[NodeID]bool)
	for nid, n := range g.nodes {
		if n.Status == NodeClosed && nid != id {
			blocked[nid] = true
		}
		if n.Kind() == KindReservoir && n.Status == NodeOperational {
			sources = append(sources, nid)
			if nid != id {
				remaining = append(remaining, nid)
			}
		}
	}

	slices.Sort(sources)
	slices.Sort(remaining)

	// a closed reservoir stops supplying, so it only feeds the first pass
	before := g.bfs(sources, []EdgeStatus{EdgeActive}, blocked)
	blocked[id] = true
	after := g.bfs(remaining, []EdgeStatus{EdgeActive}, blocked)

	still := make(map[NodeID]bool, len(after))
	for _, n := range after {
		still[n] = true
	}
	out := []NodeID{id}
	for _, n := range before {
		if n != id && !still[n] {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out, nil
}
