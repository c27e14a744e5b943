package dma

import (
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/network"
)

// Sweep performs a full consistency scan of membership. Any violation
// halts CreateDMA and Reassign until ResumeRebalancing is called. Nothing
// is repaired automatically.
func (r *Registry) Sweep() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSweep = r.now()

	var problems []string
	seen := make(map[network.NodeID]ID, len(r.membership))
	r.graph.View(func(v network.ReadView) {
		for id, z := range r.zones {
			for n := range z.members {
				if other, dup := seen[n]; dup {
					problems = append(problems, fmt.Sprintf("node %s in both %s and %s", n, other, id))
					continue
				}
				seen[n] = id
				if owner := r.membership[n]; owner != id {
					problems = append(problems, fmt.Sprintf("node %s indexed under %q but member of %s", n, owner, id))
				}
				if !v.HasNode(n) {
					problems = append(problems, fmt.Sprintf("node %s in %s is not in the graph", n, id))
				}
			}
		}
	})
	for n, owner := range r.membership {
		if _, ok := seen[n]; !ok {
			problems = append(problems, fmt.Sprintf("node %s indexed under %s but not a member", n, owner))
		}
	}

	if len(problems) == 0 {
		return nil
	}

	r.halted = true
	r.haltReason = strings.Join(problems, "; ")
	if r.metrics != nil {
		r.metrics.SetRebalancingHalted(true)
	}
	r.logger.Error("membership integrity violation, rebalancing halted",
		logging.Count(len(problems)), logging.String("reason", r.haltReason))
	return fault.New("Sweep").Cause(fault.ErrIntegrityViolation).Context("%s", r.haltReason).Err()
}

// Halted reports whether membership edits are halted
func (r *Registry) Halted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.halted
}

// ResumeRebalancing clears the halt raised by Sweep. It is an operator action.
func (r *Registry) ResumeRebalancing(actor string) {
	r.mu.Lock()
	was := r.halted
	r.halted = false
	r.haltReason = ""
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetRebalancingHalted(false)
	}
	if was {
		r.logger.Warn("rebalancing resumed by operator", logging.String("actor", actor))
	}
}
