package alerts

import (
	"fmt"
	"math"
	"slices"
)

// Level is one severity tier of a rule
type Level struct {
	Limit    float64  `json:"limit"`
	Severity Severity `json:"severity"`
}

// Rule is a direction-aware threshold with severity tiers for one sensor.
// ValidMin and ValidMax bound physically plausible values when ValidMax > ValidMin.
type Rule struct {
	SensorID  string    `json:"sensor_id"`
	Type      Type      `json:"type"`
	Direction Direction `json:"direction"`
	Unit      string    `json:"unit"`
	Levels    []Level   `json:"levels"`
	ValidMin  float64   `json:"valid_min,omitempty"`
	ValidMax  float64   `json:"valid_max,omitempty"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks the rule and returns it with levels ordered by severity
func (r Rule) Validate() (Rule, error) {
	if r.SensorID == "" {
		return r, fmt.Errorf("sensor id is required")
	}
	if r.Type == "" {
		return r, fmt.Errorf("alert type is required")
	}
	if r.Direction != Below && r.Direction != Above {
		return r, fmt.Errorf("direction must be %q or %q", Below, Above)
	}
	if len(r.Levels) == 0 {
		return r, fmt.Errorf("at least one level is required")
	}
	if r.hasRange() && !(finite(r.ValidMin) && finite(r.ValidMax)) {
		return r, fmt.Errorf("valid range must be finite")
	}

	levels := slices.Clone(r.Levels)
	slices.SortFunc(levels, func(a, b Level) int { return int(a.Severity) - int(b.Severity) })
	for i, l := range levels {
		if !l.Severity.Valid() {
			return r, fmt.Errorf("level %d: invalid severity", i)
		}
		if !finite(l.Limit) {
			return r, fmt.Errorf("level %d: limit must be finite", i)
		}
		if i == 0 {
			continue
		}
		prev := levels[i-1]
		if l.Severity == prev.Severity {
			return r, fmt.Errorf("duplicate %s level", l.Severity)
		}
		// more severe tiers sit further past the limit
		if r.Direction == Below && l.Limit >= prev.Limit {
			return r, fmt.Errorf("%s limit %v must be below %s limit %v", l.Severity, l.Limit, prev.Severity, prev.Limit)
		}
		if r.Direction == Above && l.Limit <= prev.Limit {
			return r, fmt.Errorf("%s limit %v must be above %s limit %v", l.Severity, l.Limit, prev.Severity, prev.Limit)
		}
	}
	r.Levels = levels
	return r, nil
}

func (r Rule) hasRange() bool {
	return r.ValidMax > r.ValidMin
}

// clamp bounds v to the rule's valid range and reports whether it changed
func (r Rule) clamp(v float64) (float64, bool) {
	if !r.hasRange() {
		return v, false
	}
	switch {
	case v < r.ValidMin:
		return r.ValidMin, true
	case v > r.ValidMax:
		return r.ValidMax, true
	}
	return v, false
}

// classify returns the most severe level crossed by v
func (r Rule) classify(v float64) (Level, bool) {
	var hit Level
	crossed := false
	for _, l := range r.Levels {
		if (r.Direction == Below && v < l.Limit) || (r.Direction == Above && v > l.Limit) {
			hit = l
			crossed = true
		}
	}
	return hit, crossed
}
