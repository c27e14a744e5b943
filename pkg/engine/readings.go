package engine

import (
	"slices"
	"sync"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
)

// ReadingLog is the append-only store of sensor readings within the
// retention window. Readings per sensor are kept in timestamp order.
// Readings that age out are condensed into per-day summaries.
type ReadingLog struct {
	mu       sync.RWMutex
	bySensor map[string][]alerts.Reading
	days     map[string][]DaySummary
	total    int
}

// DaySummary condenses one sensor's pruned readings for one UTC day
type DaySummary struct {
	SensorID string    `json:"sensor_id"`
	Day      time.Time `json:"day"`
	Unit     string    `json:"unit,omitempty"`
	Count    int       `json:"count"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Mean     float64   `json:"mean"`
}

func (d *DaySummary) add(r alerts.Reading) {
	if d.Count == 0 {
		d.Min, d.Max = r.Value, r.Value
	}
	d.Count++
	d.Min = min(d.Min, r.Value)
	d.Max = max(d.Max, r.Value)
	d.Mean += (r.Value - d.Mean) / float64(d.Count)
	if d.Unit == "" {
		d.Unit = r.Unit
	}
}

// NewReadingLog creates an empty log
func NewReadingLog() *ReadingLog {
	return &ReadingLog{
		bySensor: make(map[string][]alerts.Reading),
		days:     make(map[string][]DaySummary),
	}
}

// Append stores a reading. Out-of-order readings are inserted in place.
func (l *ReadingLog) Append(r alerts.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rs := l.bySensor[r.SensorID]
	if n := len(rs); n == 0 || !r.Timestamp.Before(rs[n-1].Timestamp) {
		rs = append(rs, r)
	} else {
		i, _ := slices.BinarySearchFunc(rs, r.Timestamp, func(x alerts.Reading, t time.Time) int {
			if x.Timestamp.After(t) {
				return 1
			}
			return -1
		})
		rs = slices.Insert(rs, i, r)
	}
	l.bySensor[r.SensorID] = rs
	l.total++
}

// Range returns a sensor's readings with from <= ts < to. Zero bounds are open.
func (l *ReadingLog) Range(sensorID string, from, to time.Time) []alerts.Reading {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []alerts.Reading
	for _, r := range l.bySensor[sensorID] {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !r.Timestamp.Before(to) {
			break
		}
		out = append(out, r)
	}
	return out
}

// Latest returns the most recent reading for a sensor
func (l *ReadingLog) Latest(sensorID string) (alerts.Reading, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rs := l.bySensor[sensorID]
	if len(rs) == 0 {
		return alerts.Reading{}, false
	}
	return rs[len(rs)-1], true
}

// Prune drops readings older than cutoff and returns how many were removed
func (l *ReadingLog) Prune(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, rs := range l.bySensor {
		i := 0
		for i < len(rs) && rs[i].Timestamp.Before(cutoff) {
			i++
		}
		if i == 0 {
			continue
		}
		removed += i
		for _, r := range rs[:i] {
			l.fold(r)
		}
		if i == len(rs) {
			delete(l.bySensor, id)
			continue
		}
		l.bySensor[id] = slices.Clone(rs[i:])
	}
	l.total -= removed
	return removed
}

// fold adds a pruned reading to its day summary. Caller holds mu.
func (l *ReadingLog) fold(r alerts.Reading) {
	day := r.Timestamp.UTC().Truncate(24 * time.Hour)
	ds := l.days[r.SensorID]
	i, found := slices.BinarySearchFunc(ds, day, func(d DaySummary, t time.Time) int {
		return d.Day.Compare(t)
	})
	if !found {
		ds = slices.Insert(ds, i, DaySummary{SensorID: r.SensorID, Day: day})
	}
	ds[i].add(r)
	l.days[r.SensorID] = ds
}

// Summaries returns a sensor's day summaries, oldest first
func (l *ReadingLog) Summaries(sensorID string) []DaySummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.days[sensorID])
}

// PruneSummaries drops day summaries for days before cutoff
func (l *ReadingLog) PruneSummaries(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, ds := range l.days {
		i := 0
		for i < len(ds) && ds[i].Day.Before(cutoff) {
			i++
		}
		removed += i
		if i == len(ds) {
			delete(l.days, id)
			continue
		}
		if i > 0 {
			l.days[id] = slices.Clone(ds[i:])
		}
	}
	return removed
}

// Len returns the number of retained readings
func (l *ReadingLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
