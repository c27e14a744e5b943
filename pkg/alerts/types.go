package alerts

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks alerts. Higher is worse.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the severity name
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	case SeverityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// ParseSeverity converts a severity name
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(v) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return 0, fmt.Errorf("unknown severity %q", v)
}

// MarshalText encodes the severity name
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Type is the kind of condition an alert reports
type Type string

const (
	LowPressure  Type = "low_pressure"
	HighPressure Type = "high_pressure"
	LowFlow      Type = "low_flow"
	HighFlow     Type = "high_flow"
	LowLevel     Type = "low_level"
	HighLevel    Type = "high_level"
	WaterQuality Type = "water_quality"
)

// Pressure reports whether the type is a pressure condition
func (t Type) Pressure() bool {
	return t == LowPressure || t == HighPressure
}

// Direction says which side of the limit is a crossing
type Direction string

const (
	Below Direction = "below"
	Above Direction = "above"
)

// State is an alert's lifecycle state
type State string

const (
	Unacknowledged State = "Unacknowledged"
	Acknowledged   State = "Acknowledged"
	Expired        State = "Expired"
)

// Reading is one immutable sensor sample
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is a threshold crossing tracked through its lifecycle
type Alert struct {
	ID             string     `json:"id"`
	SensorID       string     `json:"sensor_id"`
	Type           Type       `json:"type"`
	Value          float64    `json:"value"`
	Threshold      float64    `json:"threshold"`
	Severity       Severity   `json:"severity"`
	RaisedAt       time.Time  `json:"raised_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Occurrences    int        `json:"occurrences"`
	State          State      `json:"state"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	Cleared        bool       `json:"cleared"`
	ClearedAt      *time.Time `json:"cleared_at,omitempty"`
	ExpiredAt      *time.Time `json:"expired_at,omitempty"`
	LeakCaseID     string     `json:"leak_case_id,omitempty"`

	leakPending bool
}

// Closed reports whether the alert needs no further attention: it expired,
// or its condition cleared and an operator acknowledged it.
func (a Alert) Closed() bool {
	return a.State == Expired || (a.State == Acknowledged && a.Cleared)
}

// EventType identifies an alert lifecycle event
type EventType string

const (
	EventRaised       EventType = "AlertRaised"
	EventAcknowledged EventType = "AlertAcknowledged"
	EventExpired      EventType = "AlertExpired"
)

// Event is delivered to listeners after the alert state is committed.
// Escalated is set when an existing alert was re-raised at a higher severity.
type Event struct {
	Type      EventType
	Alert     Alert
	Escalated bool
}

// Listener receives alert events
type Listener func(Event)

// SegmentResolver maps a sensor to the pipeline segment it monitors
type SegmentResolver interface {
	SensorSegment(sensorID string) (string, bool)
}

// LeakOpener opens a leak case for a critical pressure alert and returns its id
type LeakOpener interface {
	CreateFromAlert(a Alert, segmentID string) (string, error)
}

// ExpiryPolicy sets how long an unacknowledged alert may go without an
// update before it expires. Critical alerts never expire.
type ExpiryPolicy struct {
	Default time.Duration
	PerType map[Type]time.Duration
}

// For returns the expiry window for an alert type
func (p ExpiryPolicy) For(t Type) time.Duration {
	if d, ok := p.PerType[t]; ok {
		return d
	}
	return p.Default
}

// Filter narrows List results
type Filter struct {
	SensorID      string
	State         State
	MinSeverity   Severity
	IncludeClosed bool
}

// Match reports whether a passes the filter
func (f Filter) Match(a Alert) bool { return f.match(&a) }

func (f Filter) match(a *Alert) bool {
	if f.SensorID != "" && a.SensorID != f.SensorID {
		return false
	}
	if f.State != "" && a.State != f.State {
		return false
	}
	if f.MinSeverity != 0 && a.Severity < f.MinSeverity {
		return false
	}
	if !f.IncludeClosed && a.Closed() {
		return false
	}
	return true
}
