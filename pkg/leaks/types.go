package leaks

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
)

// Status is a leak case's position in its lifecycle
type Status uint8

const (
	Open Status = iota + 1
	UnderRepair
	Resolved
	Rejected
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case Open:
		return "Open"
	case UnderRepair:
		return "UnderRepair"
	case Resolved:
		return "Resolved"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// ParseStatus converts a status name
func ParseStatus(v string) (Status, error) {
	for s := Open; s <= Rejected; s++ {
		if s.String() == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown leak case status %q", v)
}

// MarshalText encodes the status name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == Resolved || s == Rejected
}

// successors lists the only legal transitions
var successors = map[Status][]Status{
	Open:        {UnderRepair, Rejected},
	UnderRepair: {Resolved},
}

// CanTransition reports whether from -> to is a legal transition
func CanTransition(from, to Status) bool {
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Source records how a case was opened
type Source string

const (
	SourceReport Source = "report"
	SourceAlert  Source = "alert"
	SourceReopen Source = "reopen"
)

// Location points at the node and/or pipeline segment where a leak is suspected
type Location struct {
	NodeID    string `json:"node_id,omitempty"`
	SegmentID string `json:"segment_id,omitempty"`
}

// Transition is one entry of a case's history
type Transition struct {
	From  Status    `json:"from"`
	To    Status    `json:"to"`
	Actor string    `json:"actor,omitempty"`
	At    time.Time `json:"at"`
	Note  string    `json:"note,omitempty"`
}

// Case is a leak-detection case
type Case struct {
	ID             string          `json:"id"`
	Location       Location        `json:"location"`
	PipelineID     string          `json:"pipeline_id,omitempty"`
	Severity       alerts.Severity `json:"severity"`
	Description    string          `json:"description"`
	Status         Status          `json:"status"`
	Source         Source          `json:"source"`
	DetectedAt     time.Time       `json:"detected_at"`
	RepairedAt     *time.Time      `json:"repaired_at,omitempty"`
	RootCause      string          `json:"root_cause,omitempty"`
	PartsUsed      []string        `json:"parts_used,omitempty"`
	ReopenedFrom   string          `json:"reopened_from,omitempty"`
	AlertID        string          `json:"alert_id,omitempty"`
	DMA            string          `json:"dma,omitempty"`
	History        []Transition    `json:"history"`
	Version        uint64          `json:"version"`
	AcknowledgedBy string          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
}

// Report is the caller-supplied part of a new case
type Report struct {
	Location    Location
	PipelineID  string
	Severity    alerts.Severity
	Description string
	Source      Source
	DetectedAt  time.Time
}

// Repair carries the details recorded on resolution
type Repair struct {
	RepairedAt time.Time
	RootCause  string
	PartsUsed  []string
	Actor      string
}

// ChangeKind names what happened to a case
type ChangeKind string

const (
	ChangeCreated      ChangeKind = "created"
	ChangeTransition   ChangeKind = "transition"
	ChangeAcknowledged ChangeKind = "acknowledged"
)

// Change is delivered to OnChange hooks after it is committed
type Change struct {
	Kind ChangeKind
	From Status
	To   Status
	Case Case
}

// Hook receives committed changes
type Hook func(Change)

// Topology validates location references
type Topology interface {
	HasNode(id string) bool
	HasEdge(id string) bool
}

// ZoneResolver returns the DMA owning a location, if any
type ZoneResolver func(loc Location, pipelineID string) (string, bool)

// Filter narrows List results
type Filter struct {
	Status Status
	DMA    string
	Open   bool // only cases not yet in a terminal status
}

func (f Filter) match(c *Case) bool {
	if f.Status != 0 && c.Status != f.Status {
		return false
	}
	if f.DMA != "" && c.DMA != f.DMA {
		return false
	}
	if f.Open && c.Status.Terminal() {
		return false
	}
	return true
}
