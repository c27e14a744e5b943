package api

import (
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/network"
	"github.com/dd0wney/cluso-waternet/pkg/nrw"
)

// API Request/Response Types

// EdgeRequest registers a pipeline segment between two nodes
type EdgeRequest struct {
	ID         string  `json:"id" validate:"required,assetid"`
	A          string  `json:"a" validate:"required,assetid"`
	B          string  `json:"b" validate:"required,assetid,nefield=A"`
	Material   string  `json:"material" validate:"required"`
	DiameterMM float64 `json:"diameter_mm" validate:"gt=0,finite"`
	LengthKM   float64 `json:"length_km" validate:"gt=0,finite"`
	Status     string  `json:"status,omitempty"`
}

// StatusRequest changes the status of a node or segment
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ReachableResponse lists what a node reaches and what closing it would cut off
type ReachableResponse struct {
	NodeID    network.NodeID   `json:"node_id"`
	Statuses  []string         `json:"statuses"`
	Reachable []network.NodeID `json:"reachable"`
	Isolated  []network.NodeID `json:"isolated"`
	DMAs      []dma.ID         `json:"dmas"`
}

// DMARequest creates a district metered area
type DMARequest struct {
	ID          string   `json:"id" validate:"required,assetid"`
	Nodes       []string `json:"nodes" validate:"omitempty,dive,assetid"`
	TargetNRW   float64  `json:"target_nrw" validate:"gte=0,lte=100,finite"`
	Connections int      `json:"connections" validate:"gte=0"`
}

// DMAUpdateRequest changes a zone's target or connection count
type DMAUpdateRequest struct {
	TargetNRW   *float64 `json:"target_nrw,omitempty" validate:"omitempty,gte=0,lte=100,finite"`
	Connections *int     `json:"connections,omitempty" validate:"omitempty,gte=0"`
}

// MembersRequest moves nodes into or out of a zone. Nodes in Add already
// owned by another zone are reassigned.
type MembersRequest struct {
	Add    []string `json:"add,omitempty" validate:"omitempty,dive,assetid"`
	Remove []string `json:"remove,omitempty" validate:"omitempty,dive,assetid"`
}

// ZoneNRWResponse is the NRW history of one zone
type ZoneNRWResponse struct {
	ID                dma.ID       `json:"id"`
	TargetNRW         float64      `json:"target_nrw"`
	NRW               *float64     `json:"nrw,omitempty"`
	RollingNRW7d      *float64     `json:"rolling_nrw_7d,omitempty"`
	RebaselinePending bool         `json:"rebaseline_pending"`
	Periods           []nrw.Period `json:"periods"`
}

// ReadingRequest is one sensor sample
type ReadingRequest struct {
	SensorID  string    `json:"sensor_id" validate:"required,assetid"`
	Value     float64   `json:"value" validate:"finite"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ReadingsRequest is a batch of sensor samples
type ReadingsRequest struct {
	Readings []ReadingRequest `json:"readings" validate:"required,dive"`
}

// VolumeRequest is one supplied/billed volume pair for a zone, in m³
type VolumeRequest struct {
	DMA       string    `json:"dma" validate:"required,assetid"`
	Supplied  float64   `json:"supplied_m3" validate:"gte=0,finite"`
	Billed    float64   `json:"billed_m3" validate:"gte=0,finite"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// VolumesRequest is a batch of volume records
type VolumesRequest struct {
	Volumes []VolumeRequest `json:"volumes" validate:"required,dive"`
}

// IngestRejection reports one batch item that was not queued
type IngestRejection struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IngestResponse summarises a batch submission
type IngestResponse struct {
	Accepted int               `json:"accepted"`
	Rejected []IngestRejection `json:"rejected,omitempty"`
}

// ActorRequest carries the operator performing an action
type ActorRequest struct {
	Actor string `json:"actor" validate:"required,max=128"`
}

// LeakRequest reports a suspected leak
type LeakRequest struct {
	NodeID      string `json:"node_id,omitempty" validate:"omitempty,assetid"`
	SegmentID   string `json:"segment_id,omitempty" validate:"omitempty,assetid"`
	Description string `json:"description" validate:"max=2000"`
	Severity    string `json:"severity,omitempty"`
}

// AdvanceRequest moves a case to its next status. Expected, when set, must
// match the current status.
type AdvanceRequest struct {
	Expected string `json:"expected,omitempty"`
	To       string `json:"to" validate:"required"`
	Actor    string `json:"actor" validate:"required,max=128"`
}

// ResolveRequest closes a case under repair
type ResolveRequest struct {
	RepairedAt time.Time `json:"repaired_at" validate:"required"`
	RootCause  string    `json:"root_cause" validate:"required,max=2000"`
	PartsUsed  []string  `json:"parts_used,omitempty"`
	Actor      string    `json:"actor" validate:"required,max=128"`
}

// ReopenRequest opens a follow-up case on a closed one
type ReopenRequest struct {
	Description string `json:"description" validate:"max=2000"`
	Actor       string `json:"actor" validate:"required,max=128"`
}

// CreatedResponse returns the id of a created entity
type CreatedResponse struct {
	ID string `json:"id"`
}

// AlertsResponse is a filtered alert listing
type AlertsResponse struct {
	Alerts []alerts.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
