package network

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
)

// NodeID identifies a network node. IDs are assigned by the caller.
type NodeID string

// EdgeID identifies a pipeline segment.
type EdgeID string

// NodeKind is the tag of the NodeAttrs variant.
type NodeKind string

const (
	KindReservoir NodeKind = "Reservoir"
	KindValve     NodeKind = "Valve"
	KindSensor    NodeKind = "Sensor"
)

// NodeStatus is the operating status of a node
type NodeStatus string

const (
	NodeOperational NodeStatus = "Operational"
	NodeMaintenance NodeStatus = "Maintenance"
	NodeFaulty      NodeStatus = "Faulty"
	NodeClosed      NodeStatus = "Closed"
)

// Valid reports whether s is a known node status
func (s NodeStatus) Valid() bool {
	switch s {
	case NodeOperational, NodeMaintenance, NodeFaulty, NodeClosed:
		return true
	}
	return false
}

// EdgeStatus is the operating status of a pipeline segment
type EdgeStatus string

const (
	EdgeActive         EdgeStatus = "Active"
	EdgeUnderRepair    EdgeStatus = "UnderRepair"
	EdgeDecommissioned EdgeStatus = "Decommissioned"
)

// Valid reports whether s is a known segment status
func (s EdgeStatus) Valid() bool {
	switch s {
	case EdgeActive, EdgeUnderRepair, EdgeDecommissioned:
		return true
	}
	return false
}

// Material is the pipe material of a segment
type Material string

const (
	MaterialPVC         Material = "PVC"
	MaterialHDPE        Material = "HDPE"
	MaterialDuctileIron Material = "DuctileIron"
	MaterialCastIron    Material = "CastIron"
	MaterialSteel       Material = "Steel"
	MaterialConcrete    Material = "Concrete"
	MaterialAsbestos    Material = "AsbestosCement"
)

var materials = map[Material]struct{}{
	MaterialPVC: {}, MaterialHDPE: {}, MaterialDuctileIron: {}, MaterialCastIron: {},
	MaterialSteel: {}, MaterialConcrete: {}, MaterialAsbestos: {},
}

// ValveType describes valve construction
type ValveType string

const (
	ValveGate      ValveType = "Gate"
	ValveButterfly ValveType = "Butterfly"
	ValveCheck     ValveType = "Check"
	ValvePRV       ValveType = "PressureReducing"
	ValveBall      ValveType = "Ball"
)

// Measure is the physical quantity a sensor reports
type Measure string

const (
	MeasurePressure Measure = "pressure"
	MeasureFlow     Measure = "flow"
	MeasureLevel    Measure = "level"
	MeasureQuality  Measure = "quality"
)

// Point is a WGS84 coordinate. It is carried for display only.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NodeAttrs is the kind-specific part of a node. The set of
// implementations is closed: ReservoirAttrs, ValveAttrs, SensorAttrs.
type NodeAttrs interface {
	Kind() NodeKind
	validate() error
}

// ReservoirAttrs holds reservoir attributes
type ReservoirAttrs struct {
	CapacityM3 float64 `json:"capacity_m3"`
}

// ValveAttrs holds valve attributes
type ValveAttrs struct {
	DiameterMM float64   `json:"diameter_mm"`
	ValveType  ValveType `json:"valve_type"`
}

// SensorAttrs holds sensor attributes. SegmentID links the sensor to the
// pipeline segment it monitors and may name a segment registered later.
type SensorAttrs struct {
	Measure   Measure `json:"measure"`
	Unit      string  `json:"unit"`
	SegmentID EdgeID  `json:"segment_id,omitempty"`
}

func (ReservoirAttrs) Kind() NodeKind { return KindReservoir }
func (ValveAttrs) Kind() NodeKind     { return KindValve }
func (SensorAttrs) Kind() NodeKind    { return KindSensor }

func (a ReservoirAttrs) validate() error {
	if !positive(a.CapacityM3) {
		return fmt.Errorf("reservoir capacity must be positive, got %v", a.CapacityM3)
	}
	return nil
}

func (a ValveAttrs) validate() error {
	if !positive(a.DiameterMM) {
		return fmt.Errorf("valve diameter must be positive, got %v", a.DiameterMM)
	}
	switch a.ValveType {
	case ValveGate, ValveButterfly, ValveCheck, ValvePRV, ValveBall:
		return nil
	}
	return fmt.Errorf("unknown valve type %q", a.ValveType)
}

func (a SensorAttrs) validate() error {
	switch a.Measure {
	case MeasurePressure, MeasureFlow, MeasureLevel, MeasureQuality:
	default:
		return fmt.Errorf("unknown sensor measure %q", a.Measure)
	}
	if a.Unit == "" {
		return fmt.Errorf("sensor unit is required")
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Node is a registered network asset
type Node struct {
	ID        NodeID
	Attrs     NodeAttrs
	Location  Point
	Status    NodeStatus
	CreatedAt time.Time
}

// Kind returns the node kind tag
func (n Node) Kind() NodeKind {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs.Kind()
}

// Sensor returns the sensor attributes when the node is a sensor
func (n Node) Sensor() (SensorAttrs, bool) {
	s, ok := n.Attrs.(SensorAttrs)
	return s, ok
}

// nodeJSON is the wire shape of a Node. Exactly one attribute block is set.
type nodeJSON struct {
	ID        NodeID          `json:"id"`
	Kind      NodeKind        `json:"kind"`
	Reservoir *ReservoirAttrs `json:"reservoir,omitempty"`
	Valve     *ValveAttrs     `json:"valve,omitempty"`
	Sensor    *SensorAttrs    `json:"sensor,omitempty"`
	Location  Point           `json:"location"`
	Status    NodeStatus      `json:"status"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

// MarshalJSON encodes the tagged variant
func (n Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		ID:        n.ID,
		Kind:      n.Kind(),
		Location:  n.Location,
		Status:    n.Status,
		CreatedAt: n.CreatedAt,
	}
	switch a := n.Attrs.(type) {
	case ReservoirAttrs:
		out.Reservoir = &a
	case ValveAttrs:
		out.Valve = &a
	case SensorAttrs:
		out.Sensor = &a
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged variant
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	attrs, err := attrsFor(in)
	if err != nil {
		return err
	}
	*n = Node{
		ID:        in.ID,
		Attrs:     attrs,
		Location:  in.Location,
		Status:    in.Status,
		CreatedAt: in.CreatedAt,
	}
	return nil
}

func attrsFor(in nodeJSON) (NodeAttrs, error) {
	switch in.Kind {
	case KindReservoir:
		if in.Reservoir == nil {
			return nil, fmt.Errorf("reservoir attributes missing")
		}
		return *in.Reservoir, nil
	case KindValve:
		if in.Valve == nil {
			return nil, fmt.Errorf("valve attributes missing")
		}
		return *in.Valve, nil
	case KindSensor:
		if in.Sensor == nil {
			return nil, fmt.Errorf("sensor attributes missing")
		}
		return *in.Sensor, nil
	}
	return nil, fmt.Errorf("unknown node kind %q", in.Kind)
}

// SegmentAttrs are the caller-supplied attributes of a pipeline segment
type SegmentAttrs struct {
	Material   Material   `json:"material"`
	DiameterMM float64    `json:"diameter_mm"`
	LengthKM   float64    `json:"length_km"`
	Status     EdgeStatus `json:"status,omitempty"`
}

func (a SegmentAttrs) validate() error {
	if _, ok := materials[a.Material]; !ok {
		return fmt.Errorf("unknown material %q", a.Material)
	}
	if !positive(a.DiameterMM) {
		return fmt.Errorf("diameter must be positive, got %v", a.DiameterMM)
	}
	if !positive(a.LengthKM) {
		return fmt.Errorf("length must be positive, got %v", a.LengthKM)
	}
	if a.Status != "" && !a.Status.Valid() {
		return fmt.Errorf("unknown segment status %q", a.Status)
	}
	return nil
}

// Segment is a pipeline segment joining exactly two nodes
type Segment struct {
	ID EdgeID `json:"id"`
	A  NodeID `json:"a"`
	B  NodeID `json:"b"`
	SegmentAttrs
}

// Other returns the endpoint opposite n
func (s Segment) Other(n NodeID) NodeID {
	if s.A == n {
		return s.B
	}
	return s.A
}

// Touches reports whether n is an endpoint of the segment
func (s Segment) Touches(n NodeID) bool {
	return s.A == n || s.B == n
}

// Stats summarises the graph
type Stats struct {
	Nodes          int                `json:"nodes"`
	Edges          int                `json:"edges"`
	NodesByKind    map[NodeKind]int   `json:"nodes_by_kind"`
	EdgesByStatus  map[EdgeStatus]int `json:"edges_by_status"`
	NodesByStatus  map[NodeStatus]int `json:"nodes_by_status"`
	LastMutationAt time.Time          `json:"last_mutation_at"`
}

// ValidateNode checks a node's attributes without registering it
func ValidateNode(n Node) error {
	if n.ID == "" {
		return fault.New("AddNode").Cause(fault.ErrInvalidValue).Context("empty id").Err()
	}
	if n.Attrs == nil {
		return fault.New("AddNode").Node(string(n.ID)).Cause(fault.ErrInvalidValue).Context("missing attributes").Err()
	}
	if err := n.Attrs.validate(); err != nil {
		return fault.New("AddNode").Node(string(n.ID)).Cause(fault.ErrInvalidValue).Context("%v", err).Err()
	}
	if n.Status != "" && !n.Status.Valid() {
		return fault.New("AddNode").Node(string(n.ID)).Cause(fault.ErrInvalidStatus).Context("%s", n.Status).Err()
	}
	return nil
}
