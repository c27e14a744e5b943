package journal

import "fmt"

// OpType identifies a journaled control-plane operation
type OpType uint8

const (
	OpRegisterNode OpType = iota + 1
	OpRegisterEdge
	OpSetNodeStatus
	OpSetEdgeStatus
	OpCreateDMA
	OpAssignDMA
	OpUnassignDMA
	OpSetTarget
	OpSetConnections
	OpSetThreshold
)

var opNames = map[OpType]string{
	OpRegisterNode:   "register_node",
	OpRegisterEdge:   "register_edge",
	OpSetNodeStatus:  "set_node_status",
	OpSetEdgeStatus:  "set_edge_status",
	OpCreateDMA:      "create_dma",
	OpAssignDMA:      "assign_dma",
	OpUnassignDMA:    "unassign_dma",
	OpSetTarget:      "set_target",
	OpSetConnections: "set_connections",
	OpSetThreshold:   "set_threshold",
}

// String returns the operation name used in logs and metrics
func (o OpType) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Valid reports whether o is a known operation
func (o OpType) Valid() bool {
	_, ok := opNames[o]
	return ok
}

// Entry represents a single journal entry
type Entry struct {
	LSN       uint64 // Log Sequence Number
	OpType    OpType
	Data      []byte // payload, decompressed on read
	Checksum  uint32 // CRC32 of the bytes as stored
	Timestamp int64  // unix nanoseconds
}

// entry flags
const (
	flagSnappy uint8 = 1 << iota
)

// Stats summarizes journal activity since open
type Stats struct {
	LSN               uint64
	Appended          uint64
	BytesUncompressed uint64
	BytesStored       uint64
	CompressionRatio  float64 // e.g., 0.75 = 75% saved
	SizeBytes         int64
}

// Appender is implemented by journals that accept new entries
type Appender interface {
	Append(op OpType, data []byte) (uint64, error)
}

// Replayer is implemented by journals that can feed their entries back
type Replayer interface {
	Replay(handler func(*Entry) error) error
}
