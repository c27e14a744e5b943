package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding whether to retry, surface or escalate.
type Kind uint8

const (
	// KindUnknown is used for causes that are not part of the taxonomy.
	KindUnknown Kind = iota
	// KindValidation marks malformed input; rejected synchronously, never partially applied.
	KindValidation
	// KindStateConflict marks an illegal transition or a conflicting assignment.
	KindStateConflict
	// KindResourceExhausted marks saturation or a blown time budget; retryable.
	KindResourceExhausted
	// KindDataIntegrity marks a broken invariant detected by a consistency sweep.
	KindDataIntegrity
)

// String returns the taxonomy name of the kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindStateConflict:
		return "StateConflict"
	case KindResourceExhausted:
		return "ResourceExhausted"
	case KindDataIntegrity:
		return "DataIntegrityViolation"
	default:
		return "Unknown"
	}
}

// Sentinel causes. Each maps to exactly one Kind.
var (
	ErrDuplicateID   = errors.New("duplicate id")
	ErrUnknownNode   = errors.New("unknown node")
	ErrUnknownEdge   = errors.New("unknown edge")
	ErrUnknownDMA    = errors.New("unknown dma")
	ErrUnknownSensor = errors.New("unknown sensor")
	ErrUnknownAlert  = errors.New("unknown alert")
	ErrUnknownCase   = errors.New("unknown leak case")
	ErrSelfLoop      = errors.New("self loop")
	ErrInvalidValue  = errors.New("invalid value")
	ErrInvalidStatus = errors.New("invalid status")
	ErrNoData        = errors.New("no data")
	ErrUnknownOp     = errors.New("unknown operation")

	ErrNodeAlreadyAssigned    = errors.New("node already assigned")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrNotInRepair            = errors.New("case not in repair")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrAlreadyAcknowledged    = errors.New("already acknowledged")
	ErrRebalancingHalted      = errors.New("rebalancing halted pending operator intervention")

	ErrQueueSaturated         = errors.New("queue saturated")
	ErrRollupDeadlineExceeded = errors.New("rollup deadline exceeded")
	ErrClosed                 = errors.New("engine closed")
	ErrNotReady               = errors.New("engine not ready")

	ErrIntegrityViolation = errors.New("data integrity violation")
)

var kinds = map[error]Kind{
	ErrDuplicateID:   KindValidation,
	ErrUnknownNode:   KindValidation,
	ErrUnknownEdge:   KindValidation,
	ErrUnknownDMA:    KindValidation,
	ErrUnknownSensor: KindValidation,
	ErrUnknownAlert:  KindValidation,
	ErrUnknownCase:   KindValidation,
	ErrSelfLoop:      KindValidation,
	ErrInvalidValue:  KindValidation,
	ErrInvalidStatus: KindValidation,
	ErrNoData:        KindValidation,
	ErrUnknownOp:     KindValidation,

	ErrNodeAlreadyAssigned:    KindStateConflict,
	ErrInvalidTransition:      KindStateConflict,
	ErrNotInRepair:            KindStateConflict,
	ErrConcurrentModification: KindStateConflict,
	ErrAlreadyAcknowledged:    KindStateConflict,
	ErrRebalancingHalted:      KindStateConflict,

	ErrQueueSaturated:         KindResourceExhausted,
	ErrRollupDeadlineExceeded: KindResourceExhausted,
	ErrClosed:                 KindResourceExhausted,
	ErrNotReady:               KindResourceExhausted,

	ErrIntegrityViolation: KindDataIntegrity,
}

// Error provides structured information for a failed engine operation.
type Error struct {
	Op      string // Operation that failed (e.g., "AddEdge", "Advance")
	Entity  string // Entity type (e.g., "node", "edge", "dma", "case")
	ID      string // Entity ID (if applicable)
	From    string // Current state, for state conflicts
	To      string // Attempted state, for state conflicts
	Context string // Additional context
	Cause   error  // Underlying sentinel or wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Op
	if e.Entity != "" {
		msg += " " + e.Entity
	}
	if e.ID != "" {
		msg += " " + e.ID
	}
	if e.From != "" || e.To != "" {
		msg += fmt.Sprintf(" (%s -> %s)", e.From, e.To)
	}
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error's cause.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

// Kind returns the taxonomy kind of the cause.
func (e *Error) Kind() Kind {
	return KindOf(e.Cause)
}

// Builder provides a fluent interface for building Errors.
type Builder struct {
	err Error
}

// New creates a new error builder for the given operation.
func New(op string) *Builder {
	return &Builder{err: Error{Op: op}}
}

// Node sets the entity to "node" with the given ID.
func (b *Builder) Node(id string) *Builder {
	return b.Entity("node", id)
}

// Edge sets the entity to "edge" with the given ID.
func (b *Builder) Edge(id string) *Builder {
	return b.Entity("edge", id)
}

// DMA sets the entity to "dma" with the given ID.
func (b *Builder) DMA(id string) *Builder {
	return b.Entity("dma", id)
}

// Case sets the entity to "case" with the given ID.
func (b *Builder) Case(id string) *Builder {
	return b.Entity("case", id)
}

// Alert sets the entity to "alert" with the given ID.
func (b *Builder) Alert(id string) *Builder {
	return b.Entity("alert", id)
}

// Entity sets an arbitrary entity type and ID.
func (b *Builder) Entity(entity, id string) *Builder {
	b.err.Entity = entity
	b.err.ID = id
	return b
}

// Transition records the current and attempted state.
func (b *Builder) Transition(from, to string) *Builder {
	b.err.From = from
	b.err.To = to
	return b
}

// Context sets additional context information.
func (b *Builder) Context(format string, args ...any) *Builder {
	b.err.Context = fmt.Sprintf(format, args...)
	return b
}

// Cause sets the underlying error cause.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Build returns the constructed Error.
func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// Err returns the error as an error interface.
func (b *Builder) Err() error {
	return b.Build()
}

// KindOf walks the error chain and returns the kind of the first known sentinel.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// IsValidation returns true if the error is a ValidationError.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsStateConflict returns true if the error is a StateConflict.
func IsStateConflict(err error) bool {
	return KindOf(err) == KindStateConflict
}

// IsResourceExhausted returns true if the error is ResourceExhausted.
func IsResourceExhausted(err error) bool {
	return KindOf(err) == KindResourceExhausted
}

// IsIntegrity returns true if the error is a DataIntegrityViolation.
func IsIntegrity(err error) bool {
	return KindOf(err) == KindDataIntegrity
}

// IsNotFound returns true if the error refers to an unknown entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownNode) ||
		errors.Is(err, ErrUnknownEdge) ||
		errors.Is(err, ErrUnknownDMA) ||
		errors.Is(err, ErrUnknownSensor) ||
		errors.Is(err, ErrUnknownAlert) ||
		errors.Is(err, ErrUnknownCase)
}

// Retryable reports whether a caller may retry the same input later.
// Concurrent modifications are retryable after re-reading current state.
func Retryable(err error) bool {
	return IsResourceExhausted(err) || errors.Is(err, ErrConcurrentModification)
}
