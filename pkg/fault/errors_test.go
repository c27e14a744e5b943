package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "with entity and id",
			err:      &Error{Op: "AddNode", Entity: "node", ID: "R1", Cause: ErrDuplicateID},
			expected: "AddNode node R1: duplicate id",
		},
		{
			name:     "with transition",
			err:      &Error{Op: "Advance", Entity: "case", ID: "c-1", From: "Resolved", To: "UnderRepair", Cause: ErrInvalidTransition},
			expected: "Advance case c-1 (Resolved -> UnderRepair): invalid transition",
		},
		{
			name:     "with context",
			err:      &Error{Op: "SubmitReading", Context: "depth 10", Cause: ErrQueueSaturated},
			expected: "SubmitReading (depth 10): queue saturated",
		},
		{
			name:     "minimal",
			err:      &Error{Op: "Sweep", Cause: ErrIntegrityViolation},
			expected: "Sweep: data integrity violation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_IsAndUnwrap(t *testing.T) {
	err := New("AddEdge").Edge("P1").Cause(ErrSelfLoop).Err()

	if !errors.Is(err, ErrSelfLoop) {
		t.Error("expected errors.Is to match ErrSelfLoop")
	}
	if errors.Is(err, ErrUnknownNode) {
		t.Error("expected errors.Is not to match ErrUnknownNode")
	}

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatal("expected errors.As to find *Error")
	}
	if fe.Unwrap() != ErrSelfLoop {
		t.Errorf("Unwrap() = %v, want %v", fe.Unwrap(), ErrSelfLoop)
	}
	if fe.Entity != "edge" || fe.ID != "P1" {
		t.Errorf("unexpected entity %q id %q", fe.Entity, fe.ID)
	}
}

func TestBuilder_Context(t *testing.T) {
	err := New("Rollup").DMA("Zone-A").Context("budget %s", "5s").Cause(ErrRollupDeadlineExceeded).Build()
	if err.Context != "budget 5s" {
		t.Errorf("Context = %q", err.Context)
	}
	if err.Kind() != KindResourceExhausted {
		t.Errorf("Kind() = %v, want ResourceExhausted", err.Kind())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{New("x").Cause(ErrUnknownNode).Err(), KindValidation},
		{New("x").Cause(ErrNodeAlreadyAssigned).Err(), KindStateConflict},
		{New("x").Cause(ErrQueueSaturated).Err(), KindResourceExhausted},
		{New("x").Cause(ErrIntegrityViolation).Err(), KindDataIntegrity},
		{fmt.Errorf("wrapped: %w", ErrInvalidTransition), KindStateConflict},
		{errors.New("other"), KindUnknown},
		{nil, KindUnknown},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !IsValidation(New("x").Cause(ErrSelfLoop).Err()) {
		t.Error("SelfLoop should be a validation error")
	}
	if !IsStateConflict(New("x").Cause(ErrNotInRepair).Err()) {
		t.Error("NotInRepair should be a state conflict")
	}
	if !IsResourceExhausted(New("x").Cause(ErrRollupDeadlineExceeded).Err()) {
		t.Error("RollupDeadlineExceeded should be resource exhausted")
	}
	if !IsIntegrity(New("x").Cause(ErrIntegrityViolation).Err()) {
		t.Error("IntegrityViolation should be a data integrity violation")
	}
	if !IsNotFound(New("x").Cause(ErrUnknownCase).Err()) {
		t.Error("UnknownCase should be not found")
	}
	if IsNotFound(New("x").Cause(ErrSelfLoop).Err()) {
		t.Error("SelfLoop is not a not-found error")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New("x").Cause(ErrQueueSaturated).Err()) {
		t.Error("QueueSaturated should be retryable")
	}
	if !Retryable(New("x").Cause(ErrConcurrentModification).Err()) {
		t.Error("ConcurrentModification should be retryable")
	}
	if Retryable(New("x").Cause(ErrInvalidTransition).Err()) {
		t.Error("InvalidTransition should not be retryable")
	}
}

func TestKindString(t *testing.T) {
	if KindDataIntegrity.String() != "DataIntegrityViolation" {
		t.Errorf("String() = %q", KindDataIntegrity.String())
	}
	if KindUnknown.String() != "Unknown" {
		t.Errorf("String() = %q", KindUnknown.String())
	}
}
