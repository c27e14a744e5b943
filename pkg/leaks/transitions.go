package leaks

import (
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// Advance moves a case to next. Only Open->UnderRepair, Open->Rejected and
// UnderRepair->Resolved are legal.
func (t *Tracker) Advance(id string, next Status, actor string, at time.Time) (Case, error) {
	return t.transition("Advance", id, 0, next, actor, at, nil)
}

// AdvanceFrom is Advance guarded by the status the caller last observed.
// It fails with ConcurrentModification when the case has moved on.
func (t *Tracker) AdvanceFrom(id string, expected, next Status, actor string, at time.Time) (Case, error) {
	return t.transition("AdvanceFrom", id, expected, next, actor, at, nil)
}

// Resolve closes a case that is under repair and records the repair details
func (t *Tracker) Resolve(id string, rep Repair) (Case, error) {
	rec, ok := t.get(id)
	if !ok {
		return Case{}, fault.New("Resolve").Case(id).Cause(fault.ErrUnknownCase).Err()
	}
	if _, s := unpack(rec.word.Load()); s != UnderRepair {
		return Case{}, fault.New("Resolve").Case(id).Transition(s.String(), Resolved.String()).Cause(fault.ErrNotInRepair).Err()
	}
	if rep.RepairedAt.IsZero() {
		rep.RepairedAt = t.now()
	}
	return t.transition("Resolve", id, UnderRepair, Resolved, rep.Actor, rep.RepairedAt, func(c *Case) {
		at := rep.RepairedAt
		c.RepairedAt = &at
		c.RootCause = rep.RootCause
		c.PartsUsed = append([]string(nil), rep.PartsUsed...)
	})
}

func (t *Tracker) transition(op, id string, expected, next Status, actor string, at time.Time, apply func(*Case)) (Case, error) {
	rec, ok := t.get(id)
	if !ok {
		return Case{}, fault.New(op).Case(id).Cause(fault.ErrUnknownCase).Err()
	}
	if at.IsZero() {
		at = t.now()
	}

	w := rec.word.Load()
	version, cur := unpack(w)
	if expected != 0 && cur != expected {
		t.conflict()
		return Case{}, fault.New(op).Case(id).Transition(cur.String(), next.String()).
			Cause(fault.ErrConcurrentModification).Context("expected %s", expected).Err()
	}
	if !CanTransition(cur, next) {
		return Case{}, fault.New(op).Case(id).Transition(cur.String(), next.String()).Cause(fault.ErrInvalidTransition).Err()
	}

	rec.mu.Lock()
	if !rec.word.CompareAndSwap(w, pack(version+1, next)) {
		rec.mu.Unlock()
		t.conflict()
		return Case{}, fault.New(op).Case(id).Transition(cur.String(), next.String()).Cause(fault.ErrConcurrentModification).Err()
	}
	rec.c.Status = next
	rec.c.Version = version + 1
	rec.c.History = append(rec.c.History, Transition{From: cur, To: next, Actor: actor, At: at})
	if next == Resolved && rec.c.RepairedAt == nil {
		ts := at
		rec.c.RepairedAt = &ts
	}
	if apply != nil {
		apply(&rec.c)
	}
	out := cloneCase(rec.c)
	rec.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordLeakTransition(cur.String(), next.String())
	}
	t.logger.Info("leak case status changed", logging.CaseID(id),
		logging.String("from", cur.String()), logging.String("to", next.String()), logging.String("actor", actor))
	t.notify(Change{Kind: ChangeTransition, From: cur, To: next, Case: out})
	return out, nil
}

func (t *Tracker) conflict() {
	if t.metrics != nil {
		t.metrics.LeakCASConflictsTotal.Inc()
	}
}

// Acknowledge records that an operator has seen the case. It bumps the
// version without changing status, so it races with Advance like any
// other write.
func (t *Tracker) Acknowledge(id, actor string, at time.Time) (Case, error) {
	rec, ok := t.get(id)
	if !ok {
		return Case{}, fault.New("Acknowledge").Case(id).Cause(fault.ErrUnknownCase).Err()
	}
	if at.IsZero() {
		at = t.now()
	}

	w := rec.word.Load()
	version, cur := unpack(w)
	if cur.Terminal() {
		return Case{}, fault.New("Acknowledge").Case(id).Transition(cur.String(), cur.String()).Cause(fault.ErrInvalidTransition).Err()
	}

	rec.mu.Lock()
	if rec.c.AcknowledgedAt != nil {
		rec.mu.Unlock()
		return Case{}, fault.New("Acknowledge").Case(id).Cause(fault.ErrAlreadyAcknowledged).Err()
	}
	if !rec.word.CompareAndSwap(w, pack(version+1, cur)) {
		rec.mu.Unlock()
		t.conflict()
		return Case{}, fault.New("Acknowledge").Case(id).Cause(fault.ErrConcurrentModification).Err()
	}
	rec.c.Version = version + 1
	rec.c.AcknowledgedBy = actor
	rec.c.AcknowledgedAt = &at
	out := cloneCase(rec.c)
	rec.mu.Unlock()

	t.logger.Info("leak case acknowledged", logging.CaseID(id), logging.String("actor", actor))
	t.notify(Change{Kind: ChangeAcknowledged, From: cur, To: cur, Case: out})
	return out, nil
}

// Reopen opens a new case referencing a resolved or rejected one
func (t *Tracker) Reopen(id, description, actor string) (string, error) {
	rec, ok := t.get(id)
	if !ok {
		return "", fault.New("Reopen").Case(id).Cause(fault.ErrUnknownCase).Err()
	}
	prev := rec.snapshot()
	if !prev.Status.Terminal() {
		return "", fault.New("Reopen").Case(id).Transition(prev.Status.String(), Open.String()).Cause(fault.ErrInvalidTransition).Err()
	}
	if description == "" {
		description = prev.Description
	}
	now := t.now()
	c := Case{
		ID:           newID(),
		Location:     prev.Location,
		PipelineID:   prev.PipelineID,
		Severity:     prev.Severity,
		Description:  description,
		Status:       Open,
		Source:       SourceReopen,
		DetectedAt:   now,
		ReopenedFrom: prev.ID,
		DMA:          prev.DMA,
		History:      []Transition{{To: Open, Actor: actor, At: now, Note: "reopened from " + prev.ID}},
	}
	return t.insert(c)
}
