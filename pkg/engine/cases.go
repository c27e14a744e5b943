package engine

import (
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
)

// ReportLeak opens a case from a field or customer report
func (e *Engine) ReportLeak(loc leaks.Location, description string, severity alerts.Severity) (string, error) {
	return e.leaks.Create(leaks.Report{
		Location:    loc,
		Severity:    severity,
		Description: description,
		Source:      leaks.SourceReport,
	})
}

// AcknowledgeAlert acknowledges an alert on behalf of an operator
func (e *Engine) AcknowledgeAlert(id, actor string) (alerts.Alert, error) {
	return e.alerts.Acknowledge(id, actor, e.now())
}

// AdvanceCase moves a leak case to its next status. A non-zero expected
// status guards against acting on a stale read.
func (e *Engine) AdvanceCase(id string, expected, next leaks.Status, actor string) (leaks.Case, error) {
	if expected != 0 {
		return e.leaks.AdvanceFrom(id, expected, next, actor, e.now())
	}
	return e.leaks.Advance(id, next, actor, e.now())
}

// ResolveCase closes a case under repair with its repair details
func (e *Engine) ResolveCase(id string, repairedAt time.Time, rootCause string, parts []string, actor string) (leaks.Case, error) {
	return e.leaks.Resolve(id, leaks.Repair{
		RepairedAt: repairedAt,
		RootCause:  rootCause,
		PartsUsed:  parts,
		Actor:      actor,
	})
}

// AcknowledgeCase records that an operator has seen a case
func (e *Engine) AcknowledgeCase(id, actor string) (leaks.Case, error) {
	return e.leaks.Acknowledge(id, actor, e.now())
}

// ReopenCase opens a follow-up case linked to a closed one
func (e *Engine) ReopenCase(id, description, actor string) (string, error) {
	return e.leaks.Reopen(id, description, actor)
}

// ResumeRebalancing clears an integrity halt after operator review
func (e *Engine) ResumeRebalancing(actor string) {
	e.zones.ResumeRebalancing(actor)
}
