// Package outcome aggregates per-action execution results into a run summary.
package outcome

import (
	"github.com/felixgeelhaar/orgsync/pkg/domain/planning"
)

// Status is the terminal result of one action.
type Status string

const (
	StatusSucceeded               Status = "succeeded"
	StatusSkippedAlreadySatisfied Status = "skipped_already_satisfied"
	StatusFailed                  Status = "failed"
)

// DisplayName returns a human-readable display name for the status.
func (s Status) DisplayName() string {
	switch s {
	case StatusSucceeded:
		return "Succeeded"
	case StatusSkippedAlreadySatisfied:
		return "Skipped (already satisfied)"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// Detail strings for derived failures.
const (
	DetailBlockedPrefix = "blocked by dependency"
	DetailCancelled     = "cancelled before dispatch"
)

// ActionResult is the outcome of one planned action.
type ActionResult struct {
	Action   planning.Action `json:"action"`
	Status   Status          `json:"status"`
	Detail   string          `json:"detail,omitempty"`
	Attempts int             `json:"attempts"`
}

// Failure is one failed action as presented to the caller.
type Failure struct {
	ActionID string              `json:"action_id"`
	Kind     planning.ActionKind `json:"kind"`
	Target   string              `json:"target"`
	Detail   string              `json:"detail"`
}

// Summary groups results by status.
type Summary struct {
	Planned          int                         `json:"planned"`
	Succeeded        int                         `json:"succeeded"`
	Skipped          int                         `json:"skipped"`
	Failed           int                         `json:"failed"`
	AlreadySatisfied int                         `json:"already_satisfied"`
	Deferred         int                         `json:"deferred"`
	Failures         []Failure                   `json:"failures"`
	Deferrals        []planning.DeferredResource `json:"deferrals,omitempty"`
}

// FullyConverged reports whether no action failed.
func (s Summary) FullyConverged() bool {
	return s.Failed == 0
}

// Clean reports whether the run converged and nothing was left unobserved.
func (s Summary) Clean() bool {
	return s.FullyConverged() && s.Deferred == 0
}

// Summarize builds a Summary from execution results. plan may be nil, in
// which case planning-level counts are zero.
func Summarize(results []ActionResult, plan *planning.Plan) Summary {
	sum := Summary{
		Planned:  len(results),
		Failures: make([]Failure, 0),
	}

	if plan != nil {
		sum.AlreadySatisfied = len(plan.Satisfied)
		sum.Deferred = len(plan.Deferred)
		sum.Deferrals = plan.Deferred
		if len(results) == 0 {
			sum.Planned = len(plan.Actions)
		}
	}

	for _, r := range results {
		switch r.Status {
		case StatusSucceeded:
			sum.Succeeded++
		case StatusSkippedAlreadySatisfied:
			sum.Skipped++
		default:
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{
				ActionID: r.Action.ID,
				Kind:     r.Action.Kind,
				Target:   r.Action.Target(),
				Detail:   r.Detail,
			})
		}
	}

	return sum
}
