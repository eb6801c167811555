package domain

import "time"

/*
StepResult is the typed output + status of one completed (or failed) step,
memoized on the parent job for the retry fast-path (§3, §4.5). A completed
result is never overwritten: that invariant is the entire basis of retry
memoization (§7 propagation rule, §8 invariant 4).
*/
type StepResult struct {
	StepKind    string         `json:"stepKind"`
	Status      StepStatus     `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Valid enforces the StepResult invariants from §3: completed implies a
// non-nil output and no error; failed implies a non-empty error.
func (r StepResult) Valid() bool {
	switch r.Status {
	case StepCompleted:
		return r.Output != nil && r.Error == ""
	case StepFailed:
		return r.Error != ""
	default:
		return true
	}
}

// ParentState is the mapping persisted on the parent job by the queue
// backend (§3): stepKind -> StepResult. The set of completed entries grows
// monotonically across retries of child steps.
type ParentState struct {
	StepResults map[string]StepResult `json:"stepResults"`
}

func NewParentState() ParentState {
	return ParentState{StepResults: map[string]StepResult{}}
}

// Completed returns only the entries whose final status is completed,
// matching the contract of getChildrenValues in §4.1.
func (p ParentState) Completed() map[string]StepResult {
	out := map[string]StepResult{}
	for k, v := range p.StepResults {
		if v.Status == StepCompleted {
			out[k] = v
		}
	}
	return out
}

// Failed reports the set of step kinds whose terminal status is failed or
// cancelled-by-cascade (the engine represents cascade failure as a failed
// StepResult with a synthetic error, per §4.1's "dependents... transition
// to failed-by-cascade").
func (p ParentState) Failed() map[string]StepResult {
	out := map[string]StepResult{}
	for k, v := range p.StepResults {
		if v.Status == StepFailed {
			out[k] = v
		}
	}
	return out
}
