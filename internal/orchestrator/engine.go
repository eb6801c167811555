// Package orchestrator implements the Parent Orchestrator (C4, §4.4): a
// read-only aggregator that runs as the handler for parent jobs. It never
// re-enqueues children and never mutates stepResults — generalized from the
// teacher's internal/jobs/orchestrator engine/state stage-machine, narrowed
// from its SQL-polling child-job model down to one pass over the Redis
// getChildrenValues/getChildrenStatus view.
package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/queue"
)

// Backend is the subset of queue.Backend the orchestrator reads, plus the
// all-statuses extension (GetChildrenStatus) it needs beyond
// GetChildrenValues's completed-only view to compute the failed set (§4.4
// step 3).
type Backend interface {
	queue.Backend
	GetChildrenStatus(ctx context.Context, parentJobID string) (map[string]queue.ChildStatus, error)
}

// Mirror is the Task Mirror's orchestrator-facing surface (§4.7); the
// engine only ever calls SetTerminal — running/progress writes are the Step
// Worker's concern.
type Mirror interface {
	SetTerminal(ctx context.Context, taskID, status string, result map[string]any, errorLog string) error
}

type Engine struct {
	Queue  Backend
	Mirror Mirror
}

func New(q Backend, m Mirror) *Engine {
	return &Engine{Queue: q, Mirror: m}
}

// HandleParent implements §4.4 steps 2-6. By the time a worker claims the
// parent job, step 1 (all children terminal) already holds: the backend's
// ready-rule only pushes the parent onto its queue once every child id in
// parentDeps has acked (§4.1).
func (e *Engine) HandleParent(ctx context.Context, job *queue.Job) error {
	completed, err := e.Queue.GetChildrenValues(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("read children values: %w", err)
	}
	statuses, err := e.Queue.GetChildrenStatus(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("read children status: %w", err)
	}

	failed := failedStepKinds(statuses)

	var terminalErr error
	if len(failed) == 0 {
		result := Aggregate(completed)
		terminalErr = e.Mirror.SetTerminal(ctx, job.TaskID, domain.TaskStatusSucceeded, result, "")
	} else {
		result := Aggregate(completed) // partial outputs of completed children, preserved not discarded (§4.4 step 5)
		terminalErr = e.Mirror.SetTerminal(ctx, job.TaskID, domain.TaskStatusFailed, result, errorLogFor(failed, statuses))
	}
	if terminalErr != nil {
		return fmt.Errorf("set terminal: %w", terminalErr)
	}

	return e.Queue.Ack(ctx, job.ID, nil)
}

func failedStepKinds(statuses map[string]queue.ChildStatus) []string {
	out := make([]string, 0)
	for stepKind, st := range statuses {
		if st.Status == domain.StepFailed {
			out = append(out, stepKind)
		}
	}
	sort.Strings(out)
	return out
}

// errorLogFor concatenates step errors in a stable (sorted) order so
// errorLog is deterministic across runs with the same failure set.
func errorLogFor(failed []string, statuses map[string]queue.ChildStatus) string {
	msg := ""
	for i, stepKind := range failed {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s: %s", stepKind, statuses[stepKind].Error)
	}
	return msg
}
