// Package worker implements the Step Worker (C5, §4.5): the per-queue claim
// loop that resolves a step job's inputs, invokes its handler, and reports
// the result back to the backend. Generalized from the teacher's
// internal/jobs/runtime dispatch loop, narrowed to the five-step contract
// spec.md §4.5 enumerates (memoize, resolve, invoke, ack, nack-and-cascade).
//
// A worker also doubles as the transport for parent jobs: a "parent" job
// claimed off a queue is routed to the Parent Orchestrator instead of the
// step dispatcher, since parent and step jobs share the same ready queue
// (the parent rides its first child's queue, §4.1).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/platform/logger"
	"github.com/flowforge/mediaflow/internal/queue"
	"github.com/flowforge/mediaflow/internal/steps"
)

// ParentHandler is the Parent Orchestrator's worker-facing surface.
type ParentHandler interface {
	HandleParent(ctx context.Context, job *queue.Job) error
}

// ProgressMirror is the Task Mirror's worker-facing surface (§4.7): the
// worker calls SetRunning once per task and forwards progress
// opportunistically as steps report it.
type ProgressMirror interface {
	SetRunning(ctx context.Context, taskID string) error
	SetProgress(ctx context.Context, taskID, currentStep string, currentStepProgress float64)
}

// TaskLookup is the narrow read the worker needs to honor the cancellation
// boundary (§5 "Cancellation & timeouts") without depending on the full
// store.TaskStore surface.
type TaskLookup interface {
	Get(ctx context.Context, taskID string) (domain.Task, error)
}

// Worker drains one queue, dispatching parent jobs to Orchestrator and step
// jobs through Steps.
type Worker struct {
	Queue        queue.Backend
	Steps        *steps.Registry
	Orchestrator ParentHandler
	Mirror       ProgressMirror
	Tasks        TaskLookup
	Log          *logger.Logger
}

func New(q queue.Backend, reg *steps.Registry, orch ParentHandler, m ProgressMirror, tasks TaskLookup, log *logger.Logger) *Worker {
	return &Worker{
		Queue:        q,
		Steps:        reg,
		Orchestrator: orch,
		Mirror:       m,
		Tasks:        tasks,
		Log:          log.With("service", "StepWorker"),
	}
}

// Run claims from queueName until ctx is cancelled. Intended to be run in
// its own goroutine, one per (queue, pool-slot) pair — §5's "configurable
// worker pool per queue".
func (w *Worker) Run(ctx context.Context, queueName string) error {
	log := w.Log.With("queue", queueName)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := w.Queue.Claim(ctx, queueName)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Warn("claim failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}

		if job.Kind == "parent" {
			if err := w.Orchestrator.HandleParent(ctx, job); err != nil {
				log.Error("handle parent failed", "jobId", job.ID, "error", err)
			}
			continue
		}

		w.handleStep(ctx, job, log)
	}
}

// handleStep implements §4.5 steps 1-5.
func (w *Worker) handleStep(ctx context.Context, job *queue.Job, log *logger.Logger) {
	log = log.With("jobId", job.ID, "stepKind", job.Kind, "taskId", job.TaskID)

	if w.Tasks != nil {
		if t, err := w.Tasks.Get(ctx, job.TaskID); err == nil && t.Status == domain.TaskStatusCancelled {
			now := time.Now()
			result := &domain.StepResult{StepKind: job.Kind, Status: domain.StepCancelled, StartedAt: &now, CompletedAt: &now}
			if err := w.Queue.Ack(ctx, job.ID, result); err != nil {
				log.Error("ack of cancelled step failed", "error", err)
			}
			return
		}
	}

	upstream, err := w.Queue.GetChildrenValues(ctx, job.ParentID)
	if err != nil {
		w.nack(ctx, job, fmt.Errorf("resolve upstream: %w", err), log)
		return
	}

	// step 1: retry fast-path — a prior attempt of this same step already
	// completed and was memoized before this claim was delivered.
	if sr, ok := upstream[job.Kind]; ok && sr.Status == domain.StepCompleted {
		srCopy := sr
		if err := w.Queue.Ack(ctx, job.ID, &srCopy); err != nil {
			log.Error("ack of memoized result failed", "error", err)
		}
		return
	}

	handler, err := w.Steps.Lookup(job.Kind)
	if err != nil {
		w.nack(ctx, job, err, log)
		return
	}

	input, err := jobDataToStepInput(job)
	if err != nil {
		w.nack(ctx, job, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err), log)
		return
	}

	if w.Mirror != nil {
		if err := w.Mirror.SetRunning(ctx, job.TaskID); err != nil {
			log.Warn("setRunning failed", "error", err)
		}
	}

	started := time.Now()
	stepCtx := steps.NewContext(ctx, job.ID, job.TaskID, job.WorkspaceID, job.Kind, job.Attempt+1, upstream, func(pct float64) {
		if err := w.Queue.UpdateProgress(ctx, job.ID, pct); err != nil {
			log.Warn("updateProgress failed", "error", err)
		}
		if w.Mirror != nil {
			w.Mirror.SetProgress(ctx, job.TaskID, job.Kind, pct)
		}
	})

	output, err := handler.Handle(stepCtx, input)
	if err != nil {
		w.nack(ctx, job, err, log)
		return
	}

	completed := time.Now()
	result := &domain.StepResult{
		StepKind:    job.Kind,
		Status:      domain.StepCompleted,
		Output:      output,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	if err := w.Queue.Ack(ctx, job.ID, result); err != nil {
		log.Error("ack failed", "error", err)
	}
}

// nack classifies err (§7): a handler-permanent error (IsRetryable false)
// is flagged terminal so the backend skips its attempt budget and fails
// the job after this one attempt instead of retrying it up to the step's
// configured max attempts.
func (w *Worker) nack(ctx context.Context, job *queue.Job, err error, log *logger.Logger) {
	terminal := !domain.IsRetryable(err)
	log.Warn("step failed", "retryable", !terminal, "error", err)
	if nackErr := w.Queue.Nack(ctx, job.ID, err, terminal); nackErr != nil {
		log.Error("nack failed", "error", nackErr)
	}
}

// jobDataToStepInput round-trips the job's wire-format Data map back into a
// typed StepInput (the inverse of queue.stepInputToMap).
func jobDataToStepInput(job *queue.Job) (domain.StepInput, error) {
	var in domain.StepInput
	if job.Data == nil {
		return in, nil
	}
	buf, err := json.Marshal(job.Data)
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(buf, &in); err != nil {
		return in, err
	}
	return in, nil
}
