// Package enqueuer implements the Task Enqueuer (C6, §4.6): a polling loop
// that promotes queued tasks into FlowPlans on the queue backend. No
// teacher analog runs a polling loop over an external persistence store
// directly (the teacher dispatches off its own DB's job_run rows via
// triggers/goroutines); this generalizes the same ClaimNextRunnable-style
// conditional-claim idiom (internal/repos/job_run.go) into a standalone
// poll cycle against the store.TaskStore boundary.
package enqueuer

import (
	"context"
	"errors"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/flow"
	"github.com/flowforge/mediaflow/internal/platform/logger"
	"github.com/flowforge/mediaflow/internal/store"
)

const (
	defaultPollInterval = 5 * time.Second
	minPollInterval     = 1 * time.Second
	maxPollInterval     = 60 * time.Second
	defaultBatchSize    = 25

	// poolFanout controls how many extra candidates beyond batchSize are
	// pulled per poll so the workspace-fair round-robin (§4.6) has more than
	// one workspace to rotate across; a pure batchSize-sized pull degenerates
	// to oldest-first whenever one workspace produced the whole page.
	poolFanout = 8
)

// FlowBuilder is flow.Builder's enqueuer-facing surface.
type FlowBuilder interface {
	BuildFlow(task *domain.Task) (domain.FlowPlan, error)
}

// Submitter is the queue.Backend surface the enqueuer needs.
type Submitter interface {
	SubmitFlow(ctx context.Context, plan domain.FlowPlan) (string, error)
}

// Config holds the tunables named in §4.6, clamped to the documented
// ranges at construction time.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollInterval < minPollInterval {
		c.PollInterval = minPollInterval
	}
	if c.PollInterval > maxPollInterval {
		c.PollInterval = maxPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

type Enqueuer struct {
	Store  store.TaskStore
	Build  FlowBuilder
	Submit Submitter
	Log    *logger.Logger
	cfg    Config
}

func New(s store.TaskStore, build FlowBuilder, submit Submitter, log *logger.Logger, cfg Config) *Enqueuer {
	return &Enqueuer{
		Store:  s,
		Build:  build,
		Submit: submit,
		Log:    log.With("service", "TaskEnqueuer"),
		cfg:    cfg.normalized(),
	}
}

// Run ticks every cfg.PollInterval until ctx is done.
func (e *Enqueuer) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

// poll implements one cycle of §4.6: list queued tasks, apply the
// workspace-fair round-robin, then drive each selected task through
// claim -> build -> validate -> submit.
func (e *Enqueuer) poll(ctx context.Context) {
	tasks, err := e.Store.ListQueued(ctx, e.cfg.BatchSize*poolFanout)
	if err != nil {
		e.Log.Warn("listQueued failed", "error", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	for _, t := range fairRotate(tasks, e.cfg.BatchSize) {
		e.processOne(ctx, t)
	}
}

func (e *Enqueuer) processOne(ctx context.Context, t domain.Task) {
	log := e.Log.With("taskId", t.ID, "taskKind", t.Kind, "workspaceId", t.WorkspaceID)

	ok, err := e.Store.ClaimQueued(ctx, t.ID)
	if err != nil {
		log.Warn("claimQueued failed", "error", err)
		return
	}
	if !ok {
		return // lost the race to another enqueuer instance
	}

	plan, err := e.Build.BuildFlow(&t)
	if err == nil {
		err = flow.Validate(plan)
	}
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTaskKind) || errors.Is(err, domain.ErrMalformedPayload) || errors.Is(err, domain.ErrMalformedPlan) {
			e.failTask(ctx, t.ID, err, log)
			return
		}
		// an unclassified build error is treated as fatal to this task
		// rather than retried forever against an unchanging payload.
		e.failTask(ctx, t.ID, err, log)
		return
	}

	parentJobID, err := e.Submit.SubmitFlow(ctx, plan)
	if err != nil {
		if domain.IsRetryable(err) {
			log.Warn("submitFlow backend unavailable, reverting to queued", "error", err)
			if revertErr := e.Store.Update(ctx, t.ID, store.TaskUpdate{Status: domain.TaskStatusQueued}); revertErr != nil {
				log.Error("revert to queued failed", "error", revertErr)
			}
			return
		}
		e.failTask(ctx, t.ID, err, log)
		return
	}

	if err := e.Store.Update(ctx, t.ID, store.TaskUpdate{ParentJobID: &parentJobID}); err != nil {
		log.Error("persisting parentJobId failed", "parentJobId", parentJobID, "error", err)
	}
}

func (e *Enqueuer) failTask(ctx context.Context, taskID string, cause error, log *logger.Logger) {
	msg := cause.Error()
	if err := e.Store.Update(ctx, taskID, store.TaskUpdate{Status: domain.TaskStatusFailed, ErrorLog: &msg}); err != nil {
		log.Error("marking task failed after build error also failed", "cause", cause, "error", err)
	}
}

// fairRotate buckets tasks by workspace (preserving each bucket's relative
// order, which ListQueued already returns oldest-first) and then
// round-robins across buckets, so a single workspace can occupy at most one
// slot per rotation pass (§5: "no single workspace monopolizes ... for more
// than one batch slot per cycle").
func fairRotate(tasks []domain.Task, limit int) []domain.Task {
	buckets := make(map[string][]domain.Task, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, seen := buckets[t.WorkspaceID]; !seen {
			order = append(order, t.WorkspaceID)
		}
		buckets[t.WorkspaceID] = append(buckets[t.WorkspaceID], t)
	}

	out := make([]domain.Task, 0, limit)
	for len(out) < limit {
		progressed := false
		for _, ws := range order {
			if len(buckets[ws]) == 0 {
				continue
			}
			out = append(out, buckets[ws][0])
			buckets[ws] = buckets[ws][1:]
			progressed = true
			if len(out) == limit {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}
