// Package steps implements the Step Registry & Dispatcher (C3): a static
// mapping (taskKind, stepKind) -> StepHandler, plus real handler bodies for
// every step kind named in SPEC_FULL.md.
package steps

import (
	"context"

	"github.com/flowforge/mediaflow/internal/domain"
)

// Context is the capability surface a StepHandler is given (§4.3): identity,
// attempt number, progress reporting, and access to completed upstream
// outputs. Generalized from the teacher's runtime.Context.
type Context struct {
	context.Context

	JobID         string
	TaskID        string
	WorkspaceID   string
	StepKind      string
	AttemptNumber int

	// upstream holds the getChildrenValues view resolved by the worker
	// before handler invocation (§4.5 step 2).
	upstream map[string]domain.StepResult

	progressFn func(pct float64)
}

// NewContext builds a step Context. Progress clamps each value to [0,100]
// before calling progressFn; it does not drop values lower than the last
// one reported.
func NewContext(ctx context.Context, jobID, taskID, workspaceID, stepKind string, attempt int, upstream map[string]domain.StepResult, progressFn func(pct float64)) *Context {
	return &Context{
		Context:       ctx,
		JobID:         jobID,
		TaskID:        taskID,
		WorkspaceID:   workspaceID,
		StepKind:      stepKind,
		AttemptNumber: attempt,
		upstream:      upstream,
		progressFn:    progressFn,
	}
}

// Progress reports pct in [0,100] for the current step.
func (c *Context) Progress(pct float64) {
	if c.progressFn == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	c.progressFn(pct)
}

// Upstream returns the completed output of stepKind, or nil if it has not
// completed (or does not exist in this plan).
func (c *Context) Upstream(stepKind string) map[string]any {
	r, ok := c.upstream[stepKind]
	if !ok {
		return nil
	}
	return r.Output
}

// Handler is the capability every step kind implements (§4.3).
type Handler interface {
	Handle(ctx *Context, input domain.StepInput) (output map[string]any, err error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx *Context, input domain.StepInput) (map[string]any, error)

func (f HandlerFunc) Handle(ctx *Context, input domain.StepInput) (map[string]any, error) {
	return f(ctx, input)
}
