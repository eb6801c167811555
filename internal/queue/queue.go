// Package queue implements the Queue Backend Adapter (§4.1): durable
// per-queue FIFO delivery with dependency-gated readiness, retry/backoff,
// and parent/child aggregation, backed by Redis.
package queue

import (
	"context"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
)

// Job is the wire envelope placed on the backend — the implementation-level
// type the distilled spec deliberately left opaque behind "durable FIFO
// queues" (SPEC_FULL §3's "Queue item envelope").
type Job struct {
	ID          string         `json:"id"`
	ParentID    string         `json:"parentId,omitempty"` // empty for a parent job
	Kind        string         `json:"kind"`               // "parent" or a stepKind
	QueueName   string         `json:"queueName"`
	TaskID      string         `json:"taskId"`
	WorkspaceID string         `json:"workspaceId"`
	Data        map[string]any `json:"data,omitempty"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"maxAttempts"`
	BackoffType string         `json:"backoffType"`
	DelayMs     int64          `json:"delayMs"`
	DependsOn   []string       `json:"dependsOn,omitempty"`
	EnqueuedAt  time.Time      `json:"enqueuedAt"`
}

// Counts is the per-queue introspection shape feeding the health endpoint
// (§4.9, §6).
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Backend is the Queue Backend Adapter contract (§4.1).
type Backend interface {
	// SubmitFlow atomically persists one parent job and its children with
	// declared dependency edges; returns the parent job id.
	SubmitFlow(ctx context.Context, plan domain.FlowPlan) (parentJobID string, err error)

	// Claim blocks until a ready job exists on queueName or ctx is done.
	Claim(ctx context.Context, queueName string) (*Job, error)

	// Ack marks jobID as completed with the given StepResult (for step
	// jobs) or with no result (for the parent, which has no StepResult of
	// its own).
	Ack(ctx context.Context, jobID string, result *domain.StepResult) error

	// Nack marks one failed attempt. When terminal is false, the backend
	// schedules a retry per the job's backoff policy unless attempts are
	// already exhausted; when terminal is true (a handler-permanent
	// error, §7) it skips the retry budget entirely and fails the job
	// after this single attempt. Either way, once the job is exhausted
	// it is marked permanently failed and its dependents cascade.
	Nack(ctx context.Context, jobID string, handlerErr error, terminal bool) error

	// GetChildrenValues returns only the StepResults of children whose
	// terminal status is completed (§4.1).
	GetChildrenValues(ctx context.Context, parentJobID string) (map[string]domain.StepResult, error)

	// UpdateProgress streams a progress value to observers; last-writer-wins.
	UpdateProgress(ctx context.Context, jobID string, pct float64) error

	// Counts returns queue depth introspection for one named queue.
	Counts(ctx context.Context, queueName string) (Counts, error)

	// Close releases backend resources.
	Close() error
}
