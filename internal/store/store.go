// Package store defines the persistence store boundary (§4, §6): the
// engine only ever reads queued tasks and writes status/progress/result/
// errorLog/startedAt/completedAt/parentJobId on them. Everything else
// about a Task (who created it, what workspace it belongs to, the rest of
// its row) is owned by the web application and never touched here.
package store

import (
	"context"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
)

// TaskUpdate is the field set the engine is allowed to write. Zero-value
// (empty or nil) fields are left untouched —
// mirrors the teacher's JobRunRepo.UpdateFields map-of-columns approach,
// generalized to a typed struct so the engine can't accidentally touch an
// unowned column.
type TaskUpdate struct {
	Status      string
	Progress    *float64
	Result      map[string]any
	ErrorLog    *string
	StartedAt   *time.Time
	CompletedAt *time.Time

	// ParentJobID records the FlowPlan's parent job id once the enqueuer
	// (C6) has submitted the flow (§4.6: "persist parentJobId against the
	// task").
	ParentJobID *string
}

// TaskStore is the persistence store's engine-facing surface (§6).
type TaskStore interface {
	// ListQueued returns up to limit tasks with status=queued, oldest
	// first, used by the enqueuer's poll loop (§4.6).
	ListQueued(ctx context.Context, limit int) ([]domain.Task, error)

	// ClaimQueued atomically transitions one task from queued to running,
	// returning false if another enqueuer already claimed it — the
	// generalized form of the teacher's ClaimNextRunnable SKIP LOCKED
	// pattern, narrowed to a single conditional UPDATE since the engine
	// only ever claims tasks it already knows the id of.
	ClaimQueued(ctx context.Context, taskID string) (bool, error)

	// Get returns one task by id, used by the orchestrator/mirror to read
	// current state before writing.
	Get(ctx context.Context, taskID string) (domain.Task, error)

	// Update applies upd to taskID. Implementations must reject writes to
	// an already-terminal task with domain.ErrTerminalConflict unless upd
	// only restates the existing terminal status (idempotent retry of the
	// same terminal write).
	Update(ctx context.Context, taskID string, upd TaskUpdate) error

	// GetTracksByIDs resolves render timeline track records for
	// render:prepare (§4.3), named after the teacher's JobRunRepo.GetByIDs.
	GetTracksByIDs(ctx context.Context, ids []string) (map[string]map[string]any, error)

	Close() error
}
