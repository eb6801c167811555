// Package mirror implements the Task Mirror (C7, §4.7): the write-through
// layer between the engine and the persistence store. Generalized from the
// teacher's runtime.Context.Progress/Fail/Succeed (internal/jobs/runtime/
// context.go), which writes straight through on every call; here the same
// three operations (running/progress/terminal) gain debounced coalescing
// and bounded retry, since the store is now a separate service instead of
// an in-process gorm handle.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/platform/logger"
	"github.com/flowforge/mediaflow/internal/store"
)

const (
	defaultDebounce  = 250 * time.Millisecond
	maxWriteAttempts = 3
	maxWriteBackoff  = 2 * time.Second
)

// taskMailbox coalesces in-flight progress updates for one task: only the
// most recent call within the debounce window is flushed (§4.7).
type taskMailbox struct {
	mu           sync.Mutex
	stepProgress map[string]float64 // stepKind -> last-seen clamped, monotonic progress
	currentStep  string
	timer        *time.Timer
}

type Mirror struct {
	store    store.TaskStore
	log      *logger.Logger
	debounce time.Duration

	mu    sync.Mutex
	boxes map[string]*taskMailbox
}

func New(s store.TaskStore, log *logger.Logger, debounce time.Duration) *Mirror {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Mirror{store: s, log: log.With("service", "TaskMirror"), debounce: debounce, boxes: map[string]*taskMailbox{}}
}

// SetRunning implements §4.7's idempotent running transition.
func (m *Mirror) SetRunning(ctx context.Context, taskID string) error {
	return m.retry(ctx, func() error {
		t, err := m.store.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Status == domain.TaskStatusRunning {
			return nil
		}
		return m.store.Update(ctx, taskID, store.TaskUpdate{Status: domain.TaskStatusRunning})
	})
}

func (m *Mirror) mailbox(taskID string) *taskMailbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[taskID]
	if !ok {
		b = &taskMailbox{stepProgress: map[string]float64{}}
		m.boxes[taskID] = b
	}
	return b
}

// SetProgress implements §4.7's coalesced progress reporting: per-step
// progress is clamped to [0,100] and forced monotonically non-decreasing
// (out-of-order delivery is tolerated via max(seen, incoming), §5); the
// flush to the store is debounced so a burst of updates within
// progressDebounceMs collapses to one write carrying the latest values.
func (m *Mirror) SetProgress(ctx context.Context, taskID, currentStep string, currentStepProgress float64) {
	pct := clamp(currentStepProgress)
	box := m.mailbox(taskID)

	box.mu.Lock()
	if prev, ok := box.stepProgress[currentStep]; ok && prev > pct {
		pct = prev
	}
	box.stepProgress[currentStep] = pct
	box.currentStep = currentStep
	if box.timer != nil {
		box.timer.Stop()
	}
	box.timer = time.AfterFunc(m.debounce, func() { m.flush(ctx, taskID, box) })
	box.mu.Unlock()
}

func (m *Mirror) flush(ctx context.Context, taskID string, box *taskMailbox) {
	box.mu.Lock()
	overall := aggregateProgress(box.stepProgress)
	currentStep := box.currentStep
	box.mu.Unlock()

	if err := m.retry(ctx, func() error {
		return m.store.Update(ctx, taskID, store.TaskUpdate{Progress: &overall})
	}); err != nil {
		// §4.7: persistent failure does not abort the orchestrator; task
		// state may drift until a reconciliation sweep catches up from the
		// backend's child-values view.
		m.log.Warn("progress flush failed after retries", "taskId", taskID, "currentStep", currentStep, "error", err)
	}
}

// aggregateProgress computes round(mean(stepProgresses), 2) per §4.7/§8
// invariant 7, clamped to [0,100].
func aggregateProgress(stepProgress map[string]float64) float64 {
	if len(stepProgress) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range stepProgress {
		sum += v
	}
	mean := sum / float64(len(stepProgress))
	return clamp(math.Round(mean*100) / 100)
}

// SetTerminal implements §4.7's idempotent-on-identical-terminal,
// conflict-on-different-terminal contract.
func (m *Mirror) SetTerminal(ctx context.Context, taskID, status string, result map[string]any, errorLog string) error {
	return m.retryTerminal(ctx, func() error {
		t, err := m.store.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if domain.IsTerminal(t.Status) {
			if t.Status == status {
				return nil // idempotent restate, §8 invariant 8
			}
			return fmt.Errorf("task %s already %s, refusing %s: %w", taskID, t.Status, status, domain.ErrTerminalConflict)
		}

		full := clamp(100)
		upd := store.TaskUpdate{Status: status, Result: result}
		if status == domain.TaskStatusSucceeded {
			upd.Progress = &full
		}
		if errorLog != "" {
			upd.ErrorLog = &errorLog
		}
		now := nowFunc()
		upd.CompletedAt = &now
		return m.store.Update(ctx, taskID, upd)
	})
}

func clamp(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// nowFunc is a seam for tests; production always uses time.Now.
var nowFunc = time.Now

// retry applies bounded exponential backoff (§4.7: ≤3 attempts, max 2s) to
// transient store errors only; a TerminalConflict or any non-retryable
// error returns immediately.
func (m *Mirror) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !domain.IsRetryable(err) {
			return err
		}
		if attempt == maxWriteAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(attempt)):
		}
	}
	return lastErr
}

// retryTerminal behaves like retry but never retries a TerminalConflict
// (it is not a store error; it is a correct rejection per §4.7, §7).
func (m *Mirror) retryTerminal(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrTerminalConflict) {
			m.log.Warn("terminal conflict", "error", err)
			return err
		}
		lastErr = err
		if !domain.IsRetryable(err) {
			return err
		}
		if attempt == maxWriteAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(attempt)):
		}
	}
	return lastErr
}

func backoffFor(attempt int) time.Duration {
	base := 100 * time.Millisecond
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d > maxWriteBackoff {
		d = maxWriteBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d/4 + 1)))
	return d + jitter
}
