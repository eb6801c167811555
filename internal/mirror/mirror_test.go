package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/platform/logger"
	"github.com/flowforge/mediaflow/internal/store/memstore"
)

func newTestMirror(t *testing.T) (*Mirror, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(s, log, 15*time.Millisecond), s
}

func TestSetRunningIsIdempotent(t *testing.T) {
	m, s := newTestMirror(t)
	s.Seed(domain.Task{ID: "t1", Status: domain.TaskStatusQueued, CreatedAt: time.Now()})

	if err := m.SetRunning(context.Background(), "t1"); err != nil {
		t.Fatalf("first SetRunning: %v", err)
	}
	if err := m.SetRunning(context.Background(), "t1"); err != nil {
		t.Fatalf("second SetRunning should be a no-op, got: %v", err)
	}
	task, _ := s.Get(context.Background(), "t1")
	if task.Status != domain.TaskStatusRunning {
		t.Fatalf("expected running, got %s", task.Status)
	}
}

func TestSetProgressCoalescesAndAggregates(t *testing.T) {
	m, s := newTestMirror(t)
	s.Seed(domain.Task{ID: "t1", Status: domain.TaskStatusRunning, CreatedAt: time.Now()})

	m.SetProgress(context.Background(), "t1", "probe", 100)
	m.SetProgress(context.Background(), "t1", "thumbnail", 100)
	m.SetProgress(context.Background(), "t1", "transcode", 40)

	time.Sleep(60 * time.Millisecond)

	task, _ := s.Get(context.Background(), "t1")
	if task.Progress != 80 {
		t.Fatalf("expected mean progress 80, got %v", task.Progress)
	}
}

func TestSetProgressMonotonicNonDecreasing(t *testing.T) {
	m, s := newTestMirror(t)
	s.Seed(domain.Task{ID: "t1", Status: domain.TaskStatusRunning, CreatedAt: time.Now()})

	m.SetProgress(context.Background(), "t1", "transcode", 50)
	time.Sleep(20 * time.Millisecond)
	m.SetProgress(context.Background(), "t1", "transcode", 10) // out-of-order, should not regress
	time.Sleep(20 * time.Millisecond)

	task, _ := s.Get(context.Background(), "t1")
	if task.Progress != 50 {
		t.Fatalf("expected progress to stay at 50, got %v", task.Progress)
	}
}

func TestSetTerminalIdempotentAndConflicting(t *testing.T) {
	m, s := newTestMirror(t)
	s.Seed(domain.Task{ID: "t1", Status: domain.TaskStatusRunning, CreatedAt: time.Now()})

	if err := m.SetTerminal(context.Background(), "t1", domain.TaskStatusSucceeded, map[string]any{"mediaId": "m1"}, ""); err != nil {
		t.Fatalf("first SetTerminal: %v", err)
	}
	if err := m.SetTerminal(context.Background(), "t1", domain.TaskStatusSucceeded, map[string]any{"mediaId": "m1"}, ""); err != nil {
		t.Fatalf("idempotent restate should not error: %v", err)
	}
	err := m.SetTerminal(context.Background(), "t1", domain.TaskStatusFailed, nil, "boom")
	if !errors.Is(err, domain.ErrTerminalConflict) {
		t.Fatalf("expected ErrTerminalConflict, got %v", err)
	}

	task, _ := s.Get(context.Background(), "t1")
	if task.Status != domain.TaskStatusSucceeded || task.Progress != 100 {
		t.Fatalf("unexpected task state: %+v", task)
	}
}
