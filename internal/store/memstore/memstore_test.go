package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/store"
)

func TestClaimQueuedTransitionsOnce(t *testing.T) {
	s := New()
	s.Seed(domain.Task{ID: "t1", Status: domain.TaskStatusQueued, CreatedAt: time.Now()})

	ok, err := s.ClaimQueued(context.Background(), "t1")
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.ClaimQueued(context.Background(), "t1")
	if err != nil || ok {
		t.Fatalf("second claim should fail: ok=%v err=%v", ok, err)
	}
}

func TestUpdateRejectsWriteAfterTerminal(t *testing.T) {
	s := New()
	s.Seed(domain.Task{ID: "t1", Status: domain.TaskStatusSucceeded, CreatedAt: time.Now()})

	err := s.Update(context.Background(), "t1", store.TaskUpdate{Status: domain.TaskStatusFailed})
	if !errors.Is(err, domain.ErrTerminalConflict) {
		t.Fatalf("expected ErrTerminalConflict, got %v", err)
	}

	if err := s.Update(context.Background(), "t1", store.TaskUpdate{Status: domain.TaskStatusSucceeded}); err != nil {
		t.Fatalf("idempotent restate of same terminal status should not error: %v", err)
	}
}

func TestListQueuedOrdersByCreatedAt(t *testing.T) {
	s := New()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	s.Seed(domain.Task{ID: "new", Status: domain.TaskStatusQueued, CreatedAt: newer})
	s.Seed(domain.Task{ID: "old", Status: domain.TaskStatusQueued, CreatedAt: older})

	tasks, err := s.ListQueued(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListQueued: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "old" || tasks[1].ID != "new" {
		t.Fatalf("unexpected order: %+v", tasks)
	}
}

func TestGetTracksByIDsOmitsMissing(t *testing.T) {
	s := New()
	s.SeedTrack("track-1", map[string]any{"kind": "video"})

	out, err := s.GetTracksByIDs(context.Background(), []string{"track-1", "track-missing"})
	if err != nil {
		t.Fatalf("GetTracksByIDs: %v", err)
	}
	if _, ok := out["track-missing"]; ok {
		t.Fatalf("missing track should be omitted, got %+v", out)
	}
	if out["track-1"]["kind"] != "video" {
		t.Fatalf("unexpected track record: %+v", out["track-1"])
	}
}
