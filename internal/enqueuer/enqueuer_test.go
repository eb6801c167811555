package enqueuer

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/platform/logger"
	"github.com/flowforge/mediaflow/internal/store/memstore"
)

type fakeBuilder struct {
	err  error
	plan domain.FlowPlan
}

func (f fakeBuilder) BuildFlow(t *domain.Task) (domain.FlowPlan, error) {
	if f.err != nil {
		return domain.FlowPlan{}, f.err
	}
	return f.plan, nil
}

type fakeSubmitter struct {
	err         error
	parentJobID string
	submitted   []domain.FlowPlan
}

func (f *fakeSubmitter) SubmitFlow(ctx context.Context, plan domain.FlowPlan) (string, error) {
	f.submitted = append(f.submitted, plan)
	if f.err != nil {
		return "", f.err
	}
	return f.parentJobID, nil
}

func validPlan() domain.FlowPlan {
	return domain.FlowPlan{
		Parent: domain.ParentNode{TaskID: "t1", WorkspaceID: "ws1", QueueName: domain.QueueTranscode},
		Children: []domain.StepNode{
			{Name: domain.StepTranscodeProbe, QueueName: domain.QueueTranscode, Data: domain.StepInput{TaskID: "t1", WorkspaceID: "ws1"}},
		},
	}
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestProcessOneSubmitsAndPersistsParentJobID(t *testing.T) {
	s := memstore.New()
	s.Seed(domain.Task{ID: "t1", WorkspaceID: "ws1", Kind: domain.TaskKindProcessUpload, Status: domain.TaskStatusQueued, CreatedAt: time.Now()})

	sub := &fakeSubmitter{parentJobID: "parent-1"}
	e := New(s, fakeBuilder{plan: validPlan()}, sub, testLog(t), Config{})

	e.processOne(context.Background(), mustGet(t, s, "t1"))

	task, _ := s.Get(context.Background(), "t1")
	if task.Status != domain.TaskStatusRunning {
		t.Fatalf("expected running, got %s", task.Status)
	}
	if task.ParentJobID != "parent-1" {
		t.Fatalf("expected parentJobId persisted, got %q", task.ParentJobID)
	}
	if len(sub.submitted) != 1 {
		t.Fatalf("expected exactly one SubmitFlow call, got %d", len(sub.submitted))
	}
}

func TestProcessOneMarksFailedOnUnknownTaskKind(t *testing.T) {
	s := memstore.New()
	s.Seed(domain.Task{ID: "t2", WorkspaceID: "ws1", Kind: "BOGUS", Status: domain.TaskStatusQueued, CreatedAt: time.Now()})

	e := New(s, fakeBuilder{err: domain.ErrUnknownTaskKind}, &fakeSubmitter{}, testLog(t), Config{})
	e.processOne(context.Background(), mustGet(t, s, "t2"))

	task, _ := s.Get(context.Background(), "t2")
	if task.Status != domain.TaskStatusFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.ErrorLog == "" {
		t.Fatalf("expected non-empty errorLog")
	}
}

func TestProcessOneRevertsToQueuedOnBackendUnavailable(t *testing.T) {
	s := memstore.New()
	s.Seed(domain.Task{ID: "t3", WorkspaceID: "ws1", Kind: domain.TaskKindProcessUpload, Status: domain.TaskStatusQueued, CreatedAt: time.Now()})

	sub := &fakeSubmitter{err: domain.ErrBackendUnavailable}
	e := New(s, fakeBuilder{plan: validPlan()}, sub, testLog(t), Config{})
	e.processOne(context.Background(), mustGet(t, s, "t3"))

	task, _ := s.Get(context.Background(), "t3")
	if task.Status != domain.TaskStatusQueued {
		t.Fatalf("expected reverted to queued, got %s", task.Status)
	}
}

func TestProcessOneSkipsWhenClaimLosesRace(t *testing.T) {
	s := memstore.New()
	s.Seed(domain.Task{ID: "t4", WorkspaceID: "ws1", Kind: domain.TaskKindProcessUpload, Status: domain.TaskStatusRunning, CreatedAt: time.Now()})

	sub := &fakeSubmitter{parentJobID: "parent-x"}
	e := New(s, fakeBuilder{plan: validPlan()}, sub, testLog(t), Config{})
	e.processOne(context.Background(), mustGet(t, s, "t4"))

	if len(sub.submitted) != 0 {
		t.Fatalf("expected no submit after lost claim race, got %d", len(sub.submitted))
	}
}

func TestFairRotateRoundRobinsAcrossWorkspaces(t *testing.T) {
	now := time.Now()
	tasks := []domain.Task{
		{ID: "a1", WorkspaceID: "a", CreatedAt: now},
		{ID: "a2", WorkspaceID: "a", CreatedAt: now.Add(time.Second)},
		{ID: "a3", WorkspaceID: "a", CreatedAt: now.Add(2 * time.Second)},
		{ID: "b1", WorkspaceID: "b", CreatedAt: now.Add(3 * time.Second)},
	}
	out := fairRotate(tasks, 3)
	if len(out) != 3 {
		t.Fatalf("expected 3 selected, got %d", len(out))
	}
	if out[0].ID != "a1" || out[1].ID != "b1" || out[2].ID != "a2" {
		t.Fatalf("expected round-robin order a1,b1,a2, got %+v", idsOf(out))
	}
}

func idsOf(tasks []domain.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func mustGet(t *testing.T, s *memstore.Store, id string) domain.Task {
	t.Helper()
	task, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get %s: %v", id, err)
	}
	return task
}
