package orchestrator

import (
	"context"
	"testing"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/queue"
)

type fakeBackend struct {
	completed map[string]domain.StepResult
	statuses  map[string]queue.ChildStatus
	acked     string
}

func (f *fakeBackend) SubmitFlow(ctx context.Context, plan domain.FlowPlan) (string, error) {
	return "", nil
}
func (f *fakeBackend) Claim(ctx context.Context, queueName string) (*queue.Job, error) { return nil, nil }
func (f *fakeBackend) Ack(ctx context.Context, jobID string, result *domain.StepResult) error {
	f.acked = jobID
	return nil
}
func (f *fakeBackend) Nack(ctx context.Context, jobID string, handlerErr error, terminal bool) error {
	return nil
}
func (f *fakeBackend) GetChildrenValues(ctx context.Context, parentJobID string) (map[string]domain.StepResult, error) {
	return f.completed, nil
}
func (f *fakeBackend) UpdateProgress(ctx context.Context, jobID string, pct float64) error { return nil }
func (f *fakeBackend) Counts(ctx context.Context, queueName string) (queue.Counts, error) {
	return queue.Counts{}, nil
}
func (f *fakeBackend) Close() error { return nil }
func (f *fakeBackend) GetChildrenStatus(ctx context.Context, parentJobID string) (map[string]queue.ChildStatus, error) {
	return f.statuses, nil
}

type fakeMirror struct {
	taskID   string
	status   string
	result   map[string]any
	errorLog string
	calls    int
}

func (f *fakeMirror) SetTerminal(ctx context.Context, taskID, status string, result map[string]any, errorLog string) error {
	f.taskID = taskID
	f.status = status
	f.result = result
	f.errorLog = errorLog
	f.calls++
	return nil
}

func TestHandleParentSucceedsWhenNoChildFailed(t *testing.T) {
	backend := &fakeBackend{
		completed: map[string]domain.StepResult{
			domain.StepTranscodeProbe:      {StepKind: domain.StepTranscodeProbe, Status: domain.StepCompleted, Output: map[string]any{"durationSec": 5.0}},
			domain.StepTranscodeTranscode:  {StepKind: domain.StepTranscodeTranscode, Status: domain.StepCompleted, Output: map[string]any{"name": "media-1.mp4"}},
		},
		statuses: map[string]queue.ChildStatus{
			domain.StepTranscodeProbe:     {StepKind: domain.StepTranscodeProbe, Status: domain.StepCompleted},
			domain.StepTranscodeTranscode: {StepKind: domain.StepTranscodeTranscode, Status: domain.StepCompleted},
		},
	}
	mirror := &fakeMirror{}
	e := New(backend, mirror)

	if err := e.HandleParent(context.Background(), &queue.Job{ID: "parent-1", TaskID: "task-1"}); err != nil {
		t.Fatalf("HandleParent: %v", err)
	}
	if mirror.status != domain.TaskStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", mirror.status)
	}
	if mirror.result["mediaId"] != "media-1.mp4" {
		t.Fatalf("unexpected result: %+v", mirror.result)
	}
	if backend.acked != "parent-1" {
		t.Fatalf("expected parent job acked")
	}
}

func TestHandleParentFailsAndPreservesPartialResults(t *testing.T) {
	backend := &fakeBackend{
		completed: map[string]domain.StepResult{
			domain.StepLabelsLabelDetection: {StepKind: domain.StepLabelsLabelDetection, Status: domain.StepCompleted, Output: map[string]any{"entries": map[string]any{"cat": true}}},
		},
		statuses: map[string]queue.ChildStatus{
			domain.StepLabelsLabelDetection:  {StepKind: domain.StepLabelsLabelDetection, Status: domain.StepCompleted},
			domain.StepLabelsFaceDetection:   {StepKind: domain.StepLabelsFaceDetection, Status: domain.StepFailed, Error: "quota exceeded"},
		},
	}
	mirror := &fakeMirror{}
	e := New(backend, mirror)

	if err := e.HandleParent(context.Background(), &queue.Job{ID: "parent-2", TaskID: "task-2"}); err != nil {
		t.Fatalf("HandleParent: %v", err)
	}
	if mirror.status != domain.TaskStatusFailed {
		t.Fatalf("expected failed, got %s", mirror.status)
	}
	if mirror.errorLog == "" {
		t.Fatalf("expected non-empty errorLog")
	}
	labels, ok := mirror.result["labels"].(map[string]any)
	if !ok || labels[domain.StepLabelsLabelDetection] == nil {
		t.Fatalf("expected partial label_detection output preserved, got %+v", mirror.result)
	}
}
