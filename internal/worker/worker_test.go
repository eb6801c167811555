package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/platform/logger"
	"github.com/flowforge/mediaflow/internal/queue"
	"github.com/flowforge/mediaflow/internal/steps"
)

type fakeBackend struct {
	childrenValues map[string]domain.StepResult

	ackedID      string
	ackedResult  *domain.StepResult
	nackedID     string
	nackedErr    error
	nackTerminal bool
	progress     []float64

	nextJob    *queue.Job
	claimCalls int
}

func (f *fakeBackend) SubmitFlow(ctx context.Context, plan domain.FlowPlan) (string, error) {
	return "", nil
}

func (f *fakeBackend) Claim(ctx context.Context, queueName string) (*queue.Job, error) {
	f.claimCalls++
	if f.claimCalls == 1 {
		return f.nextJob, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeBackend) Ack(ctx context.Context, jobID string, result *domain.StepResult) error {
	f.ackedID = jobID
	f.ackedResult = result
	return nil
}

func (f *fakeBackend) Nack(ctx context.Context, jobID string, handlerErr error, terminal bool) error {
	f.nackedID = jobID
	f.nackedErr = handlerErr
	f.nackTerminal = terminal
	return nil
}

func (f *fakeBackend) GetChildrenValues(ctx context.Context, parentJobID string) (map[string]domain.StepResult, error) {
	return f.childrenValues, nil
}

func (f *fakeBackend) UpdateProgress(ctx context.Context, jobID string, pct float64) error {
	f.progress = append(f.progress, pct)
	return nil
}

func (f *fakeBackend) Counts(ctx context.Context, queueName string) (queue.Counts, error) {
	return queue.Counts{}, nil
}

func (f *fakeBackend) Close() error { return nil }

type fakeMirror struct {
	runningTaskID string
	progressCalls []float64
}

func (f *fakeMirror) SetRunning(ctx context.Context, taskID string) error {
	f.runningTaskID = taskID
	return nil
}

func (f *fakeMirror) SetProgress(ctx context.Context, taskID, currentStep string, currentStepProgress float64) {
	f.progressCalls = append(f.progressCalls, currentStepProgress)
}

type fakeTasks struct {
	status string
}

func (f fakeTasks) Get(ctx context.Context, taskID string) (domain.Task, error) {
	return domain.Task{ID: taskID, Status: f.status}, nil
}

type fakeOrchestrator struct {
	called chan *queue.Job
}

func (f *fakeOrchestrator) HandleParent(ctx context.Context, job *queue.Job) error {
	f.called <- job
	return nil
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestHandleStepMemoizationFastPath(t *testing.T) {
	backend := &fakeBackend{
		childrenValues: map[string]domain.StepResult{
			domain.StepTranscodeProbe: {StepKind: domain.StepTranscodeProbe, Status: domain.StepCompleted, Output: map[string]any{"durationSec": 5.0}},
		},
	}
	w := New(backend, steps.NewRegistry(), &fakeOrchestrator{called: make(chan *queue.Job, 1)}, nil, fakeTasks{status: domain.TaskStatusRunning}, testLog(t))
	log := testLog(t)

	job := &queue.Job{ID: "job-1", ParentID: "parent-1", Kind: domain.StepTranscodeProbe, TaskID: "task-1"}
	w.handleStep(context.Background(), job, log)

	if backend.ackedID != "job-1" {
		t.Fatalf("expected memoized fast-path ack, got acked=%q nacked=%q", backend.ackedID, backend.nackedID)
	}
	if backend.ackedResult.Output["durationSec"] != 5.0 {
		t.Fatalf("unexpected memoized output: %+v", backend.ackedResult)
	}
}

func TestHandleStepCancelledTaskAcksSynthetic(t *testing.T) {
	backend := &fakeBackend{childrenValues: map[string]domain.StepResult{}}
	w := New(backend, steps.NewRegistry(), &fakeOrchestrator{called: make(chan *queue.Job, 1)}, nil, fakeTasks{status: domain.TaskStatusCancelled}, testLog(t))
	log := testLog(t)

	job := &queue.Job{ID: "job-2", ParentID: "parent-2", Kind: domain.StepTranscodeProbe, TaskID: "task-2"}
	w.handleStep(context.Background(), job, log)

	if backend.ackedID != "job-2" || backend.ackedResult.Status != domain.StepCancelled {
		t.Fatalf("expected synthetic cancelled ack, got %+v", backend.ackedResult)
	}
}

func TestHandleStepInvokesHandlerAndAcksOnSuccess(t *testing.T) {
	backend := &fakeBackend{childrenValues: map[string]domain.StepResult{}}
	reg := steps.NewRegistry()
	reg.Register(domain.StepTranscodeProbe, steps.HandlerFunc(func(ctx *steps.Context, input domain.StepInput) (map[string]any, error) {
		ctx.Progress(50)
		return map[string]any{"durationSec": 9.0}, nil
	}))
	mirror := &fakeMirror{}
	w := New(backend, reg, &fakeOrchestrator{called: make(chan *queue.Job, 1)}, mirror, fakeTasks{status: domain.TaskStatusRunning}, testLog(t))
	log := testLog(t)

	job := &queue.Job{ID: "job-3", ParentID: "parent-3", Kind: domain.StepTranscodeProbe, TaskID: "task-3", Data: map[string]any{"taskId": "task-3", "workspaceId": "ws-1"}}
	w.handleStep(context.Background(), job, log)

	if backend.ackedID != "job-3" || backend.ackedResult.Status != domain.StepCompleted {
		t.Fatalf("expected completed ack, got %+v", backend.ackedResult)
	}
	if backend.ackedResult.Output["durationSec"] != 9.0 {
		t.Fatalf("unexpected output: %+v", backend.ackedResult.Output)
	}
	if mirror.runningTaskID != "task-3" {
		t.Fatalf("expected SetRunning forwarded, got %q", mirror.runningTaskID)
	}
	if len(backend.progress) != 1 || backend.progress[0] != 50 {
		t.Fatalf("expected progress forwarded to backend, got %+v", backend.progress)
	}
	if len(mirror.progressCalls) != 1 || mirror.progressCalls[0] != 50 {
		t.Fatalf("expected progress forwarded to mirror, got %+v", mirror.progressCalls)
	}
}

func TestHandleStepNacksOnHandlerError(t *testing.T) {
	backend := &fakeBackend{childrenValues: map[string]domain.StepResult{}}
	reg := steps.NewRegistry()
	reg.Register(domain.StepTranscodeProbe, steps.HandlerFunc(func(ctx *steps.Context, input domain.StepInput) (map[string]any, error) {
		return nil, domain.Transient(errors.New("ffprobe: rate limited"))
	}))
	w := New(backend, reg, &fakeOrchestrator{called: make(chan *queue.Job, 1)}, nil, fakeTasks{status: domain.TaskStatusRunning}, testLog(t))
	log := testLog(t)

	job := &queue.Job{ID: "job-4", ParentID: "parent-4", Kind: domain.StepTranscodeProbe, TaskID: "task-4"}
	w.handleStep(context.Background(), job, log)

	if backend.nackedID != "job-4" {
		t.Fatalf("expected nack, got acked=%q nacked=%q", backend.ackedID, backend.nackedID)
	}
	if backend.nackedErr == nil || backend.nackedErr.Error() != "ffprobe: rate limited" {
		t.Fatalf("unexpected nack error: %v", backend.nackedErr)
	}
	if backend.nackTerminal {
		t.Fatalf("expected a handler-transient error to nack non-terminal (retryable)")
	}
}

func TestHandleStepNacksTerminalOnHandlerPermanentError(t *testing.T) {
	backend := &fakeBackend{childrenValues: map[string]domain.StepResult{}}
	reg := steps.NewRegistry()
	reg.Register(domain.StepTranscodeProbe, steps.HandlerFunc(func(ctx *steps.Context, input domain.StepInput) (map[string]any, error) {
		return nil, domain.Permanent(errors.New("ffprobe: corrupt input"))
	}))
	w := New(backend, reg, &fakeOrchestrator{called: make(chan *queue.Job, 1)}, nil, fakeTasks{status: domain.TaskStatusRunning}, testLog(t))
	log := testLog(t)

	job := &queue.Job{ID: "job-4b", ParentID: "parent-4b", Kind: domain.StepTranscodeProbe, TaskID: "task-4b"}
	w.handleStep(context.Background(), job, log)

	if backend.nackedID != "job-4b" {
		t.Fatalf("expected nack, got acked=%q nacked=%q", backend.ackedID, backend.nackedID)
	}
	if !backend.nackTerminal {
		t.Fatalf("expected a handler-permanent error to nack terminal (no retry budget)")
	}
}

func TestHandleStepNacksOnUnregisteredStepKind(t *testing.T) {
	backend := &fakeBackend{childrenValues: map[string]domain.StepResult{}}
	w := New(backend, steps.NewRegistry(), &fakeOrchestrator{called: make(chan *queue.Job, 1)}, nil, fakeTasks{status: domain.TaskStatusRunning}, testLog(t))
	log := testLog(t)

	job := &queue.Job{ID: "job-5", ParentID: "parent-5", Kind: "transcode:unknown", TaskID: "task-5"}
	w.handleStep(context.Background(), job, log)

	if backend.nackedID != "job-5" {
		t.Fatalf("expected nack for unregistered step kind, got acked=%q", backend.ackedID)
	}
	if !errors.Is(backend.nackedErr, domain.ErrUnregisteredStep) {
		t.Fatalf("expected ErrUnregisteredStep, got %v", backend.nackedErr)
	}
	if !backend.nackTerminal {
		t.Fatalf("expected an unregistered step kind to nack terminal")
	}
}

func TestRunDispatchesParentJobToOrchestrator(t *testing.T) {
	orch := &fakeOrchestrator{called: make(chan *queue.Job, 1)}
	backend := &fakeBackend{nextJob: &queue.Job{ID: "parent-1", Kind: "parent"}}
	w := New(backend, steps.NewRegistry(), orch, nil, nil, testLog(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, "transcode") }()

	select {
	case job := <-orch.called:
		if job.ID != "parent-1" {
			t.Fatalf("expected parent-1 dispatched, got %q", job.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for orchestrator dispatch")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("worker did not exit after cancel")
	}
}
