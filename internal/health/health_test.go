package health

import (
	"context"
	"errors"
	"testing"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/queue"
)

type fakeQueueCounter struct {
	err error
}

func (f fakeQueueCounter) Counts(ctx context.Context, queueName string) (queue.Counts, error) {
	if f.err != nil {
		return queue.Counts{}, f.err
	}
	return queue.Counts{Waiting: 3, Active: 1}, nil
}

type fakeStoreLiveness struct {
	err error
}

func (f fakeStoreLiveness) ListQueued(ctx context.Context, limit int) ([]domain.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func TestCheckAllHealthyReturnsOK(t *testing.T) {
	c := New(fakeQueueCounter{}, fakeStoreLiveness{}, nil)
	status := c.Check(context.Background())
	if status.Status != "ok" {
		t.Fatalf("expected ok, got %s: %+v", status.Status, status.Dependencies)
	}
	if len(status.Queues) != 4 {
		t.Fatalf("expected 4 queues reported, got %d", len(status.Queues))
	}
}

func TestCheckDegradesOnStoreFailure(t *testing.T) {
	c := New(fakeQueueCounter{}, fakeStoreLiveness{err: errors.New("db down")}, nil)
	status := c.Check(context.Background())
	if status.Status != "degraded" {
		t.Fatalf("expected degraded, got %s", status.Status)
	}
	if status.Dependencies["store"] != "db down" {
		t.Fatalf("expected store failure reason, got %+v", status.Dependencies)
	}
}

func TestCheckDegradesOnDependencyPingFailure(t *testing.T) {
	deps := []Dependency{
		{Name: "vision-api", Ping: func(ctx context.Context) error { return errors.New("timeout") }},
	}
	c := New(fakeQueueCounter{}, fakeStoreLiveness{}, deps)
	status := c.Check(context.Background())
	if status.Status != "degraded" {
		t.Fatalf("expected degraded, got %s", status.Status)
	}
	if status.Dependencies["vision-api"] != "timeout" {
		t.Fatalf("expected vision-api failure reason, got %+v", status.Dependencies)
	}
}
