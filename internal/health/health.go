// Package health implements Health & Metrics (C9, §4.9): an aggregate,
// time-bounded view over the four queues, the persistence store, and any
// configured downstream service stubs. Grounded on the teacher's trivial
// internal/http/handlers/health.go (which only ever returned "ok") widened
// to the multi-dependency aggregate spec.md demands, with the fan-out
// structure borrowed from its own internal/jobs/orchestrator pattern of
// running independent checks concurrently, joined here with an errgroup.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/queue"
)

const defaultTimeout = 2 * time.Second

var queueNames = []string{domain.QueueTranscode, domain.QueueIntelligence, domain.QueueRender, domain.QueueLabels}

// QueueCounter is the queue.Backend surface the checker reads.
type QueueCounter interface {
	Counts(ctx context.Context, queueName string) (queue.Counts, error)
}

// StoreLiveness is satisfied by store.TaskStore; ListQueued with a limit of
// 1 doubles as a cheap liveness probe without adding a dedicated Ping
// method to the engine-owned store boundary.
type StoreLiveness interface {
	ListQueued(ctx context.Context, limit int) ([]domain.Task, error)
}

// Dependency is one named downstream service stub to ping (§4.9
// "configured list").
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// Status is the JSON shape served at the health endpoint (§6).
type Status struct {
	Status       string                 `json:"status"`
	Queues       map[string]queue.Counts `json:"queues"`
	Dependencies map[string]string      `json:"dependencies"`
}

type Checker struct {
	Queue   QueueCounter
	Store   StoreLiveness
	Deps    []Dependency
	Timeout time.Duration
}

func New(q QueueCounter, s StoreLiveness, deps []Dependency) *Checker {
	return &Checker{Queue: q, Store: s, Deps: deps, Timeout: defaultTimeout}
}

// Check runs every probe concurrently, bounded by Timeout (§4.9: "MUST be
// non-blocking and time-bounded (≤2s)"). A slow or failing probe degrades
// status without blocking the others.
func (c *Checker) Check(ctx context.Context) Status {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status := Status{Status: "ok", Queues: map[string]queue.Counts{}, Dependencies: map[string]string{}}
	var mu sync.Mutex

	degrade := func(key, reason string) {
		mu.Lock()
		defer mu.Unlock()
		status.Status = "degraded"
		status.Dependencies[key] = reason
	}
	ok := func(key string) {
		mu.Lock()
		defer mu.Unlock()
		status.Dependencies[key] = "ok"
	}

	// Each probe reports its own outcome through degrade/ok rather than a
	// returned error, so a slow dependency never aborts its siblings — g.Go
	// closures always return nil and g.Wait() only joins the goroutines.
	g, gctx := errgroup.WithContext(ctx)

	for _, qn := range queueNames {
		qn := qn
		g.Go(func() error {
			counts, err := c.Queue.Counts(gctx, qn)
			if err != nil {
				degrade("queue:"+qn, err.Error())
				return nil
			}
			mu.Lock()
			status.Queues[qn] = counts
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		if _, err := c.Store.ListQueued(gctx, 1); err != nil {
			degrade("store", err.Error())
			return nil
		}
		ok("store")
		return nil
	})

	for _, d := range c.Deps {
		d := d
		g.Go(func() error {
			if err := d.Ping(gctx); err != nil {
				degrade(d.Name, err.Error())
				return nil
			}
			ok(d.Name)
			return nil
		})
	}

	_ = g.Wait()
	return status
}
