// Package memstore is an in-process TaskStore fake (§6 "test tooling" —
// satisfies the store.TaskStore interface without a live Postgres, used by
// enqueuer/mirror tests and as a local dev fallback).
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/store"
)

type Store struct {
	mu     sync.Mutex
	tasks  map[string]domain.Task
	tracks map[string]map[string]any
}

func New() *Store {
	return &Store{
		tasks:  map[string]domain.Task{},
		tracks: map[string]map[string]any{},
	}
}

// Seed inserts/overwrites a task directly, bypassing the store contract —
// test setup only.
func (s *Store) Seed(t domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

// SeedTrack registers a track record GetTracksByIDs can resolve — test
// setup only.
func (s *Store) SeedTrack(id string, record map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[id] = record
}

func (s *Store) ListQueued(ctx context.Context, limit int) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Status == domain.TaskStatusQueued {
			matches = append(matches, t)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) ClaimQueued(ctx context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return false, fmt.Errorf("task %s: %w", taskID, domain.ErrStorageIO)
	}
	if t.Status != domain.TaskStatusQueued {
		return false, nil
	}
	t.Status = domain.TaskStatusRunning
	now := time.Now()
	t.StartedAt = &now
	s.tasks[taskID] = t
	return true, nil
}

func (s *Store) Get(ctx context.Context, taskID string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, domain.ErrStorageIO)
	}
	return t, nil
}

func (s *Store) Update(ctx context.Context, taskID string, upd store.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrStorageIO)
	}
	if domain.IsTerminal(t.Status) && upd.Status != "" && upd.Status != t.Status {
		return fmt.Errorf("task %s already %s: %w", taskID, t.Status, domain.ErrTerminalConflict)
	}

	if upd.Status != "" {
		t.Status = upd.Status
	}
	if upd.Progress != nil {
		t.Progress = *upd.Progress
	}
	if upd.Result != nil {
		t.Result = upd.Result
	}
	if upd.ErrorLog != nil {
		t.ErrorLog = *upd.ErrorLog
	}
	if upd.StartedAt != nil {
		t.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		t.CompletedAt = upd.CompletedAt
	}
	if upd.ParentJobID != nil {
		t.ParentJobID = *upd.ParentJobID
	}
	s.tasks[taskID] = t
	return nil
}

func (s *Store) GetTracksByIDs(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]map[string]any{}
	for _, id := range ids {
		if rec, ok := s.tracks[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
