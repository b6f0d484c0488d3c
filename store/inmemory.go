package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore is a RunStore backed by a map. Suitable for tests, demos and
// single-process deployments that only need in-flight inspection.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Record
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]*Record)}
}

// Save implements RunStore.
func (s *InMemoryStore) Save(_ context.Context, rec *Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("save run: empty run id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.runs[rec.RunID] = &cp
	return nil
}

// Get implements RunStore.
func (s *InMemoryStore) Get(_ context.Context, runID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	cp := *rec
	return &cp, nil
}

// List implements RunStore.
func (s *InMemoryStore) List(_ context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.runs))
	for _, rec := range s.runs {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete implements RunStore.
func (s *InMemoryStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

var _ RunStore = (*InMemoryStore)(nil)
