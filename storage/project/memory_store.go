package project

import (
	"context"
	"sort"
	"sync"

	core "homefi-backend/core/project"
)

// MemoryStore holds ledgers in memory with proper concurrency control.
// The single RWMutex keeps project and event writes atomic relative to
// each other.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*core.Project
	events   map[string][]core.Event
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*core.Project),
		events:   make(map[string][]core.Event),
	}
}

// CreateProject stores a new ledger at version 1.
func (s *MemoryStore) CreateProject(_ context.Context, p *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return ErrProjectExists
	}
	p.Version = 1
	s.projects[p.ID] = p.Clone()
	return nil
}

// GetProject returns a deep copy of the ledger.
func (s *MemoryStore) GetProject(_ context.Context, id string) (*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return p.Clone(), nil
}

// ListProjects returns deep copies of all ledgers ordered by id.
func (s *MemoryStore) ListProjects(_ context.Context) ([]*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateProject swaps the stored ledger if the caller's version matches.
func (s *MemoryStore) UpdateProject(_ context.Context, p *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.projects[p.ID]
	if !ok {
		return ErrProjectNotFound
	}
	if cur.Version != p.Version {
		return ErrVersionConflict
	}
	next := p.Clone()
	next.Version++
	s.projects[p.ID] = next
	p.Version = next.Version
	return nil
}

// AppendEvent records an activity entry.
func (s *MemoryStore) AppendEvent(_ context.Context, evt core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[evt.ProjectID] = append(s.events[evt.ProjectID], evt)
	return nil
}

// ListEvents returns the most recent events for a project, newest last.
func (s *MemoryStore) ListEvents(_ context.Context, projectID string, limit int) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[projectID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]core.Event(nil), events...), nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() {}
