package repository

import (
	"context"
	"sort"
	"sync"

	"merchant-voice-auth/internal/agent/domain"
)

// MemoryRepository is an in-memory Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
}

// NewMemoryRepository returns a repository holding copies of agents.
func NewMemoryRepository(agents ...*domain.Agent) *MemoryRepository {
	r := &MemoryRepository{agents: make(map[string]*domain.Agent)}
	for _, a := range agents {
		c := *a
		r.agents[a.ID] = &c
	}
	return r
}

func (r *MemoryRepository) ListActive(ctx context.Context) ([]*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Agent
	for _, a := range r.agents {
		if a.Active {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
