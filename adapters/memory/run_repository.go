package memory

import (
	"context"
	"sort"
	"sync"

	"atomsense/domain/core"
	"atomsense/ports"
)

// RunRepository keeps runs in process memory. Used when no database is
// configured and by tests.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[core.RunID]*ports.RunRecord
}

// NewRunRepository creates an empty in-memory run store
func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[core.RunID]*ports.RunRecord)}
}

// Save inserts or replaces a run
func (r *RunRepository) Save(ctx context.Context, run *ports.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

// Get returns a run by ID
func (r *RunRepository) Get(ctx context.Context, id core.RunID) (*ports.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, core.NewNotFoundError("run", id.String())
	}
	cp := *run
	return &cp, nil
}

// List returns the newest runs first, at most limit (0 means all)
func (r *RunRepository) List(ctx context.Context, limit int) ([]*ports.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ports.RunRecord, 0, len(r.runs))
	for _, run := range r.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
