package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	evaluation "falldetect/internal/evaluation/domain"
)

// RunRepository is an in-memory repository for demo/testing.
type RunRepository struct {
	mu   sync.RWMutex
	data map[string]evaluation.SearchRun
}

// NewRunRepository constructs a repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{data: make(map[string]evaluation.SearchRun)}
}

// Save inserts or replaces a run.
func (r *RunRepository) Save(ctx context.Context, run *evaluation.SearchRun) error {
	_ = ctx
	if run == nil {
		return errors.New("memory run repo: nil run")
	}
	if run.ID == "" {
		return evaluation.ErrEmptyRunID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[run.ID] = cloneRun(*run)
	return nil
}

// Get loads a run by id.
func (r *RunRepository) Get(ctx context.Context, id string) (*evaluation.SearchRun, error) {
	_ = ctx
	if id == "" {
		return nil, evaluation.ErrEmptyRunID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.data[id]
	if !ok {
		return nil, evaluation.ErrRunNotFound
	}
	out := cloneRun(run)
	return &out, nil
}

// List returns the newest runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]evaluation.SearchRun, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]evaluation.SearchRun, 0, len(r.data))
	for _, run := range r.data {
		runs = append(runs, cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func cloneRun(run evaluation.SearchRun) evaluation.SearchRun {
	if run.Result != nil {
		result := *run.Result
		result.BestSensitivity = clonePoint(result.BestSensitivity)
		result.BestSpecificity = clonePoint(result.BestSpecificity)
		result.BestAccuracy = clonePoint(result.BestAccuracy)
		run.Result = &result
	}
	run.Grid.Impact = append([]float64(nil), run.Grid.Impact...)
	run.Grid.Motionless = append([]float64(nil), run.Grid.Motionless...)
	run.Grid.Angle = append([]float64(nil), run.Grid.Angle...)
	return run
}

func clonePoint(p *evaluation.ParameterPoint) *evaluation.ParameterPoint {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}
