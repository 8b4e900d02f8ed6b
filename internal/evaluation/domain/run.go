package evaluation

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a search run.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "created"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// SearchRun records one parameter search over a corpus.
type SearchRun struct {
	ID         string        `json:"id"`
	Status     RunStatus     `json:"status"`
	CorpusRoot string        `json:"corpus_root"`
	CorpusSize int           `json:"corpus_size"`
	Grid       Grid          `json:"grid"`
	Result     *SearchResult `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// RunRepository persists search runs.
type RunRepository interface {
	Save(ctx context.Context, run *SearchRun) error
	Get(ctx context.Context, id string) (*SearchRun, error)
	List(ctx context.Context, limit int) ([]SearchRun, error)
}
