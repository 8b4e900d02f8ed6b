package application

import (
	"context"

	evaluation "falldetect/internal/evaluation/domain"
)

// CorpusLoader loads a labeled corpus.
type CorpusLoader interface {
	Load(ctx context.Context) ([]evaluation.Recording, error)
	Root() string
}

// ResultCache stores confusion matrices by key.
type ResultCache interface {
	Get(ctx context.Context, key string) (evaluation.ConfusionMatrix, bool, error)
	Set(ctx context.Context, key string, m evaluation.ConfusionMatrix) error
}

// ReportWriter archives the reports of a finished run and returns their location.
type ReportWriter interface {
	WriteReports(ctx context.Context, run *evaluation.SearchRun) (string, error)
}
