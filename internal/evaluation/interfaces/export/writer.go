package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	evaluation "falldetect/internal/evaluation/domain"
	"falldetect/internal/observability/metrics"
)

// FileWriter archives run reports under a storage root, one directory per run.
type FileWriter struct {
	root string
}

// NewFileWriter constructs a FileWriter.
func NewFileWriter(root string) (*FileWriter, error) {
	if root == "" {
		return nil, errors.New("export: empty storage root")
	}
	return &FileWriter{root: root}, nil
}

// WriteReports writes search.xlsx and search.pdf and returns the run directory.
func (w *FileWriter) WriteReports(ctx context.Context, run *evaluation.SearchRun) (string, error) {
	if run == nil || run.ID == "" {
		return "", evaluation.ErrEmptyRunID
	}
	dir := filepath.Join(w.root, run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	builders := []struct {
		format string
		name   string
		build  func(*evaluation.SearchRun) ([]byte, error)
	}{
		{"xlsx", "search.xlsx", BuildSearchXLSX},
		{"pdf", "search.pdf", BuildSearchPDF},
	}
	for _, b := range builders {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		started := time.Now()
		data, err := b.build(run)
		if err == nil {
			err = os.WriteFile(filepath.Join(dir, b.name), data, 0o644)
		}
		if err != nil {
			metrics.ObserveSearchExport(b.format, metrics.ResultError, time.Since(started))
			return "", err
		}
		metrics.ObserveSearchExport(b.format, metrics.ResultSuccess, time.Since(started))
	}
	return dir, nil
}
