package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	evaluation "falldetect/internal/evaluation/domain"
	"falldetect/internal/evaluation/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestRunRepository_RoundTrip(t *testing.T) {
	db := openDB(t)
	defer db.Close()
	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx := context.Background()
	_, _ = db.ExecContext(ctx, `DELETE FROM search_runs WHERE id LIKE 'it-%'`)

	repo := postgres.NewRunRepository(db)
	created := time.Date(2026, time.October, 2, 9, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	run := &evaluation.SearchRun{
		ID:         "it-run-1",
		Status:     evaluation.RunStatusRunning,
		CorpusRoot: "SisFall_dataset",
		CorpusSize: 20,
		Grid:       evaluation.DefaultGrid(),
		CreatedAt:  created,
		StartedAt:  &started,
	}
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("save running: %v", err)
	}

	best := &evaluation.ParameterPoint{Index: 4, ImpactThresh: 2, MotionlessThresh: 0.3, AngleThreshDeg: 20,
		Matrix: evaluation.ConfusionMatrix{TP: 10, TN: 10}}
	finished := started.Add(time.Minute)
	run.Status = evaluation.RunStatusSucceeded
	run.Result = &evaluation.SearchResult{BestSensitivity: best, BestAccuracy: best, Cells: 270}
	run.FinishedAt = &finished
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("save succeeded: %v", err)
	}

	got, err := repo.Get(ctx, "it-run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != evaluation.RunStatusSucceeded || got.Result == nil || got.Result.Cells != 270 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.Result.BestSpecificity != nil || got.Result.BestAccuracy.Index != 4 {
		t.Fatalf("unexpected best points: %+v", got.Result)
	}
	if len(got.Grid.Impact) != 6 {
		t.Fatalf("grid not persisted: %+v", got.Grid)
	}

	var points int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_points WHERE run_id = $1`, "it-run-1").Scan(&points); err != nil {
		t.Fatalf("count points: %v", err)
	}
	if points != 2 {
		t.Fatalf("expected 2 best points, got %d", points)
	}

	if _, err := repo.Get(ctx, "it-missing"); !errors.Is(err, evaluation.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return db
}

func applyMigrations(db *sql.DB) error {
	content, err := os.ReadFile(filepath.Join(projectRoot(), "migrations", "001_search_runs.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(content))
	return err
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", "..", ".."))
}
