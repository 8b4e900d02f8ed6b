package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	evaluation "falldetect/internal/evaluation/domain"
)

// RunRepository persists search runs in Postgres.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save upserts a run and replaces its best points.
func (r *RunRepository) Save(ctx context.Context, run *evaluation.SearchRun) error {
	if r == nil || r.db == nil {
		return errors.New("search run repo: nil db")
	}
	if run == nil {
		return errors.New("search run repo: nil run")
	}
	if run.ID == "" {
		return evaluation.ErrEmptyRunID
	}
	gridJSON, err := json.Marshal(run.Grid)
	if err != nil {
		return err
	}
	var resultJSON []byte
	if run.Result != nil {
		resultJSON, err = json.Marshal(run.Result)
		if err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO search_runs (
	id, status, corpus_root, corpus_size, grid, result, error, created_at, started_at, finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	corpus_root = EXCLUDED.corpus_root,
	corpus_size = EXCLUDED.corpus_size,
	grid = EXCLUDED.grid,
	result = EXCLUDED.result,
	error = EXCLUDED.error,
	started_at = EXCLUDED.started_at,
	finished_at = EXCLUDED.finished_at`,
		run.ID, string(run.Status), run.CorpusRoot, run.CorpusSize, gridJSON, nullableJSON(resultJSON), run.Error,
		run.CreatedAt, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM search_points WHERE run_id = $1`, run.ID); err != nil {
		return err
	}
	if run.Result != nil {
		for _, objective := range evaluation.Objectives {
			point := run.Result.Best(objective)
			if point == nil {
				continue
			}
			_, err := tx.ExecContext(ctx, `
INSERT INTO search_points (
	run_id, objective, cell_index, impact_thresh, motionless_thresh, angle_thresh_deg, tp, tn, fp, fn, skipped
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`,
				run.ID, string(objective), point.Index, point.ImpactThresh, point.MotionlessThresh, point.AngleThreshDeg,
				point.Matrix.TP, point.Matrix.TN, point.Matrix.FP, point.Matrix.FN, point.Matrix.Skipped,
			)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Get loads a run by id.
func (r *RunRepository) Get(ctx context.Context, id string) (*evaluation.SearchRun, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("search run repo: nil db")
	}
	if id == "" {
		return nil, evaluation.ErrEmptyRunID
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, status, corpus_root, corpus_size, grid, result, error, created_at, started_at, finished_at
FROM search_runs
WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, evaluation.ErrRunNotFound
	}
	return run, err
}

// List returns the newest runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]evaluation.SearchRun, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("search run repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, status, corpus_root, corpus_size, grid, result, error, created_at, started_at, finished_at
FROM search_runs
ORDER BY created_at DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []evaluation.SearchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*evaluation.SearchRun, error) {
	var (
		run        evaluation.SearchRun
		status     string
		gridJSON   []byte
		resultJSON []byte
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := row.Scan(&run.ID, &status, &run.CorpusRoot, &run.CorpusSize, &gridJSON, &resultJSON, &run.Error,
		&run.CreatedAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Status = evaluation.RunStatus(status)
	if len(gridJSON) > 0 {
		if err := json.Unmarshal(gridJSON, &run.Grid); err != nil {
			return nil, err
		}
	}
	if len(resultJSON) > 0 {
		var result evaluation.SearchResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, err
		}
		run.Result = &result
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
