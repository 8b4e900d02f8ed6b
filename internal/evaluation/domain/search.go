package evaluation

import (
	"context"
	"errors"
	"log"
	"math"
	"runtime"
	"sync"
	"time"

	detection "falldetect/internal/detection/domain"
)

// CorpusEvaluator evaluates one detector config on a corpus.
type CorpusEvaluator interface {
	Evaluate(ctx context.Context, corpus []Recording, cfg detection.DetectorConfig) (ConfusionMatrix, error)
}

// Objective is a metric maximized by the search.
type Objective string

const (
	ObjectiveSensitivity Objective = "sensitivity"
	ObjectiveSpecificity Objective = "specificity"
	ObjectiveAccuracy    Objective = "accuracy"
)

// Objectives lists the objectives in report order.
var Objectives = []Objective{ObjectiveSensitivity, ObjectiveSpecificity, ObjectiveAccuracy}

// Metric reads the objective's metric from a matrix.
func (o Objective) Metric(m ConfusionMatrix) float64 {
	switch o {
	case ObjectiveSensitivity:
		return m.Sensitivity()
	case ObjectiveSpecificity:
		return m.Specificity()
	case ObjectiveAccuracy:
		return m.Accuracy()
	default:
		return math.NaN()
	}
}

// ParameterPoint is a grid cell with the matrix obtained on the full corpus.
type ParameterPoint struct {
	Index            int             `json:"index"`
	ImpactThresh     float64         `json:"impact_thresh"`
	MotionlessThresh float64         `json:"motionless_thresh"`
	AngleThreshDeg   float64         `json:"angle_thresh_deg"`
	Matrix           ConfusionMatrix `json:"matrix"`
}

// SearchResult holds the best point per objective. A nil point means no cell had a defined metric.
type SearchResult struct {
	BestSensitivity *ParameterPoint `json:"best_sensitivity"`
	BestSpecificity *ParameterPoint `json:"best_specificity"`
	BestAccuracy    *ParameterPoint `json:"best_accuracy"`
	Cells           int             `json:"cells"`
	InvalidCells    int             `json:"invalid_cells"`
}

// Best returns the best point for an objective.
func (r SearchResult) Best(o Objective) *ParameterPoint {
	switch o {
	case ObjectiveSensitivity:
		return r.BestSensitivity
	case ObjectiveSpecificity:
		return r.BestSpecificity
	case ObjectiveAccuracy:
		return r.BestAccuracy
	default:
		return nil
	}
}

// Fold merges one evaluated point. Folding is commutative.
func (r SearchResult) Fold(p ParameterPoint) SearchResult {
	r.Cells++
	r.BestSensitivity = pickBetter(ObjectiveSensitivity, r.BestSensitivity, p)
	r.BestSpecificity = pickBetter(ObjectiveSpecificity, r.BestSpecificity, p)
	r.BestAccuracy = pickBetter(ObjectiveAccuracy, r.BestAccuracy, p)
	return r
}

// pickBetter keeps the larger defined metric; equal metrics keep the earlier cell.
func pickBetter(o Objective, current *ParameterPoint, candidate ParameterPoint) *ParameterPoint {
	cm := o.Metric(candidate.Matrix)
	if !IsDefined(cm) {
		return current
	}
	if current == nil {
		return &candidate
	}
	bm := o.Metric(current.Matrix)
	if cm > bm || (cm == bm && candidate.Index < current.Index) {
		return &candidate
	}
	return current
}

// CellResult reports the evaluation of one grid cell.
type CellResult struct {
	Point    ParameterPoint
	Invalid  bool
	Err      error
	Duration time.Duration
}

// CellObserver receives every cell result from the collecting goroutine.
type CellObserver func(CellResult)

// Search sweeps a grid exhaustively.
type Search struct {
	evaluator   CorpusEvaluator
	workers     int
	cellTimeout time.Duration
	logger      *log.Logger
	observer    CellObserver
}

// SearchOption configures a Search.
type SearchOption func(*Search)

// WithSearchWorkers sets the number of cells evaluated concurrently.
func WithSearchWorkers(n int) SearchOption {
	return func(s *Search) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithCellTimeout bounds the evaluation of one cell.
func WithCellTimeout(d time.Duration) SearchOption {
	return func(s *Search) {
		if d > 0 {
			s.cellTimeout = d
		}
	}
}

// WithSearchLogger sets the search logger.
func WithSearchLogger(logger *log.Logger) SearchOption {
	return func(s *Search) {
		s.logger = logger
	}
}

// WithCellObserver registers a per-cell callback.
func WithCellObserver(observer CellObserver) SearchOption {
	return func(s *Search) {
		s.observer = observer
	}
}

// NewSearch constructs a Search.
func NewSearch(evaluator CorpusEvaluator, opts ...SearchOption) (*Search, error) {
	if evaluator == nil {
		return nil, ErrNilEvaluator
	}
	s := &Search{evaluator: evaluator, workers: runtime.NumCPU()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Run evaluates every cell of the grid on the corpus.
// Cells with an invalid config are counted and skipped; a timed out cell keeps its partial
// matrix with the unfinished recordings skipped. Only a cancelled ctx aborts the run.
func (s *Search) Run(ctx context.Context, grid Grid, corpus []Recording) (SearchResult, error) {
	if err := grid.Validate(); err != nil {
		return SearchResult{}, err
	}
	if s.evaluator == nil {
		return SearchResult{}, ErrNilEvaluator
	}
	cells := grid.Cells()

	workers := s.workers
	if workers > len(cells) {
		workers = len(cells)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan Cell)
	results := make(chan CellResult, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for cell := range jobs {
				results <- s.runCell(ctx, grid, cell, corpus)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, cell := range cells {
			select {
			case jobs <- cell:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var result SearchResult
	for res := range results {
		if s.observer != nil {
			s.observer(res)
		}
		if res.Invalid {
			result.InvalidCells++
			continue
		}
		if res.Err != nil {
			continue
		}
		result = result.Fold(res.Point)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Search) runCell(ctx context.Context, grid Grid, cell Cell, corpus []Recording) CellResult {
	started := time.Now()
	point := ParameterPoint{
		Index:            cell.Index,
		ImpactThresh:     cell.ImpactThresh,
		MotionlessThresh: cell.MotionlessThresh,
		AngleThreshDeg:   cell.AngleThreshDeg,
	}

	cfg := grid.Config(cell)
	if err := cfg.Validate(); err != nil {
		s.logf("event=search_cell_invalid index=%d impact=%v motionless=%v angle=%v error=%v",
			cell.Index, cell.ImpactThresh, cell.MotionlessThresh, cell.AngleThreshDeg, err)
		return CellResult{Point: point, Invalid: true, Err: err, Duration: time.Since(started)}
	}

	cctx := ctx
	if s.cellTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.cellTimeout)
		defer cancel()
	}

	matrix, err := s.evaluator.Evaluate(cctx, corpus, cfg)
	point.Matrix = matrix
	if err != nil {
		if ctx.Err() != nil {
			return CellResult{Point: point, Err: ctx.Err(), Duration: time.Since(started)}
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return CellResult{Point: point, Err: err, Duration: time.Since(started)}
		}
		s.logf("event=search_cell_timeout index=%d skipped=%d", cell.Index, matrix.Skipped)
	}
	return CellResult{Point: point, Duration: time.Since(started)}
}

func (s *Search) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
