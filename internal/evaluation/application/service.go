package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	detection "falldetect/internal/detection/domain"
	evaluation "falldetect/internal/evaluation/domain"
	"falldetect/internal/evaluation/infrastructure/cache"
	"falldetect/internal/evaluation/notify"
	"falldetect/internal/observability/metrics"
)

var (
	ErrNilRepository     = errors.New("search service: nil repository")
	ErrNilLoader         = errors.New("search service: nil corpus loader")
	ErrUnsupportedCorpus = errors.New("search service: unsupported corpus kind")
	ErrShuttingDown      = errors.New("search service: shutting down")
)

// SearchRequest starts a search. A nil Grid uses the configured grid.
type SearchRequest struct {
	Grid *evaluation.Grid `json:"grid,omitempty"`
}

// EvaluationResult is the outcome of evaluating one config on the corpus.
type EvaluationResult struct {
	Config     detection.DetectorConfig   `json:"config"`
	CorpusRoot string                     `json:"corpus_root"`
	CorpusSize int                        `json:"corpus_size"`
	Matrix     evaluation.ConfusionMatrix `json:"matrix"`
	Metrics    evaluation.Metrics         `json:"metrics"`
	// Incomplete is set when recordings hit the per-recording timeout and were skipped.
	Incomplete bool `json:"incomplete,omitempty"`
}

// SearchService evaluates configs and runs parameter searches over a corpus.
type SearchService struct {
	repo       evaluation.RunRepository
	loader     CorpusLoader
	evaluator  evaluation.CorpusEvaluator
	cache      ResultCache
	notifier   notify.Notifier
	reports    ReportWriter
	logger     *log.Logger
	detector   detection.DetectorConfig
	grid       evaluation.Grid
	searchOpts []evaluation.SearchOption
	baseURL    string
	now        func() time.Time
	newID      func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceOption configures a SearchService.
type ServiceOption func(*SearchService)

// WithResultCache enables matrix caching.
func WithResultCache(c ResultCache) ServiceOption {
	return func(s *SearchService) {
		s.cache = c
	}
}

// WithNotifier sends a message when a run finishes.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *SearchService) {
		s.notifier = n
	}
}

// WithReportWriter archives reports of successful runs.
func WithReportWriter(w ReportWriter) ServiceOption {
	return func(s *SearchService) {
		s.reports = w
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *log.Logger) ServiceOption {
	return func(s *SearchService) {
		s.logger = logger
	}
}

// WithDetectorDefaults sets the config that evaluation requests start from.
func WithDetectorDefaults(cfg detection.DetectorConfig) ServiceOption {
	return func(s *SearchService) {
		s.detector = cfg.WithDefaults()
	}
}

// WithGrid sets the default search grid.
func WithGrid(grid evaluation.Grid) ServiceOption {
	return func(s *SearchService) {
		s.grid = grid
	}
}

// WithSearchOptions forwards options to every Search.
func WithSearchOptions(opts ...evaluation.SearchOption) ServiceOption {
	return func(s *SearchService) {
		s.searchOpts = append(s.searchOpts, opts...)
	}
}

// WithPublicBaseURL sets the base of report links in notifications.
func WithPublicBaseURL(url string) ServiceOption {
	return func(s *SearchService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *SearchService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *SearchService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewSearchService constructs a SearchService.
func NewSearchService(repo evaluation.RunRepository, loader CorpusLoader, evaluator evaluation.CorpusEvaluator, opts ...ServiceOption) (*SearchService, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	if loader == nil {
		return nil, ErrNilLoader
	}
	if evaluator == nil {
		return nil, evaluation.ErrNilEvaluator
	}
	s := &SearchService{
		repo:      repo,
		loader:    loader,
		evaluator: evaluator,
		detector:  detection.DefaultDetectorConfig(),
		grid:      evaluation.DefaultGrid(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.grid.Validate(); err != nil {
		return nil, err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// DetectorDefaults returns the config evaluation requests start from.
func (s *SearchService) DetectorDefaults() detection.DetectorConfig {
	return s.detector
}

// Grid returns the default search grid.
func (s *SearchService) Grid() evaluation.Grid {
	return s.grid
}

// Evaluate scores one config on the corpus.
func (s *SearchService) Evaluate(ctx context.Context, cfg detection.DetectorConfig) (EvaluationResult, error) {
	started := time.Now()
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return EvaluationResult{}, err
	}
	corpus, err := s.loader.Load(ctx)
	if err != nil {
		metrics.ObserveEvaluation(metrics.ResultError, time.Since(started))
		return EvaluationResult{}, err
	}
	matrix, err := s.corpusEvaluator(corpus).Evaluate(ctx, corpus, cfg)
	incomplete := errors.Is(err, evaluation.ErrRecordingTimeout)
	if err != nil && !incomplete {
		metrics.ObserveEvaluation(metrics.ResultError, time.Since(started))
		s.logf("event=evaluation_failed corpus=%s error=%v", s.loader.Root(), err)
		return EvaluationResult{}, err
	}
	if incomplete {
		s.logf("event=evaluation_incomplete corpus=%s error=%v", s.loader.Root(), err)
	}
	metrics.ObserveEvaluation(metrics.ResultSuccess, time.Since(started))
	s.logf("event=evaluation_done corpus=%s recordings=%d tp=%d tn=%d fp=%d fn=%d skipped=%d",
		s.loader.Root(), len(corpus), matrix.TP, matrix.TN, matrix.FP, matrix.FN, matrix.Skipped)
	return EvaluationResult{
		Config:     cfg,
		CorpusRoot: s.loader.Root(),
		CorpusSize: len(corpus),
		Matrix:     matrix,
		Metrics:    matrix.Metrics(),
		Incomplete: incomplete,
	}, nil
}

// Run executes a search synchronously and returns the finished run.
func (s *SearchService) Run(ctx context.Context, req SearchRequest) (*evaluation.SearchRun, error) {
	run, grid, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, run, grid); err != nil {
		return run, err
	}
	return run, nil
}

// Start creates a run and executes it in the background. The returned run is a snapshot
// in the created state; poll Get for progress.
func (s *SearchService) Start(ctx context.Context, req SearchRequest) (*evaluation.SearchRun, error) {
	if s.ctx.Err() != nil {
		return nil, ErrShuttingDown
	}
	run, grid, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *run
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.execute(s.ctx, run, grid)
	}()
	return &snapshot, nil
}

// Get returns a run by id.
func (s *SearchService) Get(ctx context.Context, id string) (*evaluation.SearchRun, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent runs, newest first.
func (s *SearchService) List(ctx context.Context, limit int) ([]evaluation.SearchRun, error) {
	return s.repo.List(ctx, limit)
}

// Shutdown cancels background runs and waits for them to record their final state.
func (s *SearchService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SearchService) prepare(ctx context.Context, req SearchRequest) (*evaluation.SearchRun, evaluation.Grid, error) {
	grid := s.grid
	if req.Grid != nil {
		grid = *req.Grid
		if grid.Base == (detection.DetectorConfig{}) {
			grid.Base = s.grid.Base
		}
	}
	if err := grid.Validate(); err != nil {
		return nil, grid, err
	}
	run := &evaluation.SearchRun{
		ID:         s.newID(),
		Status:     evaluation.RunStatusCreated,
		CorpusRoot: s.loader.Root(),
		Grid:       grid,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, grid, err
	}
	metrics.IncSearchRun(string(evaluation.RunStatusCreated))
	s.logf("event=search_run_created run_id=%s cells=%d", run.ID, grid.Size())
	return run, grid, nil
}

func (s *SearchService) execute(ctx context.Context, run *evaluation.SearchRun, grid evaluation.Grid) error {
	persistCtx := context.WithoutCancel(ctx)
	started := s.now()
	run.Status = evaluation.RunStatusRunning
	run.StartedAt = &started
	if err := s.repo.Save(ctx, run); err != nil {
		return s.fail(persistCtx, run, err)
	}
	metrics.IncSearchRun(string(evaluation.RunStatusRunning))
	s.logf("event=search_run_start run_id=%s corpus=%s", run.ID, run.CorpusRoot)

	corpus, err := s.loader.Load(ctx)
	if err != nil {
		return s.fail(persistCtx, run, err)
	}
	run.CorpusSize = len(corpus)

	search, err := evaluation.NewSearch(s.corpusEvaluator(corpus), s.searchOpts...)
	if err != nil {
		return s.fail(persistCtx, run, err)
	}
	result, err := search.Run(ctx, grid, corpus)
	if err != nil {
		run.Result = &result
		return s.fail(persistCtx, run, err)
	}

	finished := s.now()
	run.Result = &result
	run.Status = evaluation.RunStatusSucceeded
	run.FinishedAt = &finished
	if err := s.repo.Save(persistCtx, run); err != nil {
		return s.fail(persistCtx, run, err)
	}
	metrics.IncSearchRun(string(evaluation.RunStatusSucceeded))
	metrics.ObserveSearchRun(finished.Sub(started))
	best := bestMetrics(result)
	for objective, value := range best {
		metrics.SetSearchBest(objective, value)
	}
	s.logf("event=search_run_success run_id=%s recordings=%d cells=%d invalid_cells=%d",
		run.ID, run.CorpusSize, result.Cells, result.InvalidCells)

	if s.reports != nil {
		location, err := s.reports.WriteReports(persistCtx, run)
		if err != nil {
			s.logf("event=search_report_failed run_id=%s error=%v", run.ID, err)
		} else {
			s.logf("event=search_report_written run_id=%s location=%s", run.ID, location)
		}
	}
	s.notify(persistCtx, run, best)
	return nil
}

func (s *SearchService) fail(ctx context.Context, run *evaluation.SearchRun, cause error) error {
	finished := s.now()
	run.Status = evaluation.RunStatusFailed
	run.Error = cause.Error()
	run.FinishedAt = &finished
	if err := s.repo.Save(ctx, run); err != nil {
		s.logf("event=search_run_save_failed run_id=%s error=%v", run.ID, err)
	}
	metrics.IncSearchRun(string(evaluation.RunStatusFailed))
	s.logf("event=search_run_failed run_id=%s error=%v", run.ID, cause)
	s.notify(ctx, run, nil)
	return fmt.Errorf("search run %s: %w", run.ID, cause)
}

func (s *SearchService) notify(ctx context.Context, run *evaluation.SearchRun, best map[string]float64) {
	if s.notifier == nil {
		return
	}
	msg := notify.SearchMessage{
		RunID:      run.ID,
		Status:     string(run.Status),
		CorpusRoot: run.CorpusRoot,
		CorpusSize: run.CorpusSize,
		Best:       best,
		Error:      run.Error,
	}
	if run.Result != nil {
		msg.Cells = run.Result.Cells
	}
	if run.Status == evaluation.RunStatusSucceeded && s.baseURL != "" {
		msg.ReportURL = fmt.Sprintf("%s/api/v1/searches/%s/export.xlsx", s.baseURL, run.ID)
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logf("event=search_notify_failed run_id=%s error=%v", run.ID, err)
	}
}

func (s *SearchService) corpusEvaluator(corpus []evaluation.Recording) evaluation.CorpusEvaluator {
	if s.cache == nil {
		return s.evaluator
	}
	return cachedEvaluator{
		inner:       s.evaluator,
		cache:       s.cache,
		fingerprint: cache.Fingerprint(corpus),
		logger:      s.logger,
	}
}

func (s *SearchService) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func bestMetrics(result evaluation.SearchResult) map[string]float64 {
	best := make(map[string]float64, len(evaluation.Objectives))
	for _, objective := range evaluation.Objectives {
		point := result.Best(objective)
		if point == nil {
			continue
		}
		best[string(objective)] = objective.Metric(point.Matrix)
	}
	return best
}
