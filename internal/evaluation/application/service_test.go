package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	detection "falldetect/internal/detection/domain"
	evaluation "falldetect/internal/evaluation/domain"
	"falldetect/internal/evaluation/infrastructure/cache"
	"falldetect/internal/evaluation/infrastructure/memory"
	"falldetect/internal/evaluation/notify"
)

type stubLoader struct {
	corpus []evaluation.Recording
	err    error
	calls  int32
}

func (l *stubLoader) Load(ctx context.Context) ([]evaluation.Recording, error) {
	atomic.AddInt32(&l.calls, 1)
	if l.err != nil {
		return nil, l.err
	}
	return l.corpus, nil
}

func (l *stubLoader) Root() string { return "testdata/corpus" }

type countingEvaluator struct {
	inner *evaluation.Evaluator
	calls int32
}

func (c *countingEvaluator) Evaluate(ctx context.Context, corpus []evaluation.Recording, cfg detection.DetectorConfig) (evaluation.ConfusionMatrix, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.inner.Evaluate(ctx, corpus, cfg)
}

type stubNotifier struct {
	mu   sync.Mutex
	msgs []notify.SearchMessage
}

func (n *stubNotifier) Notify(ctx context.Context, msg notify.SearchMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

type stubReports struct {
	runs []string
}

func (w *stubReports) WriteReports(ctx context.Context, run *evaluation.SearchRun) (string, error) {
	w.runs = append(w.runs, run.ID)
	return "reports/" + run.ID, nil
}

func TestSearchService_RunSucceeds(t *testing.T) {
	repo := memory.NewRunRepository()
	loader := &stubLoader{corpus: testCorpus(t, 2, 2)}
	notifier := &stubNotifier{}
	reports := &stubReports{}
	svc := newService(t, repo, loader, &countingEvaluator{inner: evaluation.NewEvaluator()},
		WithNotifier(notifier),
		WithReportWriter(reports),
		WithPublicBaseURL("http://example.test/"),
	)

	run, err := svc.Run(context.Background(), SearchRequest{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.ID != "run-1" || run.Status != evaluation.RunStatusSucceeded {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.CorpusSize != 4 || run.StartedAt == nil || run.FinishedAt == nil {
		t.Fatalf("run bookkeeping missing: %+v", run)
	}
	if run.Result == nil || run.Result.Cells != 2 {
		t.Fatalf("unexpected result: %+v", run.Result)
	}
	for _, objective := range evaluation.Objectives {
		best := run.Result.Best(objective)
		if best == nil || best.Index != 0 {
			t.Fatalf("%s: expected cell 0, got %+v", objective, best)
		}
	}

	stored, err := repo.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != evaluation.RunStatusSucceeded {
		t.Fatalf("stored status: %s", stored.Status)
	}
	if len(reports.runs) != 1 || reports.runs[0] != "run-1" {
		t.Fatalf("expected one report for run-1, got %v", reports.runs)
	}
	if len(notifier.msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.msgs))
	}
	msg := notifier.msgs[0]
	if msg.Status != "succeeded" || msg.ReportURL != "http://example.test/api/v1/searches/run-1/export.xlsx" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Best["accuracy"] != 1 {
		t.Fatalf("expected best accuracy 1, got %v", msg.Best)
	}
}

func TestSearchService_RunRecordsLoaderFailure(t *testing.T) {
	repo := memory.NewRunRepository()
	loadErr := errors.New("corpus unavailable")
	notifier := &stubNotifier{}
	svc := newService(t, repo, &stubLoader{err: loadErr}, evaluation.NewEvaluator(), WithNotifier(notifier))

	run, err := svc.Run(context.Background(), SearchRequest{})
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if run == nil || run.Status != evaluation.RunStatusFailed || !strings.Contains(run.Error, "corpus unavailable") {
		t.Fatalf("unexpected run: %+v", run)
	}
	stored, err := repo.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != evaluation.RunStatusFailed || stored.FinishedAt == nil {
		t.Fatalf("failure not persisted: %+v", stored)
	}
	if len(notifier.msgs) != 1 || notifier.msgs[0].Status != "failed" || notifier.msgs[0].ReportURL != "" {
		t.Fatalf("unexpected notifications: %+v", notifier.msgs)
	}
}

func TestSearchService_RunRejectsInvalidGrid(t *testing.T) {
	repo := memory.NewRunRepository()
	svc := newService(t, repo, &stubLoader{}, evaluation.NewEvaluator())

	grid := evaluation.Grid{Impact: []float64{2}, Motionless: []float64{0.3}}
	if _, err := svc.Run(context.Background(), SearchRequest{Grid: &grid}); !errors.Is(err, evaluation.ErrInvalidGrid) {
		t.Fatalf("expected ErrInvalidGrid, got %v", err)
	}
	runs, err := repo.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("invalid request must not create a run, got %d", len(runs))
	}
}

func TestSearchService_StartRunsInBackground(t *testing.T) {
	repo := memory.NewRunRepository()
	svc := newService(t, repo, &stubLoader{corpus: testCorpus(t, 1, 1)}, evaluation.NewEvaluator())

	run, err := svc.Start(context.Background(), SearchRequest{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.Status != evaluation.RunStatusCreated {
		t.Fatalf("expected created snapshot, got %s", run.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		stored, err := svc.Get(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if stored.Status == evaluation.RunStatusSucceeded {
			break
		}
		if stored.Status == evaluation.RunStatusFailed {
			t.Fatalf("run failed: %s", stored.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not finish, status=%s", stored.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := svc.Start(context.Background(), SearchRequest{}); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
}

func TestSearchService_EvaluateUsesCache(t *testing.T) {
	counter := &countingEvaluator{inner: evaluation.NewEvaluator()}
	resultCache := cache.NewMemoryCache()
	svc := newService(t, memory.NewRunRepository(), &stubLoader{corpus: testCorpus(t, 2, 3)}, counter,
		WithResultCache(resultCache))

	cfg := svc.DetectorDefaults()
	cfg.ImpactThresh = 2
	first, err := svc.Evaluate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := svc.Evaluate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("evaluate again: %v", err)
	}
	if first.Matrix != second.Matrix {
		t.Fatalf("cached matrix differs: %+v vs %+v", first.Matrix, second.Matrix)
	}
	if got := atomic.LoadInt32(&counter.calls); got != 1 {
		t.Fatalf("expected 1 evaluation, got %d", got)
	}
	if resultCache.Len() != 1 {
		t.Fatalf("expected 1 cache entry, got %d", resultCache.Len())
	}
	want := evaluation.ConfusionMatrix{TP: 2, TN: 3}
	if first.Matrix != want || first.CorpusSize != 5 {
		t.Fatalf("unexpected result: %+v", first)
	}
	if first.Metrics.Accuracy == nil || *first.Metrics.Accuracy != 1 {
		t.Fatalf("unexpected metrics: %+v", first.Metrics)
	}
}

func TestSearchService_EvaluateRejectsInvalidConfig(t *testing.T) {
	loader := &stubLoader{}
	svc := newService(t, memory.NewRunRepository(), loader, evaluation.NewEvaluator())

	cfg := svc.DetectorDefaults()
	cfg.SamplingFreq = 0
	if _, err := svc.Evaluate(context.Background(), cfg); !errors.Is(err, detection.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if atomic.LoadInt32(&loader.calls) != 0 {
		t.Fatalf("corpus must not load for an invalid config")
	}
}

func TestNewSearchService_RequiresDependencies(t *testing.T) {
	if _, err := NewSearchService(nil, &stubLoader{}, evaluation.NewEvaluator()); !errors.Is(err, ErrNilRepository) {
		t.Fatalf("expected ErrNilRepository, got %v", err)
	}
	if _, err := NewSearchService(memory.NewRunRepository(), nil, evaluation.NewEvaluator()); !errors.Is(err, ErrNilLoader) {
		t.Fatalf("expected ErrNilLoader, got %v", err)
	}
	if _, err := NewSearchService(memory.NewRunRepository(), &stubLoader{}, nil); !errors.Is(err, evaluation.ErrNilEvaluator) {
		t.Fatalf("expected ErrNilEvaluator, got %v", err)
	}
}

func newService(t *testing.T, repo evaluation.RunRepository, loader CorpusLoader, evaluator evaluation.CorpusEvaluator, opts ...ServiceOption) *SearchService {
	t.Helper()
	var seq int32
	grid := evaluation.DefaultGrid()
	grid.Impact = []float64{2, 4}
	grid.Motionless = []float64{0.3}
	grid.Angle = []float64{20}
	base := []ServiceOption{
		WithGrid(grid),
		WithIDGenerator(func() string { return fmt.Sprintf("run-%d", atomic.AddInt32(&seq, 1)) }),
		WithSearchOptions(evaluation.WithSearchWorkers(2)),
	}
	svc, err := NewSearchService(repo, loader, evaluator, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new search service: %v", err)
	}
	return svc
}

func testCorpus(t *testing.T, falls, adls int) []evaluation.Recording {
	t.Helper()
	var corpus []evaluation.Recording
	for i := 0; i < falls; i++ {
		samples := make([]detection.Sample, 1000)
		for j := range samples {
			switch {
			case j < 100:
				samples[j] = detection.Sample{Z: 1}
			case j < 105:
				samples[j] = detection.Sample{Z: 3}
			default:
				samples[j] = detection.Sample{X: 1}
			}
		}
		corpus = append(corpus, recording(t, fmt.Sprintf("F%02d", i), evaluation.LabelFall, samples))
	}
	for i := 0; i < adls; i++ {
		samples := make([]detection.Sample, 1000)
		for j := range samples {
			samples[j] = detection.Sample{Z: 1}
		}
		corpus = append(corpus, recording(t, fmt.Sprintf("D%02d", i), evaluation.LabelADL, samples))
	}
	return corpus
}

func recording(t *testing.T, id string, label evaluation.Label, samples []detection.Sample) evaluation.Recording {
	t.Helper()
	series, err := detection.NewTimeSeries(samples, 200)
	if err != nil {
		t.Fatalf("new time series: %v", err)
	}
	return evaluation.Recording{ID: id, Label: label, Series: series}
}
