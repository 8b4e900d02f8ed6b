package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	detection "falldetect/internal/detection/domain"
)

// RecordingResult is the outcome of evaluating one recording.
type RecordingResult struct {
	RecordingID string
	Label       Label
	Events      int
	Outcome     Outcome
	Err         error
	TimedOut    bool
	Duration    time.Duration
}

// RecordingObserver receives every recording result. It may be called concurrently.
type RecordingObserver func(RecordingResult)

// Evaluator runs the detector over a labeled corpus.
type Evaluator struct {
	workers          int
	recordingTimeout time.Duration
	logger           *log.Logger
	observer         RecordingObserver
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithWorkers sets the number of concurrent recording workers.
func WithWorkers(n int) EvaluatorOption {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRecordingTimeout bounds the detection time of a single recording.
func WithRecordingTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.recordingTimeout = d
		}
	}
}

// WithLogger sets the evaluator logger.
func WithLogger(logger *log.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithRecordingObserver registers a per-recording callback.
func WithRecordingObserver(observer RecordingObserver) EvaluatorOption {
	return func(e *Evaluator) {
		e.observer = observer
	}
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{workers: runtime.NumCPU()}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate classifies every recording and folds the outcomes into a confusion matrix.
// Broken recordings are counted as skipped. If ctx ends early the recordings not evaluated
// are counted as skipped and ctx.Err() is returned with the partial matrix.
// Recordings that hit the per-recording timeout are skipped too; the matrix is then returned
// with an error wrapping ErrRecordingTimeout and context.DeadlineExceeded.
//
// cfg.SamplingFreq is ignored: step counts follow each recording's own rate.
func (e *Evaluator) Evaluate(ctx context.Context, corpus []Recording, cfg detection.DetectorConfig) (ConfusionMatrix, error) {
	if err := cfg.Validate(); err != nil {
		return ConfusionMatrix{}, err
	}
	if len(corpus) == 0 {
		return ConfusionMatrix{}, nil
	}

	workers := e.workers
	if workers > len(corpus) {
		workers = len(corpus)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	results := make(chan RecordingResult, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- e.evaluateOne(ctx, corpus[idx], cfg)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for idx := range corpus {
			select {
			case jobs <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var matrix ConfusionMatrix
	received, timedOut := 0, 0
	for res := range results {
		received++
		if res.TimedOut {
			timedOut++
		}
		matrix = matrix.Record(res.Outcome)
		if e.observer != nil {
			e.observer(res)
		}
	}

	if err := ctx.Err(); err != nil {
		matrix.Skipped += len(corpus) - received
		return matrix, err
	}
	if timedOut > 0 {
		return matrix, fmt.Errorf("%w: %d of %d recordings: %w", ErrRecordingTimeout, timedOut, len(corpus), context.DeadlineExceeded)
	}
	return matrix, nil
}

// EvaluateRecording runs the detector on one recording.
func (e *Evaluator) EvaluateRecording(ctx context.Context, rec Recording, cfg detection.DetectorConfig) (RecordingResult, error) {
	if err := cfg.Validate(); err != nil {
		return RecordingResult{}, err
	}
	return e.evaluateOne(ctx, rec, cfg), nil
}

func (e *Evaluator) evaluateOne(ctx context.Context, rec Recording, cfg detection.DetectorConfig) RecordingResult {
	started := time.Now()
	result := RecordingResult{RecordingID: rec.ID, Label: rec.Label, Outcome: OutcomeSkipped}

	if err := rec.Validate(); err != nil {
		return e.skip(result, err, started)
	}

	// thresholds are durations, so the recording's own rate wins
	cfg.SamplingFreq = rec.Series.SamplingFreq()
	detector, err := detection.NewDetector(cfg)
	if err != nil {
		return e.skip(result, fmt.Errorf("%w: %s: %w", ErrRecordingFailure, rec.ID, err), started)
	}

	rctx := ctx
	if e.recordingTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, e.recordingTimeout)
		defer cancel()
	}

	events, err := detector.DetectContext(rctx, rec.Series, detection.Magnitude(rec.Series))
	if err != nil {
		result.TimedOut = errors.Is(err, context.DeadlineExceeded) && !expired(ctx)
		return e.skip(result, fmt.Errorf("%w: %s: %w", ErrRecordingFailure, rec.ID, err), started)
	}

	result.Events = len(events)
	result.Outcome = Classify(rec.Label, len(events) > 0)
	result.Duration = time.Since(started)
	return result
}

// expired reports whether ctx itself is done, as opposed to the per-recording timeout.
func expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

func (e *Evaluator) skip(result RecordingResult, err error, started time.Time) RecordingResult {
	result.Outcome = OutcomeSkipped
	result.Err = err
	result.Duration = time.Since(started)
	e.logf("event=recording_skipped recording_id=%s error=%v", result.RecordingID, err)
	return result
}

func (e *Evaluator) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
