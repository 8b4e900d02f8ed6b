package detection

import (
	"context"
	"fmt"
	"math"
	"time"
)

// phase is the state of the fall state machine.
type phase int

const (
	phaseSearch phase = iota
	phaseImpact
	phaseWait
	phaseMotionless
)

// cancelCheckEvery is the number of steps between context checks.
const cancelCheckEvery = 1024

// Detector runs the threshold fall state machine over a series.
// A Detector holds no scan state and is safe for concurrent use.
type Detector struct {
	cfg             DetectorConfig
	postImpactSteps float64
	motionlessSteps float64
	postureWindow   int
	angleThreshRad  float64
}

// NewDetector constructs a Detector from a validated config.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:             cfg,
		postImpactSteps: cfg.PostImpactSteps(),
		motionlessSteps: cfg.MotionlessSteps(),
		postureWindow:   cfg.PostureWindow(),
		angleThreshRad:  cfg.AngleThreshRad(),
	}, nil
}

// Config returns the detector config.
func (d *Detector) Config() DetectorConfig { return d.cfg }

// Detect scans the series and returns the detected falls in order.
func (d *Detector) Detect(series TimeSeries, mags MagnitudeSeries) ([]FallEvent, error) {
	return d.DetectContext(context.Background(), series, mags)
}

// DetectContext is Detect with cancellation checked during the scan.
func (d *Detector) DetectContext(ctx context.Context, series TimeSeries, mags MagnitudeSeries) ([]FallEvent, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil detector", ErrInvalidConfig)
	}
	n := len(mags)
	if series.Len() != n {
		return nil, fmt.Errorf("%w: %d samples, %d magnitudes", ErrLengthMismatch, series.Len(), n)
	}
	if n == 0 {
		return nil, nil
	}

	s := scan{
		phase:     phaseSearch,
		reference: scale(series.At(0), mags[0]),
		guard:     rewindGuard{max: d.cfg.MaxRewinds, checkpoint: -1},
	}

	for t := 0; t < n; t++ {
		if t%cancelCheckEvery == 0 {
			if err := scanErr(ctx); err != nil {
				return nil, err
			}
		}
		m := mags[t]

		switch s.phase {
		case phaseSearch:
			if m > d.cfg.ImpactThresh {
				s.t1 = t
				s.phase = phaseImpact
			}
		case phaseImpact:
			if t > s.t1 && m < d.cfg.ImpactThresh {
				s.t2 = t
				s.timer = 0
				s.phase = phaseWait
			}
		case phaseWait:
			if s.timer < d.postImpactSteps {
				s.timer++
				continue
			}
			s.timer = 0
			s.phase = phaseMotionless
		case phaseMotionless:
			if s.timer < d.motionlessSteps {
				if math.Abs(m-1) > d.cfg.MotionlessThresh {
					if err := s.guard.rewind(s.t2); err != nil {
						return nil, err
					}
					s.timer = 0
					s.phase = phaseSearch
					// the loop increment resumes the search right after the impact end
					t = s.t2
					continue
				}
				s.timer++
				continue
			}
			if d.postureChanged(series, t, s.reference) {
				s.events = append(s.events, d.completeEvent(s.t1, s.t2))
			}
			s.guard.reset()
			s.timer = 0
			s.phase = phaseSearch
		}
	}

	if s.phase == phaseMotionless {
		s.events = append(s.events, FallEvent{
			ImpactStartIdx: s.t1,
			ImpactEndIdx:   s.t2,
			WaitEndIdx:     int(float64(s.t2) + d.postImpactSteps),
			Truncated:      true,
		})
	}
	return s.events, nil
}

// scanErr reports a passed deadline without waiting for the context timer to fire.
func scanErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}

func (d *Detector) completeEvent(t1, t2 int) FallEvent {
	motionlessEnd := int(float64(t2) + d.postImpactSteps + d.motionlessSteps)
	return FallEvent{
		ImpactStartIdx:   t1,
		ImpactEndIdx:     t2,
		WaitEndIdx:       int(float64(t2) + d.postImpactSteps),
		MotionlessEndIdx: &motionlessEnd,
	}
}

// postureChanged compares the mean orientation of the window ending at t with the reference.
func (d *Detector) postureChanged(series TimeSeries, t int, reference Sample) bool {
	angle := PostureAngle(reference, meanOrientation(series, t, d.postureWindow))
	return angle > d.angleThreshRad
}

// PostureAngle returns the angle in radians between two orientation vectors.
func PostureAngle(a, b Sample) float64 {
	dot := a.X*b.X + a.Y*b.Y + a.Z*b.Z
	dot = math.Max(-1, math.Min(1, dot))
	return math.Abs(math.Acos(dot))
}

// meanOrientation averages up to window samples ending before end, normalized to unit length.
func meanOrientation(series TimeSeries, end, window int) Sample {
	if window > end {
		window = end
	}
	if window <= 0 {
		return scale(series.At(end), series.At(end).Norm())
	}
	var sum Sample
	for i := end - window; i < end; i++ {
		s := series.At(i)
		sum.X += s.X
		sum.Y += s.Y
		sum.Z += s.Z
	}
	n := float64(window)
	mean := Sample{X: sum.X / n, Y: sum.Y / n, Z: sum.Z / n}
	return scale(mean, mean.Norm())
}

func scale(s Sample, norm float64) Sample {
	return Sample{X: s.X / norm, Y: s.Y / norm, Z: s.Z / norm}
}

type scan struct {
	phase     phase
	t1        int
	t2        int
	timer     float64
	reference Sample
	guard     rewindGuard
	events    []FallEvent
}

// rewindGuard counts consecutive rewinds to the same checkpoint.
type rewindGuard struct {
	max        int
	checkpoint int
	count      int
}

func (g *rewindGuard) rewind(checkpoint int) error {
	if checkpoint == g.checkpoint {
		g.count++
	} else {
		g.checkpoint = checkpoint
		g.count = 1
	}
	if g.count > g.max {
		return fmt.Errorf("%w: %d rewinds to index %d", ErrStalledScan, g.count, checkpoint)
	}
	return nil
}

func (g *rewindGuard) reset() {
	g.checkpoint = -1
	g.count = 0
}
