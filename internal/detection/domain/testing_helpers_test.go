package detection

import "testing"

const testFreq = 200.0

var (
	upright = Sample{X: 0, Y: 0, Z: 1}
	lying   = Sample{X: 1, Y: 0, Z: 0}
)

func buildSeries(t *testing.T, n int, fn func(i int) Sample) TimeSeries {
	t.Helper()
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = fn(i)
	}
	series, err := NewTimeSeries(samples, testFreq)
	if err != nil {
		t.Fatalf("new time series: %v", err)
	}
	return series
}

func mustDetector(t *testing.T, impact, motionless, angle float64) *Detector {
	t.Helper()
	cfg, err := NewDetectorConfig(impact, motionless, angle, DefaultPostImpactMS, DefaultMotionlessMS, testFreq)
	if err != nil {
		t.Fatalf("new detector config: %v", err)
	}
	d, err := NewDetector(cfg)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	return d
}

// fallPattern is upright until start, a 3 g spike on [start, start+5) and lying afterwards.
func fallPattern(start int) func(i int) Sample {
	return func(i int) Sample {
		switch {
		case i < start:
			return upright
		case i < start+5:
			return Sample{X: 0, Y: 0, Z: 3}
		default:
			return lying
		}
	}
}
