package detection

import (
	"errors"
	"math"
	"testing"
)

func TestMagnitude(t *testing.T) {
	series, err := NewTimeSeries([]Sample{{X: 3, Y: 4}, {Z: -2}, {X: math.NaN()}}, 50)
	if err != nil {
		t.Fatalf("new time series: %v", err)
	}
	mags := Magnitude(series)
	if len(mags) != series.Len() {
		t.Fatalf("length mismatch: %d vs %d", len(mags), series.Len())
	}
	if mags[0] != 5 || mags[1] != 2 {
		t.Fatalf("unexpected magnitudes: %v", mags)
	}
	if !math.IsNaN(mags[2]) {
		t.Fatalf("expected NaN to propagate, got %v", mags[2])
	}
}

func TestNewTimeSeries_CopiesInput(t *testing.T) {
	samples := []Sample{{Z: 1}}
	series, err := NewTimeSeries(samples, 100)
	if err != nil {
		t.Fatalf("new time series: %v", err)
	}
	samples[0].Z = 5
	if series.At(0).Z != 1 {
		t.Fatalf("series must not alias caller slice")
	}
	out := series.Samples()
	out[0].Z = 7
	if series.At(0).Z != 1 {
		t.Fatalf("series must not alias returned slice")
	}
}

func TestNewTimeSeries_InvalidFrequency(t *testing.T) {
	for _, fs := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := NewTimeSeries(nil, fs); !errors.Is(err, ErrInvalidSamplingFreq) {
			t.Fatalf("freq %v: expected ErrInvalidSamplingFreq, got %v", fs, err)
		}
	}
}
