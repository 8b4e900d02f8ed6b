package detection

import "math"

// Sample is one tri-axial acceleration reading in g.
type Sample struct {
	X float64
	Y float64
	Z float64
}

// Norm returns the Euclidean norm of the sample.
func (s Sample) Norm() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// TimeSeries is an immutable ordered sequence of samples taken at a fixed rate.
type TimeSeries struct {
	samples      []Sample
	samplingFreq float64
}

// NewTimeSeries copies samples into a new series.
func NewTimeSeries(samples []Sample, samplingFreq float64) (TimeSeries, error) {
	if !(samplingFreq > 0) || math.IsInf(samplingFreq, 0) {
		return TimeSeries{}, ErrInvalidSamplingFreq
	}
	copied := make([]Sample, len(samples))
	copy(copied, samples)
	return TimeSeries{samples: copied, samplingFreq: samplingFreq}, nil
}

// Len returns the number of samples.
func (ts TimeSeries) Len() int { return len(ts.samples) }

// At returns the sample at index i.
func (ts TimeSeries) At(i int) Sample { return ts.samples[i] }

// SamplingFreq returns the sampling frequency in Hz.
func (ts TimeSeries) SamplingFreq() float64 { return ts.samplingFreq }

// Samples returns a copy of the samples.
func (ts TimeSeries) Samples() []Sample {
	out := make([]Sample, len(ts.samples))
	copy(out, ts.samples)
	return out
}

// MagnitudeSeries holds one magnitude per sample of a TimeSeries.
type MagnitudeSeries []float64

// Magnitude derives the magnitude series. NaN and Inf propagate unmodified.
func Magnitude(series TimeSeries) MagnitudeSeries {
	mags := make(MagnitudeSeries, len(series.samples))
	for i, s := range series.samples {
		mags[i] = s.Norm()
	}
	return mags
}
