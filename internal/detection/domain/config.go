package detection

import (
	"fmt"
	"math"
)

// Defaults of the threshold detector.
const (
	DefaultImpactThresh     = 2.3
	DefaultMotionlessThresh = 0.3
	DefaultAngleThreshDeg   = 20.0
	DefaultPostImpactMS     = 1000.0
	DefaultMotionlessMS     = 1000.0
	DefaultSamplingFreq     = 200.0
	// DefaultPostureWindowMS equals 100 samples at the SisFall rate of 200 Hz.
	DefaultPostureWindowMS = 500.0
	DefaultMaxRewinds      = 64
)

// DetectorConfig fully determines detector behavior.
type DetectorConfig struct {
	ImpactThresh     float64 `json:"impact_thresh" yaml:"impact_thresh"`
	MotionlessThresh float64 `json:"motionless_thresh" yaml:"motionless_thresh"`
	AngleThreshDeg   float64 `json:"angle_thresh_deg" yaml:"angle_thresh_deg"`
	PostImpactMS     float64 `json:"post_impact_ms" yaml:"post_impact_ms"`
	MotionlessMS     float64 `json:"motionless_ms" yaml:"motionless_ms"`
	SamplingFreq     float64 `json:"sampling_freq" yaml:"sampling_freq"`
	PostureWindowMS  float64 `json:"posture_window_ms" yaml:"posture_window_ms"`
	MaxRewinds       int     `json:"max_rewinds" yaml:"max_rewinds"`
}

// DefaultDetectorConfig returns the reference operating point.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ImpactThresh:     DefaultImpactThresh,
		MotionlessThresh: DefaultMotionlessThresh,
		AngleThreshDeg:   DefaultAngleThreshDeg,
		PostImpactMS:     DefaultPostImpactMS,
		MotionlessMS:     DefaultMotionlessMS,
		SamplingFreq:     DefaultSamplingFreq,
		PostureWindowMS:  DefaultPostureWindowMS,
		MaxRewinds:       DefaultMaxRewinds,
	}
}

// NewDetectorConfig builds a validated config. Zero PostureWindowMS and MaxRewinds take defaults.
func NewDetectorConfig(impact, motionless, angleDeg, postImpactMS, motionlessMS, samplingFreq float64) (DetectorConfig, error) {
	cfg := DetectorConfig{
		ImpactThresh:     impact,
		MotionlessThresh: motionless,
		AngleThreshDeg:   angleDeg,
		PostImpactMS:     postImpactMS,
		MotionlessMS:     motionlessMS,
		SamplingFreq:     samplingFreq,
	}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return DetectorConfig{}, err
	}
	return cfg, nil
}

// WithDefaults fills the optional fields left at zero.
func (c DetectorConfig) WithDefaults() DetectorConfig {
	if c.PostureWindowMS == 0 {
		c.PostureWindowMS = DefaultPostureWindowMS
	}
	if c.MaxRewinds == 0 {
		c.MaxRewinds = DefaultMaxRewinds
	}
	return c
}

// WithThresholds returns a copy with the three searchable thresholds replaced.
func (c DetectorConfig) WithThresholds(impact, motionless, angleDeg float64) DetectorConfig {
	c.ImpactThresh = impact
	c.MotionlessThresh = motionless
	c.AngleThreshDeg = angleDeg
	return c
}

// Validate checks every field against its range.
func (c DetectorConfig) Validate() error {
	switch {
	case !finite(c.ImpactThresh) || c.ImpactThresh <= 0:
		return fmt.Errorf("%w: impact_thresh %v must be > 0", ErrInvalidConfig, c.ImpactThresh)
	case !finite(c.MotionlessThresh) || c.MotionlessThresh <= 0 || c.MotionlessThresh >= 1:
		return fmt.Errorf("%w: motionless_thresh %v must be in (0,1)", ErrInvalidConfig, c.MotionlessThresh)
	case !finite(c.AngleThreshDeg) || c.AngleThreshDeg <= 0 || c.AngleThreshDeg > 180:
		return fmt.Errorf("%w: angle_thresh_deg %v must be in (0,180]", ErrInvalidConfig, c.AngleThreshDeg)
	case !finite(c.PostImpactMS) || c.PostImpactMS < 0:
		return fmt.Errorf("%w: post_impact_ms %v must be >= 0", ErrInvalidConfig, c.PostImpactMS)
	case !finite(c.MotionlessMS) || c.MotionlessMS <= 0:
		return fmt.Errorf("%w: motionless_ms %v must be > 0", ErrInvalidConfig, c.MotionlessMS)
	case !finite(c.SamplingFreq) || c.SamplingFreq <= 0:
		return fmt.Errorf("%w: sampling_freq %v must be > 0", ErrInvalidConfig, c.SamplingFreq)
	case !finite(c.PostureWindowMS) || c.PostureWindowMS <= 0:
		return fmt.Errorf("%w: posture_window_ms %v must be > 0", ErrInvalidConfig, c.PostureWindowMS)
	case c.MaxRewinds <= 0:
		return fmt.Errorf("%w: max_rewinds %d must be > 0", ErrInvalidConfig, c.MaxRewinds)
	}
	return nil
}

// PostImpactSteps is the wait phase length in samples.
func (c DetectorConfig) PostImpactSteps() float64 {
	return c.PostImpactMS * c.SamplingFreq / 1000
}

// MotionlessSteps is the motionless phase length in samples.
func (c DetectorConfig) MotionlessSteps() float64 {
	return c.MotionlessMS * c.SamplingFreq / 1000
}

// PostureWindow is the orientation averaging window in samples, at least one.
func (c DetectorConfig) PostureWindow() int {
	n := int(math.Round(c.PostureWindowMS * c.SamplingFreq / 1000))
	if n < 1 {
		return 1
	}
	return n
}

// AngleThreshRad returns the posture threshold in radians.
func (c DetectorConfig) AngleThreshRad() float64 {
	return c.AngleThreshDeg * math.Pi / 180
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
