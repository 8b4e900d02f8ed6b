package detection

import (
	"errors"
	"math"
	"testing"
)

func TestDetectorConfig_Validate(t *testing.T) {
	base := DefaultDetectorConfig()
	cases := []struct {
		name   string
		mutate func(*DetectorConfig)
	}{
		{"zero impact", func(c *DetectorConfig) { c.ImpactThresh = 0 }},
		{"nan impact", func(c *DetectorConfig) { c.ImpactThresh = math.NaN() }},
		{"motionless zero", func(c *DetectorConfig) { c.MotionlessThresh = 0 }},
		{"motionless one", func(c *DetectorConfig) { c.MotionlessThresh = 1 }},
		{"angle zero", func(c *DetectorConfig) { c.AngleThreshDeg = 0 }},
		{"angle too large", func(c *DetectorConfig) { c.AngleThreshDeg = 180.5 }},
		{"negative post impact", func(c *DetectorConfig) { c.PostImpactMS = -1 }},
		{"zero motionless window", func(c *DetectorConfig) { c.MotionlessMS = 0 }},
		{"zero sampling", func(c *DetectorConfig) { c.SamplingFreq = 0 }},
		{"zero posture window", func(c *DetectorConfig) { c.PostureWindowMS = 0 }},
		{"zero rewinds", func(c *DetectorConfig) { c.MaxRewinds = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if _, err := NewDetector(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("detector: expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	edge := base.WithThresholds(0.1, 0.99, 180)
	edge.PostImpactMS = 0
	if err := edge.Validate(); err != nil {
		t.Fatalf("edge config invalid: %v", err)
	}
}

func TestNewDetectorConfig_FillsDefaults(t *testing.T) {
	cfg, err := NewDetectorConfig(2, 0.3, 20, 1000, 1000, 100)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if cfg.PostureWindowMS != DefaultPostureWindowMS || cfg.MaxRewinds != DefaultMaxRewinds {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if got := cfg.PostureWindow(); got != 50 {
		t.Fatalf("posture window at 100 Hz: got=%d want=50", got)
	}
	if got := cfg.PostImpactSteps(); got != 100 {
		t.Fatalf("post impact steps: got=%v want=100", got)
	}
}
