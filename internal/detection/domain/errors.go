package detection

import "errors"

var (
	// ErrInvalidConfig is returned when a detector config is out of range.
	ErrInvalidConfig = errors.New("detection: invalid config")
	// ErrInvalidSamplingFreq is returned when a series has a non-positive sampling frequency.
	ErrInvalidSamplingFreq = errors.New("detection: invalid sampling frequency")
	// ErrLengthMismatch is returned when samples and magnitudes differ in length.
	ErrLengthMismatch = errors.New("detection: series and magnitude length mismatch")
	// ErrStalledScan is returned when the scan keeps rewinding to the same checkpoint.
	ErrStalledScan = errors.New("detection: stalled scan")
)
