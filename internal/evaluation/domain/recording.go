package evaluation

import (
	"fmt"
	"strings"

	detection "falldetect/internal/detection/domain"
)

// Label is the ground truth of a recording.
type Label string

const (
	LabelFall Label = "FALL"
	LabelADL  Label = "ADL"
)

// IsValid reports whether the label is supported.
func (l Label) IsValid() bool {
	return l == LabelFall || l == LabelADL
}

// ParseLabel normalizes a label string.
func ParseLabel(value string) (Label, error) {
	label := Label(strings.ToUpper(strings.TrimSpace(value)))
	if !label.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, value)
	}
	return label, nil
}

// Recording is a labeled time series. LoadErr is set by loaders that could not parse the source.
type Recording struct {
	ID      string
	Label   Label
	Series  detection.TimeSeries
	LoadErr error
}

// Validate reports why a recording cannot be evaluated.
func (r Recording) Validate() error {
	if r.LoadErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrRecordingFailure, r.ID, r.LoadErr)
	}
	if !r.Label.IsValid() {
		return fmt.Errorf("%w: %s: %w", ErrRecordingFailure, r.ID, ErrInvalidLabel)
	}
	if r.Series.Len() == 0 {
		return fmt.Errorf("%w: %s: %w", ErrRecordingFailure, r.ID, ErrEmptyRecording)
	}
	return nil
}
