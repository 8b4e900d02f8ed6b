package evaluation

import "errors"

var (
	// ErrRecordingFailure marks a recording that could not be evaluated.
	ErrRecordingFailure = errors.New("evaluation: recording failure")
	// ErrRecordingTimeout is returned with the matrix when recordings hit the per-recording timeout.
	ErrRecordingTimeout = errors.New("evaluation: recording timeout")
	// ErrEmptyRecording is returned for a recording without samples.
	ErrEmptyRecording = errors.New("evaluation: empty recording")
	// ErrInvalidLabel is returned for a label other than FALL or ADL.
	ErrInvalidLabel = errors.New("evaluation: invalid label")
	// ErrInvalidGrid is returned when a grid axis is empty.
	ErrInvalidGrid = errors.New("evaluation: invalid grid")
	// ErrNilEvaluator is returned when a search is built without an evaluator.
	ErrNilEvaluator = errors.New("evaluation: nil evaluator")
	// ErrRunNotFound is returned when a search run cannot be found.
	ErrRunNotFound = errors.New("evaluation: run not found")
	// ErrEmptyRunID is returned when a search run has no id.
	ErrEmptyRunID = errors.New("evaluation: empty run id")
)
