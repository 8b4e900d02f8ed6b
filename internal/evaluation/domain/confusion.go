package evaluation

import "math"

// Outcome classifies one evaluated recording.
type Outcome string

const (
	OutcomeTP      Outcome = "tp"
	OutcomeTN      Outcome = "tn"
	OutcomeFP      Outcome = "fp"
	OutcomeFN      Outcome = "fn"
	OutcomeSkipped Outcome = "skipped"
)

// Classify maps a label and a detection flag to an outcome.
func Classify(label Label, detected bool) Outcome {
	switch {
	case label == LabelFall && detected:
		return OutcomeTP
	case label == LabelFall:
		return OutcomeFN
	case detected:
		return OutcomeFP
	default:
		return OutcomeTN
	}
}

// ConfusionMatrix counts outcomes over a corpus. Skipped recordings are not part of the matrix.
type ConfusionMatrix struct {
	TP      int `json:"tp"`
	TN      int `json:"tn"`
	FP      int `json:"fp"`
	FN      int `json:"fn"`
	Skipped int `json:"skipped"`
}

// Record returns a copy with one more outcome counted.
func (m ConfusionMatrix) Record(o Outcome) ConfusionMatrix {
	switch o {
	case OutcomeTP:
		m.TP++
	case OutcomeTN:
		m.TN++
	case OutcomeFP:
		m.FP++
	case OutcomeFN:
		m.FN++
	case OutcomeSkipped:
		m.Skipped++
	}
	return m
}

// Add sums two matrices.
func (m ConfusionMatrix) Add(other ConfusionMatrix) ConfusionMatrix {
	return ConfusionMatrix{
		TP:      m.TP + other.TP,
		TN:      m.TN + other.TN,
		FP:      m.FP + other.FP,
		FN:      m.FN + other.FN,
		Skipped: m.Skipped + other.Skipped,
	}
}

// Total is the number of classified recordings.
func (m ConfusionMatrix) Total() int {
	return m.TP + m.TN + m.FP + m.FN
}

// Sensitivity is TP/(TP+FN), NaN when undefined.
func (m ConfusionMatrix) Sensitivity() float64 {
	return ratio(m.TP, m.TP+m.FN)
}

// Specificity is TN/(TN+FP), NaN when undefined.
func (m ConfusionMatrix) Specificity() float64 {
	return ratio(m.TN, m.TN+m.FP)
}

// Accuracy is (TP+TN)/total, NaN when undefined.
func (m ConfusionMatrix) Accuracy() float64 {
	return ratio(m.TP+m.TN, m.Total())
}

// Metrics is the JSON-safe view of the derived metrics; nil means undefined.
type Metrics struct {
	Sensitivity *float64 `json:"sensitivity"`
	Specificity *float64 `json:"specificity"`
	Accuracy    *float64 `json:"accuracy"`
}

// Metrics returns the derived metrics.
func (m ConfusionMatrix) Metrics() Metrics {
	return Metrics{
		Sensitivity: definedOrNil(m.Sensitivity()),
		Specificity: definedOrNil(m.Specificity()),
		Accuracy:    definedOrNil(m.Accuracy()),
	}
}

// IsDefined reports whether a metric value is not the undefined sentinel.
func IsDefined(v float64) bool {
	return !math.IsNaN(v)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

func definedOrNil(v float64) *float64 {
	if !IsDefined(v) {
		return nil
	}
	return &v
}
