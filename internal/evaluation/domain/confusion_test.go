package evaluation

import (
	"math"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		label    Label
		detected bool
		want     Outcome
	}{
		{LabelFall, true, OutcomeTP},
		{LabelFall, false, OutcomeFN},
		{LabelADL, true, OutcomeFP},
		{LabelADL, false, OutcomeTN},
	}
	for _, tc := range cases {
		if got := Classify(tc.label, tc.detected); got != tc.want {
			t.Fatalf("classify(%s, %v): got=%s want=%s", tc.label, tc.detected, got, tc.want)
		}
	}
}

func TestConfusionMatrix_Metrics(t *testing.T) {
	m := ConfusionMatrix{TP: 8, FN: 2, TN: 6, FP: 4}
	if got := m.Sensitivity(); got != 0.8 {
		t.Fatalf("sensitivity: got=%v want=0.8", got)
	}
	if got := m.Specificity(); got != 0.6 {
		t.Fatalf("specificity: got=%v want=0.6", got)
	}
	if got := m.Accuracy(); got != 0.7 {
		t.Fatalf("accuracy: got=%v want=0.7", got)
	}
	for _, v := range []float64{m.Sensitivity(), m.Specificity(), m.Accuracy()} {
		if v < 0 || v > 1 {
			t.Fatalf("metric out of range: %v", v)
		}
	}
}

func TestConfusionMatrix_UndefinedMetrics(t *testing.T) {
	onlyFalls := ConfusionMatrix{TP: 3, FN: 1}
	if !math.IsNaN(onlyFalls.Specificity()) {
		t.Fatalf("specificity without ADL must be NaN")
	}
	if IsDefined(onlyFalls.Specificity()) {
		t.Fatalf("IsDefined must be false for NaN")
	}
	if onlyFalls.Metrics().Specificity != nil {
		t.Fatalf("undefined metric must be nil in Metrics view")
	}
	empty := ConfusionMatrix{Skipped: 4}
	if !math.IsNaN(empty.Accuracy()) || !math.IsNaN(empty.Sensitivity()) {
		t.Fatalf("empty matrix metrics must be NaN")
	}
}

func TestConfusionMatrix_RecordAndAdd(t *testing.T) {
	var a ConfusionMatrix
	for _, o := range []Outcome{OutcomeTP, OutcomeTP, OutcomeFN, OutcomeSkipped} {
		a = a.Record(o)
	}
	b := ConfusionMatrix{TN: 2, FP: 1}
	if got, want := a.Add(b), b.Add(a); got != want {
		t.Fatalf("add must be commutative: %+v vs %+v", got, want)
	}
	sum := a.Add(b)
	if sum.TP != 2 || sum.FN != 1 || sum.TN != 2 || sum.FP != 1 || sum.Skipped != 1 {
		t.Fatalf("unexpected sum: %+v", sum)
	}
	if sum.Total() != 6 {
		t.Fatalf("total excludes skipped: got=%d want=6", sum.Total())
	}
}

func TestParseLabel(t *testing.T) {
	if got, err := ParseLabel(" fall "); err != nil || got != LabelFall {
		t.Fatalf("parse fall: got=%s err=%v", got, err)
	}
	if _, err := ParseLabel("walk"); err == nil {
		t.Fatalf("expected invalid label error")
	}
}
