package evaluation

import (
	"fmt"
	"math"
	"testing"

	detection "falldetect/internal/detection/domain"
)

const fixtureFreq = 200.0

func fallRecording(t *testing.T, id string) Recording {
	t.Helper()
	samples := make([]detection.Sample, 1000)
	for i := range samples {
		switch {
		case i < 100:
			samples[i] = detection.Sample{Z: 1}
		case i < 105:
			samples[i] = detection.Sample{Z: 3}
		default:
			samples[i] = detection.Sample{X: 1}
		}
	}
	return recordingOf(t, id, LabelFall, samples)
}

// adlRecording sways between 0.6 g and 1.4 g without ever changing posture.
func adlRecording(t *testing.T, id string) Recording {
	t.Helper()
	samples := make([]detection.Sample, 1000)
	for i := range samples {
		samples[i] = detection.Sample{Z: 1 + 0.4*math.Sin(float64(i)/10)}
	}
	return recordingOf(t, id, LabelADL, samples)
}

func recordingOf(t *testing.T, id string, label Label, samples []detection.Sample) Recording {
	t.Helper()
	series, err := detection.NewTimeSeries(samples, fixtureFreq)
	if err != nil {
		t.Fatalf("new time series: %v", err)
	}
	return Recording{ID: id, Label: label, Series: series}
}

func mixedCorpus(t *testing.T, falls, adls int) []Recording {
	t.Helper()
	corpus := make([]Recording, 0, falls+adls)
	for i := 0; i < falls; i++ {
		corpus = append(corpus, fallRecording(t, fmt.Sprintf("F%02d", i)))
	}
	for i := 0; i < adls; i++ {
		corpus = append(corpus, adlRecording(t, fmt.Sprintf("D%02d", i)))
	}
	return corpus
}

func mustConfig(t *testing.T, impact, motionless, angle float64) detection.DetectorConfig {
	t.Helper()
	cfg, err := detection.NewDetectorConfig(impact, motionless, angle, 1000, 1000, fixtureFreq)
	if err != nil {
		t.Fatalf("new detector config: %v", err)
	}
	return cfg
}
