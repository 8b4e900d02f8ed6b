package sisfall

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	evaluation "falldetect/internal/evaluation/domain"
)

func TestParse_ConvertsCodes(t *testing.T) {
	input := strings.Join([]string{
		"  256,    0,  -256,  -18, -504, -352,   76, -697, -279;",
		"",
		"    0,  256,     0,   10,   20,   30,   40,   50,   60;",
	}, "\n")
	series, err := Parse(strings.NewReader(input), DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", series.Len())
	}
	if series.SamplingFreq() != DefaultSamplingFreq {
		t.Fatalf("sampling freq: got=%v", series.SamplingFreq())
	}
	// 32 g over 8192 codes: 256 codes are exactly 1 g
	first := series.At(0)
	if math.Abs(first.X-1) > 1e-12 || first.Y != 0 || math.Abs(first.Z+1) > 1e-12 {
		t.Fatalf("unexpected first sample: %+v", first)
	}
	if math.Abs(series.At(1).Y-1) > 1e-12 {
		t.Fatalf("unexpected second sample: %+v", series.At(1))
	}
}

func TestParse_MalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("12, abc, 14, 1, 2, 3, 4, 5, 6;"), DefaultOptions())
	if !errors.Is(err, ErrMalformedLine) {
		t.Fatalf("expected ErrMalformedLine, got %v", err)
	}
}

func TestLoader_WalksSubjects(t *testing.T) {
	root := t.TempDir()
	line := "  0,  0,  256,  0, 0, 0, 0, 0, 0;\n"
	writeFile(t, filepath.Join(root, "SA01", "F01_SA01_R01.txt"), strings.Repeat(line, 3))
	writeFile(t, filepath.Join(root, "SA01", "D01_SA01_R01.txt"), strings.Repeat(line, 2))
	writeFile(t, filepath.Join(root, "SA01", "Readme.txt"), "ignored")
	writeFile(t, filepath.Join(root, "SE06", "F02_SE06_R01.txt"), "1, x, 3, 4, 5, 6, 7, 8, 9;\n")
	writeFile(t, filepath.Join(root, "docs", "F01.txt"), strings.Repeat(line, 3))

	loader, err := NewLoader(root, Options{}, nil)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	recordings, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recordings) != 3 {
		t.Fatalf("expected 3 recordings, got %d", len(recordings))
	}

	byID := map[string]evaluation.Recording{}
	for _, rec := range recordings {
		byID[rec.ID] = rec
	}
	fall := byID["SA01/F01_SA01_R01.txt"]
	if fall.Label != evaluation.LabelFall || fall.Series.Len() != 3 || fall.LoadErr != nil {
		t.Fatalf("unexpected fall recording: %+v", fall)
	}
	adl := byID["SA01/D01_SA01_R01.txt"]
	if adl.Label != evaluation.LabelADL || adl.Series.Len() != 2 {
		t.Fatalf("unexpected adl recording: %+v", adl)
	}
	broken := byID["SE06/F02_SE06_R01.txt"]
	if !errors.Is(broken.LoadErr, ErrMalformedLine) {
		t.Fatalf("expected load error on broken file, got %v", broken.LoadErr)
	}
	if err := broken.Validate(); !errors.Is(err, evaluation.ErrRecordingFailure) {
		t.Fatalf("broken recording must fail validation, got %v", err)
	}
}

func TestNewLoader_EmptyRoot(t *testing.T) {
	if _, err := NewLoader(" ", Options{}, nil); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
