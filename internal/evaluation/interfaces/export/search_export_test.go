package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	evaluation "falldetect/internal/evaluation/domain"
)

func sampleRun() *evaluation.SearchRun {
	created := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)
	finished := created.Add(3 * time.Minute)
	best := &evaluation.ParameterPoint{
		Index: 7, ImpactThresh: 2, MotionlessThresh: 0.3, AngleThreshDeg: 20,
		Matrix: evaluation.ConfusionMatrix{TP: 9, TN: 10, FN: 1, Skipped: 1},
	}
	grid := evaluation.DefaultGrid()
	return &evaluation.SearchRun{
		ID:         "run-42",
		Status:     evaluation.RunStatusSucceeded,
		CorpusRoot: "SisFall_dataset",
		CorpusSize: 21,
		Grid:       grid,
		Result:     &evaluation.SearchResult{BestSensitivity: best, BestAccuracy: best, Cells: grid.Size()},
		CreatedAt:  created,
		FinishedAt: &finished,
	}
}

func TestBuildSearchXLSX(t *testing.T) {
	data, err := BuildSearchXLSX(sampleRun())
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	if v, _ := f.GetCellValue("summary", "B3"); v != "run-42" {
		t.Fatalf("expected run id in summary, got %q", v)
	}
	if v, _ := f.GetCellValue("best", "A2"); v != "sensitivity" {
		t.Fatalf("expected sensitivity row, got %q", v)
	}
	if v, _ := f.GetCellValue("best", "B2"); v != "7" {
		t.Fatalf("expected cell index 7, got %q", v)
	}
	if v, _ := f.GetCellValue("best", "B3"); v != "" {
		t.Fatalf("undefined specificity row should be empty, got %q", v)
	}
	if v, _ := f.GetCellValue("grid", "A7"); v != "3" {
		t.Fatalf("expected last impact 3, got %q", v)
	}
}

func TestBuildSearchPDF(t *testing.T) {
	data, err := BuildSearchPDF(sampleRun())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a pdf")
	}
}

func TestBuild_RequiresResult(t *testing.T) {
	run := sampleRun()
	run.Result = nil
	if _, err := BuildSearchXLSX(run); !errors.Is(err, ErrNoResult) {
		t.Fatalf("xlsx: expected ErrNoResult, got %v", err)
	}
	if _, err := BuildSearchPDF(run); !errors.Is(err, ErrNoResult) {
		t.Fatalf("pdf: expected ErrNoResult, got %v", err)
	}
}

func TestFileWriter_WriteReports(t *testing.T) {
	root := t.TempDir()
	w, err := NewFileWriter(root)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	dir, err := w.WriteReports(context.Background(), sampleRun())
	if err != nil {
		t.Fatalf("write reports: %v", err)
	}
	if dir != filepath.Join(root, "run-42") {
		t.Fatalf("unexpected dir %q", dir)
	}
	for _, name := range []string{"search.xlsx", "search.pdf"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}
