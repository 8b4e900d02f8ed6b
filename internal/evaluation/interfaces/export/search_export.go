package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	evaluation "falldetect/internal/evaluation/domain"
)

// ErrNoResult is returned when a run has no result to export.
var ErrNoResult = errors.New("export: run has no result")

// BuildSearchPDF renders the best parameter points of a run.
func BuildSearchPDF(run *evaluation.SearchRun) ([]byte, error) {
	if run == nil || run.Result == nil {
		return nil, ErrNoResult
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fall Detection Parameter Search")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", run.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", run.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Corpus: %s (%d recordings)", run.CorpusRoot, run.CorpusSize))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Cells: %d (invalid %d)", run.Result.Cells, run.Result.InvalidCells))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Created: %s", run.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if run.FinishedAt != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Finished: %s", run.FinishedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Impact grid (g): %s", joinFloats(run.Grid.Impact)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Motionless grid (g): %s", joinFloats(run.Grid.Motionless)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Angle grid (deg): %s", joinFloats(run.Grid.Angle)))
	pdf.Ln(8)

	headers := []string{"Objective", "Cell", "Impact", "Motionless", "Angle", "TP", "TN", "FP", "FN", "Value"}
	widths := []float64{26, 12, 18, 22, 16, 14, 14, 14, 14, 20}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, objective := range evaluation.Objectives {
		point := run.Result.Best(objective)
		if point == nil {
			pdf.CellFormat(widths[0], 6, string(objective), "1", 0, "L", false, 0, "")
			pdf.CellFormat(sum(widths[1:]), 6, "undefined", "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
			continue
		}
		m := point.Matrix
		cells := []string{
			string(objective),
			fmt.Sprintf("%d", point.Index),
			fmt.Sprintf("%.2f", point.ImpactThresh),
			fmt.Sprintf("%.2f", point.MotionlessThresh),
			fmt.Sprintf("%.0f", point.AngleThreshDeg),
			fmt.Sprintf("%d", m.TP),
			fmt.Sprintf("%d", m.TN),
			fmt.Sprintf("%d", m.FP),
			fmt.Sprintf("%d", m.FN),
			formatMetric(objective.Metric(m)),
		}
		for i, c := range cells {
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSearchXLSX renders a run summary, its best points and its grid axes.
func BuildSearchXLSX(run *evaluation.SearchRun) ([]byte, error) {
	if run == nil || run.Result == nil {
		return nil, ErrNoResult
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	bestSheet := "best"
	gridSheet := "grid"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(bestSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(gridSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Fall Detection Parameter Search")
	summary := [][2]any{
		{"Run", run.ID},
		{"Status", string(run.Status)},
		{"Corpus", run.CorpusRoot},
		{"Recordings", run.CorpusSize},
		{"Cells", run.Result.Cells},
		{"Invalid Cells", run.Result.InvalidCells},
		{"Created", run.CreatedAt.Format(time.RFC3339)},
	}
	if run.FinishedAt != nil {
		summary = append(summary, [2]any{"Finished", run.FinishedAt.Format(time.RFC3339)})
	}
	for i, kv := range summary {
		row := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), kv[1])
	}

	headers := []string{"Objective", "Cell", "Impact (g)", "Motionless (g)", "Angle (deg)", "TP", "TN", "FP", "FN", "Skipped", "Sensitivity", "Specificity", "Accuracy"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(bestSheet, cell, h)
	}
	for i, objective := range evaluation.Objectives {
		row := i + 2
		_ = f.SetCellValue(bestSheet, fmt.Sprintf("A%d", row), string(objective))
		point := run.Result.Best(objective)
		if point == nil {
			continue
		}
		m := point.Matrix
		values := []any{
			point.Index, point.ImpactThresh, point.MotionlessThresh, point.AngleThreshDeg,
			m.TP, m.TN, m.FP, m.FN, m.Skipped,
			metricCell(m.Sensitivity()), metricCell(m.Specificity()), metricCell(m.Accuracy()),
		}
		for j, v := range values {
			cell, err := excelize.CoordinatesToCellName(j+2, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(bestSheet, cell, v)
		}
	}

	_ = f.SetCellValue(gridSheet, "A1", "Impact (g)")
	_ = f.SetCellValue(gridSheet, "B1", "Motionless (g)")
	_ = f.SetCellValue(gridSheet, "C1", "Angle (deg)")
	for col, axis := range [][]float64{run.Grid.Impact, run.Grid.Motionless, run.Grid.Angle} {
		for i, v := range axis {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(gridSheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func metricCell(v float64) any {
	if !evaluation.IsDefined(v) {
		return ""
	}
	return v
}

func formatMetric(v float64) string {
	if !evaluation.IsDefined(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ", ")
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
