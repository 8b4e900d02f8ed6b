// Package patientcsv reads semicolon separated accelerometer exports of a single patient.
package patientcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	detection "falldetect/internal/detection/domain"
)

// DefaultSamplingFreq is the rate of the patient wearable.
const DefaultSamplingFreq = 100.0

var (
	// ErrMissingColumn is returned when the header lacks an axis column.
	ErrMissingColumn = errors.New("patientcsv: missing axis column")
	// ErrInvalidValue is returned when a cell is not a number.
	ErrInvalidValue = errors.New("patientcsv: invalid value")
)

var axisPrefixes = []string{"", "acc_", "accel_", "acc", "accel"}

// ReadFile reads a patient export from disk.
func ReadFile(path string, samplingFreq float64) (detection.TimeSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return detection.TimeSeries{}, err
	}
	defer f.Close()
	return Read(f, samplingFreq)
}

// Read parses a header plus one row per sample. Values are in g; a decimal comma is accepted.
func Read(r io.Reader, samplingFreq float64) (detection.TimeSeries, error) {
	if samplingFreq <= 0 {
		samplingFreq = DefaultSamplingFreq
	}
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return detection.TimeSeries{}, fmt.Errorf("patientcsv: read header: %w", err)
	}
	cols, err := axisColumns(header)
	if err != nil {
		return detection.TimeSeries{}, err
	}

	var samples []detection.Sample
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return detection.TimeSeries{}, fmt.Errorf("patientcsv: row %d: %w", row+1, err)
		}
		row++
		if isBlank(record) {
			continue
		}
		var v [3]float64
		for i, col := range cols {
			if col >= len(record) {
				return detection.TimeSeries{}, fmt.Errorf("%w: row %d: missing column %d", ErrInvalidValue, row, col)
			}
			v[i], err = parseFloat(record[col])
			if err != nil {
				return detection.TimeSeries{}, fmt.Errorf("%w: row %d: %v", ErrInvalidValue, row, err)
			}
		}
		samples = append(samples, detection.Sample{X: v[0], Y: v[1], Z: v[2]})
	}
	return detection.NewTimeSeries(samples, samplingFreq)
}

func axisColumns(header []string) ([3]int, error) {
	cols := [3]int{-1, -1, -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		for axis, letter := range []string{"x", "y", "z"} {
			for _, prefix := range axisPrefixes {
				if name == prefix+letter && cols[axis] < 0 {
					cols[axis] = i
				}
			}
		}
	}
	for axis, col := range cols {
		if col < 0 {
			return cols, fmt.Errorf("%w: %s", ErrMissingColumn, []string{"x", "y", "z"}[axis])
		}
	}
	return cols, nil
}

func parseFloat(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if strings.Count(value, ",") == 1 && !strings.Contains(value, ".") {
		value = strings.Replace(value, ",", ".", 1)
	}
	return strconv.ParseFloat(value, 64)
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
