// Package sisfall loads the SisFall dataset layout into labeled recordings.
//
// The dataset root holds one directory per subject (SA01, SE06, ...). Inside, file names start
// with F for falls and D for activities of daily living. Every line carries nine comma separated
// ADC codes; the first three are the ADXL345 accelerometer axes.
package sisfall

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	detection "falldetect/internal/detection/domain"
	evaluation "falldetect/internal/evaluation/domain"
)

const (
	DefaultSamplingFreq = 200.0
	DefaultRange        = 16.0
	DefaultResolution   = 13
	// minLineLength skips blank and truncated trailer lines.
	minLineLength = 8
)

// ErrMalformedLine is returned when a line cannot be parsed.
var ErrMalformedLine = errors.New("sisfall: malformed line")

// Options controls ADC conversion.
type Options struct {
	SamplingFreq float64
	Range        float64
	Resolution   int
}

// DefaultOptions returns the ADXL345 settings used by the dataset.
func DefaultOptions() Options {
	return Options{SamplingFreq: DefaultSamplingFreq, Range: DefaultRange, Resolution: DefaultResolution}
}

// GPerCode is the acceleration in g of one ADC code.
func (o Options) GPerCode() float64 {
	return 2 * o.Range / math.Pow(2, float64(o.Resolution))
}

// Loader reads a SisFall directory tree.
type Loader struct {
	root   string
	opts   Options
	logger *log.Logger
}

// NewLoader constructs a Loader. Zero option fields take defaults.
func NewLoader(root string, opts Options, logger *log.Logger) (*Loader, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("sisfall: empty root")
	}
	def := DefaultOptions()
	if opts.SamplingFreq <= 0 {
		opts.SamplingFreq = def.SamplingFreq
	}
	if opts.Range <= 0 {
		opts.Range = def.Range
	}
	if opts.Resolution <= 0 {
		opts.Resolution = def.Resolution
	}
	return &Loader{root: root, opts: opts, logger: logger}, nil
}

// Root returns the dataset root.
func (l *Loader) Root() string { return l.root }

// Load walks the dataset. Files that fail to parse are returned with LoadErr set.
func (l *Loader) Load(ctx context.Context) ([]evaluation.Recording, error) {
	subjects, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("sisfall: read root: %w", err)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name() < subjects[j].Name() })

	var recordings []evaluation.Recording
	for _, subject := range subjects {
		if !subject.IsDir() || !strings.HasPrefix(subject.Name(), "S") {
			continue
		}
		subjectPath := filepath.Join(l.root, subject.Name())
		files, err := os.ReadDir(subjectPath)
		if err != nil {
			return nil, fmt.Errorf("sisfall: read subject %s: %w", subject.Name(), err)
		}
		sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			label, ok := labelOf(file.Name())
			if file.IsDir() || !ok {
				continue
			}
			id := subject.Name() + "/" + file.Name()
			rec := evaluation.Recording{ID: id, Label: label}
			series, err := l.readFile(filepath.Join(subjectPath, file.Name()))
			if err != nil {
				rec.LoadErr = err
				l.logf("event=recording_load_failed recording_id=%s error=%v", id, err)
			} else {
				rec.Series = series
			}
			recordings = append(recordings, rec)
		}
	}
	l.logf("event=corpus_loaded root=%s recordings=%d", l.root, len(recordings))
	return recordings, nil
}

func (l *Loader) readFile(path string) (detection.TimeSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return detection.TimeSeries{}, err
	}
	defer f.Close()
	return Parse(f, l.opts)
}

// Parse converts one recording file to a series in g.
func Parse(r io.Reader, opts Options) (detection.TimeSeries, error) {
	scale := opts.GPerCode()
	scanner := bufio.NewScanner(r)
	var samples []detection.Sample
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) <= minLineLength {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			return detection.TimeSeries{}, fmt.Errorf("%w: line %d: %d fields", ErrMalformedLine, lineNo, len(fields))
		}
		var codes [3]float64
		for i := 0; i < 3; i++ {
			raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(fields[i]), ";"))
			v, err := strconv.Atoi(raw)
			if err != nil {
				return detection.TimeSeries{}, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, lineNo, err)
			}
			codes[i] = float64(v) * scale
		}
		samples = append(samples, detection.Sample{X: codes[0], Y: codes[1], Z: codes[2]})
	}
	if err := scanner.Err(); err != nil {
		return detection.TimeSeries{}, err
	}
	return detection.NewTimeSeries(samples, opts.SamplingFreq)
}

func labelOf(name string) (evaluation.Label, bool) {
	switch {
	case strings.HasPrefix(name, "F"):
		return evaluation.LabelFall, true
	case strings.HasPrefix(name, "D"):
		return evaluation.LabelADL, true
	default:
		return "", false
	}
}

func (l *Loader) logf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}
