package evaluation

import (
	"fmt"

	detection "falldetect/internal/detection/domain"
)

// Grid is the threshold space of a parameter search.
// Base supplies every config field that is not searched. Its SamplingFreq is only validated;
// evaluation runs each recording at its own rate.
type Grid struct {
	Impact     []float64                `json:"impact" yaml:"impact"`
	Motionless []float64                `json:"motionless" yaml:"motionless"`
	Angle      []float64                `json:"angle" yaml:"angle"`
	Base       detection.DetectorConfig `json:"base" yaml:"base"`
}

// Cell is one grid point. Index is its position in traversal order.
type Cell struct {
	Index            int
	ImpactThresh     float64
	MotionlessThresh float64
	AngleThreshDeg   float64
}

// DefaultGrid returns the reference SisFall search grid.
func DefaultGrid() Grid {
	return Grid{
		Impact:     []float64{1.75, 2, 2.25, 2.5, 2.75, 3},
		Motionless: []float64{0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.55},
		Angle:      []float64{5, 10, 20, 40, 60},
		Base:       detection.DefaultDetectorConfig(),
	}
}

// Validate checks that every axis has at least one candidate.
func (g Grid) Validate() error {
	switch {
	case len(g.Impact) == 0:
		return fmt.Errorf("%w: empty impact axis", ErrInvalidGrid)
	case len(g.Motionless) == 0:
		return fmt.Errorf("%w: empty motionless axis", ErrInvalidGrid)
	case len(g.Angle) == 0:
		return fmt.Errorf("%w: empty angle axis", ErrInvalidGrid)
	}
	return nil
}

// Size is the number of cells.
func (g Grid) Size() int {
	return len(g.Impact) * len(g.Motionless) * len(g.Angle)
}

// Cells enumerates the grid with impact outermost and angle innermost.
func (g Grid) Cells() []Cell {
	cells := make([]Cell, 0, g.Size())
	for _, impact := range g.Impact {
		for _, motionless := range g.Motionless {
			for _, angle := range g.Angle {
				cells = append(cells, Cell{
					Index:            len(cells),
					ImpactThresh:     impact,
					MotionlessThresh: motionless,
					AngleThreshDeg:   angle,
				})
			}
		}
	}
	return cells
}

// Config builds the detector config of a cell.
func (g Grid) Config(c Cell) detection.DetectorConfig {
	return g.Base.WithDefaults().WithThresholds(c.ImpactThresh, c.MotionlessThresh, c.AngleThreshDeg)
}
