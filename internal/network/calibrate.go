package network

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-triage/internal/dataset"
)

// Calibration is the outcome of a temperature sweep.
type Calibration struct {
	Temperature float64
	NLLBefore   float64 // validation NLL at T=1
	NLLAfter    float64 // validation NLL at the chosen T
}

// Calibrate sweeps grid and returns the temperature minimizing validation
// NLL. T=1 is always a candidate, so NLLAfter <= NLLBefore. The model's
// weights and temperature are not modified.
func Calibrate(m *Model, val dataset.Set, grid []float64) (Calibration, error) {
	if val.Len() == 0 {
		return Calibration{}, fmt.Errorf("calibrate: empty validation set")
	}
	if len(grid) == 0 {
		grid = DefaultTemperatureGrid
	}
	before, _ := evaluate(m, val.Examples, 1)
	cal := Calibration{Temperature: 1, NLLBefore: before, NLLAfter: before}
	for _, T := range grid {
		if T <= 0 {
			return Calibration{}, fmt.Errorf("calibrate: non-positive temperature %v", T)
		}
		nll, _ := evaluate(m, val.Examples, T)
		if nll < cal.NLLAfter {
			cal.Temperature = T
			cal.NLLAfter = nll
		}
	}
	return cal, nil
}

// WithTemperature returns a copy of m using temperature T.
func (m *Model) WithTemperature(T float64) *Model {
	c := m.Clone()
	c.Temperature = T
	return c
}
