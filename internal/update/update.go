package update

import (
	"fmt"
	"math"
)

// #region optimizer
// Optimizer applies gradient steps in place. SGD is stateless; Adam keeps
// first and second moment estimates per parameter, keyed by position.
type Optimizer struct {
	config UpdateConfig
	step   int
	m      [][]float64
	v      [][]float64
}

// NewOptimizer creates an optimizer with the given configuration.
func NewOptimizer(config UpdateConfig) (*Optimizer, error) {
	if config.Kind != SGD && config.Kind != Adam {
		return nil, fmt.Errorf("unknown optimizer %q", config.Kind)
	}
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", config.LearningRate)
	}
	if config.L2 < 0 {
		return nil, fmt.Errorf("l2 must be non-negative, got %v", config.L2)
	}
	if config.Kind == Adam {
		if config.Beta1 <= 0 || config.Beta1 >= 1 || config.Beta2 <= 0 || config.Beta2 >= 1 {
			return nil, fmt.Errorf("adam betas must lie in (0,1), got %v/%v", config.Beta1, config.Beta2)
		}
		if config.Epsilon <= 0 {
			config.Epsilon = 1e-8
		}
	}
	return &Optimizer{config: config}, nil
}

// Config returns the optimizer configuration.
func (o *Optimizer) Config() UpdateConfig { return o.config }

// #endregion optimizer

// #region update-function
// Update applies one step to params using their Grad slices. The parameter
// list must keep the same order and shapes across calls.
func (o *Optimizer) Update(params []Param) Metrics {
	o.step++
	if o.config.Kind == Adam && o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.m[i] = make([]float64, len(p.Value))
			o.v[i] = make([]float64, len(p.Value))
		}
	}

	// 1. Global gradient norm and clamp
	var sumSq float64
	for _, p := range params {
		for _, g := range p.Grad {
			sumSq += g * g
		}
	}
	gradNorm := math.Sqrt(sumSq)
	scale := 1.0
	clipped := false
	if o.config.MaxGradNorm > 0 && gradNorm > o.config.MaxGradNorm {
		scale = o.config.MaxGradNorm / gradNorm
		clipped = true
	}

	// 2. Per-tensor step
	lr := o.config.LearningRate
	var bc1, bc2 float64
	if o.config.Kind == Adam {
		bc1 = 1 - math.Pow(o.config.Beta1, float64(o.step))
		bc2 = 1 - math.Pow(o.config.Beta2, float64(o.step))
	}

	var totalDeltaSq float64
	pm := make([]ParamMetric, 0, len(params))
	for i, p := range params {
		var pGradSq, pDeltaSq float64
		for j := range p.Value {
			g := p.Grad[j] * scale
			pGradSq += g * g
			if p.Decay && o.config.L2 > 0 {
				g += o.config.L2 * p.Value[j]
			}

			var delta float64
			switch o.config.Kind {
			case SGD:
				delta = -lr * g
			case Adam:
				o.m[i][j] = o.config.Beta1*o.m[i][j] + (1-o.config.Beta1)*g
				o.v[i][j] = o.config.Beta2*o.v[i][j] + (1-o.config.Beta2)*g*g
				mHat := o.m[i][j] / bc1
				vHat := o.v[i][j] / bc2
				delta = -lr * mHat / (math.Sqrt(vHat) + o.config.Epsilon)
			}
			p.Value[j] += delta
			pDeltaSq += delta * delta
		}
		totalDeltaSq += pDeltaSq
		pm = append(pm, ParamMetric{
			Name:      p.Name,
			GradNorm:  math.Sqrt(pGradSq),
			DeltaNorm: math.Sqrt(pDeltaSq),
		})
	}

	return Metrics{
		Step:        o.step,
		GradNorm:    gradNorm,
		DeltaNorm:   math.Sqrt(totalDeltaSq),
		Clipped:     clipped,
		ParamMetric: pm,
	}
}

// ZeroGrad clears every gradient slice.
func ZeroGrad(params []Param) {
	for _, p := range params {
		for j := range p.Grad {
			p.Grad[j] = 0
		}
	}
}

// #endregion update-function
