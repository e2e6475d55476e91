package update

import (
	"fmt"
	"strings"
)

// #region kind
// Kind selects the parameter update rule.
type Kind string

const (
	SGD  Kind = "sgd"
	Adam Kind = "adam"
)

// ParseKind accepts "sgd" or "adam", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case SGD:
		return SGD, nil
	case Adam:
		return Adam, nil
	}
	return "", fmt.Errorf("unknown optimizer %q (want sgd or adam)", s)
}

// #endregion kind

// #region param
// Param is one named parameter tensor with its gradient, both flat.
// Decay marks weight matrices; biases are not L2-regularized.
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
	Decay bool
}

// #endregion param

// #region update-config
// UpdateConfig holds optimizer hyperparameters.
type UpdateConfig struct {
	Kind         Kind
	LearningRate float64 // step size (default 0.01)
	L2           float64 // weight decay on Decay params (default 1e-4)
	Beta1        float64 // Adam first-moment decay (default 0.9)
	Beta2        float64 // Adam second-moment decay (default 0.999)
	Epsilon      float64 // Adam denominator floor (default 1e-8)
	MaxGradNorm  float64 // global L2 clamp on gradients (0 = disabled)
}

// DefaultUpdateConfig returns Adam with standard moments.
func DefaultUpdateConfig() UpdateConfig {
	return UpdateConfig{
		Kind:         Adam,
		LearningRate: 0.01,
		L2:           1e-4,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		MaxGradNorm:  5.0,
	}
}

// #endregion update-config

// #region metrics
// ParamMetric captures per-tensor telemetry from one step.
type ParamMetric struct {
	Name      string
	GradNorm  float64
	DeltaNorm float64
}

// Metrics captures telemetry from one optimizer step.
type Metrics struct {
	Step        int
	GradNorm    float64 // global gradient norm before clamping
	DeltaNorm   float64 // global norm of the applied change
	Clipped     bool
	ParamMetric []ParamMetric
}

// #endregion metrics
