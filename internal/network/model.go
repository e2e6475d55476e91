// Package network implements the one-hidden-layer classifier:
// affine, sigmoid, affine, temperature-scaled softmax.
package network

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// #region model
// Model is an immutable parameter snapshot. Weights are flat row-major:
// W1 is Hidden x Input, W2 is Output x Hidden.
type Model struct {
	Labels      []string
	InputDim    int
	HiddenDim   int
	OutputDim   int
	W1          []float64
	B1          []float64
	W2          []float64
	B2          []float64
	Temperature float64

	TrainedAt        time.Time
	KnowledgeVersion string
}

// newModel allocates a model with Xavier-uniform weights and zero biases.
func newModel(labels []string, input, hidden int, rng *rand.Rand) *Model {
	output := len(labels)
	m := &Model{
		Labels:      append([]string(nil), labels...),
		InputDim:    input,
		HiddenDim:   hidden,
		OutputDim:   output,
		W1:          make([]float64, hidden*input),
		B1:          make([]float64, hidden),
		W2:          make([]float64, output*hidden),
		B2:          make([]float64, output),
		Temperature: 1.0,
	}
	xavier(m.W1, input, hidden, rng)
	xavier(m.W2, hidden, output, rng)
	return m
}

func xavier(w []float64, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	c := *m
	c.Labels = append([]string(nil), m.Labels...)
	c.W1 = append([]float64(nil), m.W1...)
	c.B1 = append([]float64(nil), m.B1...)
	c.W2 = append([]float64(nil), m.W2...)
	c.B2 = append([]float64(nil), m.B2...)
	return &c
}

// CheckCompatible fails fast when the model does not match the encoder width
// or the knowledge table's condition keys.
func (m *Model) CheckCompatible(inputDim int, labels []string) error {
	if m.InputDim != inputDim {
		return &CorruptModelError{Reason: fmt.Sprintf("input dim %d, encoder produces %d", m.InputDim, inputDim)}
	}
	if len(m.Labels) != len(labels) {
		return &CorruptModelError{Reason: fmt.Sprintf("%d output classes, knowledge table has %d", len(m.Labels), len(labels))}
	}
	for i := range labels {
		if m.Labels[i] != labels[i] {
			return &CorruptModelError{Reason: fmt.Sprintf("class %d is %q, knowledge table has %q", i, m.Labels[i], labels[i])}
		}
	}
	return nil
}

// #endregion model

// #region forward
// Predict returns the calibrated posterior for x. It does not mutate m.
func (m *Model) Predict(x []float64) (diagnosis.Posterior, error) {
	if err := symptom.CheckFeatures(x, m.InputDim); err != nil {
		return nil, err
	}
	_, z2 := m.forward(x, nil)
	return softmax(z2, m.Temperature), nil
}

// forward returns hidden activations and output logits. mask, when non-nil,
// is multiplied into the hidden activations (inverted dropout).
func (m *Model) forward(x []float64, mask []float64) (a1, z2 []float64) {
	a1 = make([]float64, m.HiddenDim)
	for h := 0; h < m.HiddenDim; h++ {
		row := m.W1[h*m.InputDim : (h+1)*m.InputDim]
		z := m.B1[h]
		for i, xi := range x {
			if xi != 0 {
				z += row[i] * xi
			}
		}
		a1[h] = sigmoid(z)
		if mask != nil {
			a1[h] *= mask[h]
		}
	}
	z2 = make([]float64, m.OutputDim)
	for k := 0; k < m.OutputDim; k++ {
		row := m.W2[k*m.HiddenDim : (k+1)*m.HiddenDim]
		z := m.B2[k]
		for h, a := range a1 {
			z += row[h] * a
		}
		z2[k] = z
	}
	return a1, z2
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softmax computes softmax(z/T) with max subtraction.
func softmax(z []float64, T float64) diagnosis.Posterior {
	if T <= 0 {
		T = 1
	}
	out := make(diagnosis.Posterior, len(z))
	maxZ := math.Inf(-1)
	for _, v := range z {
		if v/T > maxZ {
			maxZ = v / T
		}
	}
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v/T - maxZ)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// #endregion forward
