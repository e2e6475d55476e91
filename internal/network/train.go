package network

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/danielpatrickdp/adaptive-triage/internal/dataset"
	"github.com/danielpatrickdp/adaptive-triage/internal/update"
)

// #region train-config
// TrainConfig holds training hyperparameters.
type TrainConfig struct {
	LearningRate    float64
	Epochs          int
	Hidden          int
	L2              float64
	DropoutRate     float64 // inverted dropout on the hidden layer, 0 disables
	Optimizer       update.Kind
	Seed            int64
	Patience        int     // epochs without validation improvement before stopping, 0 disables
	ValidationSplit float64 // stratified hold-out fraction, 0 trains on everything
	MaxGradNorm     float64
	ClassWeights    []float64 // per-label loss weights, nil for uniform
	TemperatureGrid []float64

	// OnEpoch, when set, is called after every epoch.
	OnEpoch func(EpochStats)
}

// DefaultTemperatureGrid is the calibration sweep.
var DefaultTemperatureGrid = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0, 2.5, 3.0}

// DefaultTrainConfig returns the standard training setup.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LearningRate:    0.01,
		Epochs:          200,
		Hidden:          32,
		L2:              1e-4,
		DropoutRate:     0.1,
		Optimizer:       update.Adam,
		Seed:            42,
		Patience:        20,
		ValidationSplit: 0.2,
		MaxGradNorm:     5.0,
		TemperatureGrid: DefaultTemperatureGrid,
	}
}

func (c TrainConfig) validate(labels int) error {
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.Hidden <= 0:
		return fmt.Errorf("hidden size must be positive, got %d", c.Hidden)
	case c.DropoutRate < 0 || c.DropoutRate >= 1:
		return fmt.Errorf("dropout rate must lie in [0,1), got %v", c.DropoutRate)
	case c.ValidationSplit < 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("validation split must lie in [0,1), got %v", c.ValidationSplit)
	case c.Patience < 0:
		return fmt.Errorf("patience must be non-negative, got %d", c.Patience)
	case c.ClassWeights != nil && len(c.ClassWeights) != labels:
		return fmt.Errorf("%d class weights for %d labels", len(c.ClassWeights), labels)
	}
	return nil
}

// #endregion train-config

// #region summary
// EpochStats is reported after every epoch.
type EpochStats struct {
	Epoch         int
	TrainLoss     float64
	TrainAccuracy float64
	ValLoss       float64
	ValAccuracy   float64
	GradNorm      float64 // last step's pre-clamp gradient norm
}

// TrainingSummary describes a finished run.
type TrainingSummary struct {
	FinalTrainLoss float64
	FinalValLoss   float64
	TrainAccuracy  float64
	ValAccuracy    float64
	EpochsRun      int
	EarlyStopped   bool
	BestEpoch      int
	TrainSize      int
	ValSize        int
	Calibration    Calibration
	History        []EpochStats
	Duration       time.Duration
}

// #endregion summary

// #region train
// Train fits a new model on ds. The run is deterministic for a fixed Seed.
func Train(ds dataset.Set, cfg TrainConfig) (*Model, TrainingSummary, error) {
	start := time.Now()
	if err := ds.Validate(); err != nil {
		return nil, TrainingSummary{}, fmt.Errorf("train: %w", err)
	}
	if err := cfg.validate(len(ds.Labels)); err != nil {
		return nil, TrainingSummary{}, fmt.Errorf("train: %w", err)
	}

	var missing []string
	for i, n := range ds.ClassCounts() {
		if n == 0 {
			missing = append(missing, ds.Labels[i])
		}
	}
	if len(missing) > 0 {
		return nil, TrainingSummary{}, &InsufficientDataError{Missing: missing}
	}

	trainSet, valSet := ds, dataset.Set{Labels: ds.Labels, Dim: ds.Dim}
	if cfg.ValidationSplit > 0 {
		sp, err := dataset.StratifiedSplit(ds, dataset.Ratios{Train: 1 - cfg.ValidationSplit, Val: cfg.ValidationSplit}, cfg.Seed)
		if err != nil {
			return nil, TrainingSummary{}, fmt.Errorf("train: %w", err)
		}
		trainSet = sp.Train
		trainSet.Examples = append(trainSet.Examples, sp.Test.Examples...)
		valSet = sp.Val
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	m := newModel(ds.Labels, ds.Dim, cfg.Hidden, rng)

	opt, err := update.NewOptimizer(update.UpdateConfig{
		Kind:         cfg.Optimizer,
		LearningRate: cfg.LearningRate,
		L2:           cfg.L2,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		MaxGradNorm:  cfg.MaxGradNorm,
	})
	if err != nil {
		return nil, TrainingSummary{}, fmt.Errorf("train: %w", err)
	}

	g := newGrads(m)
	params := g.params(m)
	H, D, K := m.HiddenDim, m.InputDim, m.OutputDim
	s := make([]float64, H)
	a1 := make([]float64, H)
	mask := make([]float64, H)
	z2 := make([]float64, K)
	delta2 := make([]float64, K)
	delta1 := make([]float64, H)

	summary := TrainingSummary{TrainSize: trainSet.Len(), ValSize: valSet.Len()}
	bestLoss := math.Inf(1)
	var best *Model
	wait := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		var lastGrad float64
		for _, idx := range rng.Perm(trainSet.Len()) {
			ex := trainSet.Examples[idx]
			x := ex.Features

			// forward, keeping pre-dropout activations for the derivative
			for h := 0; h < H; h++ {
				mask[h] = 1
				if cfg.DropoutRate > 0 {
					if rng.Float64() < cfg.DropoutRate {
						mask[h] = 0
					} else {
						mask[h] = 1 / (1 - cfg.DropoutRate)
					}
				}
				row := m.W1[h*D : (h+1)*D]
				z := m.B1[h]
				for i, xi := range x {
					if xi != 0 {
						z += row[i] * xi
					}
				}
				s[h] = sigmoid(z)
				a1[h] = s[h] * mask[h]
			}
			for k := 0; k < K; k++ {
				row := m.W2[k*H : (k+1)*H]
				z := m.B2[k]
				for h := 0; h < H; h++ {
					z += row[h] * a1[h]
				}
				z2[k] = z
			}
			y := softmax(z2, 1)

			w := 1.0
			if cfg.ClassWeights != nil {
				w = cfg.ClassWeights[ex.Label]
			}
			loss := -w * math.Log(math.Max(y[ex.Label], 1e-12))
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return nil, summary, &NumericalError{Epoch: epoch, Example: ex.ID, Loss: loss}
			}

			// backward
			for k := 0; k < K; k++ {
				t := 0.0
				if k == ex.Label {
					t = 1
				}
				delta2[k] = w * (y[k] - t)
				g.b2[k] = delta2[k]
				row := g.w2[k*H : (k+1)*H]
				for h := 0; h < H; h++ {
					row[h] = delta2[k] * a1[h]
				}
			}
			for h := 0; h < H; h++ {
				var back float64
				for k := 0; k < K; k++ {
					back += m.W2[k*H+h] * delta2[k]
				}
				delta1[h] = back * mask[h] * s[h] * (1 - s[h])
				g.b1[h] = delta1[h]
				row := g.w1[h*D : (h+1)*D]
				for i, xi := range x {
					row[i] = delta1[h] * xi
				}
			}

			lastGrad = opt.Update(params).GradNorm
		}

		trainLoss, trainAcc := evaluate(m, trainSet.Examples, 1)
		if math.IsNaN(trainLoss) || math.IsInf(trainLoss, 0) {
			return nil, summary, &NumericalError{Epoch: epoch, Example: "train-set", Loss: trainLoss}
		}
		stats := EpochStats{Epoch: epoch, TrainLoss: trainLoss, TrainAccuracy: trainAcc, GradNorm: lastGrad}
		if valSet.Len() > 0 {
			stats.ValLoss, stats.ValAccuracy = evaluate(m, valSet.Examples, 1)
		}
		summary.History = append(summary.History, stats)
		summary.EpochsRun = epoch
		if cfg.OnEpoch != nil {
			cfg.OnEpoch(stats)
		}

		if cfg.Patience > 0 && valSet.Len() > 0 {
			if stats.ValLoss < bestLoss-1e-9 {
				bestLoss = stats.ValLoss
				best = m.Clone()
				summary.BestEpoch = epoch
				wait = 0
			} else {
				wait++
				if wait >= cfg.Patience {
					summary.EarlyStopped = true
					slog.Debug("early stopping", "component", "train", "epoch", epoch, "best_epoch", summary.BestEpoch, "best_val_loss", bestLoss)
					break
				}
			}
		}
	}

	if best != nil {
		m = best
	} else {
		summary.BestEpoch = summary.EpochsRun
	}

	summary.FinalTrainLoss, summary.TrainAccuracy = evaluate(m, trainSet.Examples, 1)
	if valSet.Len() > 0 {
		summary.FinalValLoss, summary.ValAccuracy = evaluate(m, valSet.Examples, 1)
		cal, err := Calibrate(m, valSet, cfg.TemperatureGrid)
		if err != nil {
			return nil, summary, fmt.Errorf("train: %w", err)
		}
		m.Temperature = cal.Temperature
		summary.Calibration = cal
	} else {
		summary.Calibration = Calibration{Temperature: 1}
	}
	m.TrainedAt = time.Now().UTC()
	summary.Duration = time.Since(start)

	slog.Info("training finished",
		"component", "train",
		"epochs", summary.EpochsRun,
		"early_stopped", summary.EarlyStopped,
		"train_loss", summary.FinalTrainLoss,
		"val_loss", summary.FinalValLoss,
		"temperature", m.Temperature,
	)
	return m, summary, nil
}

// #endregion train

// #region grads
type grads struct {
	w1, b1, w2, b2 []float64
}

func newGrads(m *Model) *grads {
	return &grads{
		w1: make([]float64, len(m.W1)),
		b1: make([]float64, len(m.B1)),
		w2: make([]float64, len(m.W2)),
		b2: make([]float64, len(m.B2)),
	}
}

// params binds the model's tensors to the gradient buffers. The slices alias
// m, so optimizer steps update the model in place.
func (g *grads) params(m *Model) []update.Param {
	return []update.Param{
		{Name: "w1", Value: m.W1, Grad: g.w1, Decay: true},
		{Name: "b1", Value: m.B1, Grad: g.b1},
		{Name: "w2", Value: m.W2, Grad: g.w2, Decay: true},
		{Name: "b2", Value: m.B2, Grad: g.b2},
	}
}

// #endregion grads

// #region evaluate
// evaluate returns mean negative log-likelihood and accuracy at temperature T
// without dropout.
func evaluate(m *Model, examples []dataset.Example, T float64) (nll, acc float64) {
	if len(examples) == 0 {
		return 0, 0
	}
	correct := 0
	for _, ex := range examples {
		_, z2 := m.forward(ex.Features, nil)
		p := softmax(z2, T)
		nll -= math.Log(math.Max(p[ex.Label], 1e-12))
		if p.Argmax() == ex.Label {
			correct++
		}
	}
	n := float64(len(examples))
	return nll / n, float64(correct) / n
}

// #endregion evaluate
