package eval

import "github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"

// #region predictor
// Predictor is anything that maps features to a posterior.
type Predictor interface {
	Predict(x []float64) (diagnosis.Posterior, error)
}

// #endregion predictor

// #region eval-config
// EvalConfig holds the thresholds a candidate model must meet.
type EvalConfig struct {
	MinAccuracy float64 // reject below this top-1 accuracy
	MaxNLL      float64 // reject above this mean negative log-likelihood
	MaxECE      float64 // reject above this expected calibration error
	Bins        int     // confidence bins for ECE
}

// DefaultEvalConfig returns the release gate for a newly trained model.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinAccuracy: 0.60,
		MaxNLL:      1.50,
		MaxECE:      0.15,
		Bins:        10,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of a held-out evaluation.
type EvalResult struct {
	Passed    bool
	Metrics   []EvalMetric
	Reason    string
	Examples  int
	Confusion [][]int // [true][predicted]
	PerClass  []ClassMetric
}

// ClassMetric is per-label precision and recall.
type ClassMetric struct {
	Label     string
	Support   int
	Precision float64
	Recall    float64
}

// Metric returns the named metric value and whether it exists.
func (r EvalResult) Metric(name string) (float64, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// #endregion eval-result
