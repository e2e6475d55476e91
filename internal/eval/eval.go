package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-triage/internal/dataset"
)

// #region eval-harness
// EvalHarness scores a model on held-out examples before it is activated.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	if config.Bins <= 0 {
		config.Bins = 10
	}
	return &EvalHarness{config: config}
}

// Run predicts every example and checks accuracy, NLL and calibration error
// against the configured thresholds.
func (h *EvalHarness) Run(p Predictor, set dataset.Set) (EvalResult, error) {
	if set.Len() == 0 {
		return EvalResult{}, fmt.Errorf("eval: empty evaluation set")
	}
	k := len(set.Labels)
	confusion := make([][]int, k)
	for i := range confusion {
		confusion[i] = make([]int, k)
	}

	binConf := make([]float64, h.config.Bins)
	binAcc := make([]float64, h.config.Bins)
	binN := make([]int, h.config.Bins)

	var nll float64
	correct := 0
	for _, ex := range set.Examples {
		post, err := p.Predict(ex.Features)
		if err != nil {
			return EvalResult{}, fmt.Errorf("eval %s: %w", ex.ID, err)
		}
		pred := post.Argmax()
		conf := 0.0
		if pred >= 0 {
			conf = post[pred]
			confusion[ex.Label][pred]++
		}
		hit := pred == ex.Label
		if hit {
			correct++
		}
		nll -= math.Log(math.Max(post[ex.Label], 1e-12))

		b := int(conf * float64(h.config.Bins))
		if b >= h.config.Bins {
			b = h.config.Bins - 1
		}
		binConf[b] += conf
		if hit {
			binAcc[b]++
		}
		binN[b]++
	}

	n := float64(set.Len())
	accuracy := float64(correct) / n
	nll /= n
	var ece float64
	for b := range binN {
		if binN[b] == 0 {
			continue
		}
		cnt := float64(binN[b])
		ece += cnt / n * math.Abs(binAcc[b]/cnt-binConf[b]/cnt)
	}

	var metrics []EvalMetric
	var failReasons []string

	// 1. Accuracy floor
	accPass := accuracy >= h.config.MinAccuracy
	metrics = append(metrics, EvalMetric{Name: "accuracy", Value: accuracy, Pass: accPass})
	if !accPass {
		failReasons = append(failReasons, fmt.Sprintf("accuracy %.4f below %.4f", accuracy, h.config.MinAccuracy))
	}

	// 2. NLL ceiling
	nllPass := nll <= h.config.MaxNLL
	metrics = append(metrics, EvalMetric{Name: "nll", Value: nll, Pass: nllPass})
	if !nllPass {
		failReasons = append(failReasons, fmt.Sprintf("nll %.4f exceeds %.4f", nll, h.config.MaxNLL))
	}

	// 3. Calibration error ceiling
	ecePass := ece <= h.config.MaxECE
	metrics = append(metrics, EvalMetric{Name: "ece", Value: ece, Pass: ecePass})
	if !ecePass {
		failReasons = append(failReasons, fmt.Sprintf("ece %.4f exceeds %.4f", ece, h.config.MaxECE))
	}

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:    len(failReasons) == 0,
		Metrics:   metrics,
		Reason:    reason,
		Examples:  set.Len(),
		Confusion: confusion,
		PerClass:  perClass(set.Labels, confusion),
	}, nil
}

// #endregion eval-harness

// #region helpers
func perClass(labels []string, confusion [][]int) []ClassMetric {
	out := make([]ClassMetric, len(labels))
	for i, l := range labels {
		var support, predicted int
		for j := range confusion {
			support += confusion[i][j]
			predicted += confusion[j][i]
		}
		cm := ClassMetric{Label: l, Support: support}
		if predicted > 0 {
			cm.Precision = float64(confusion[i][i]) / float64(predicted)
		}
		if support > 0 {
			cm.Recall = float64(confusion[i][i]) / float64(support)
		}
		out[i] = cm
	}
	return out
}

// #endregion helpers
