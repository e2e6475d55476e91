package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/adaptive-triage/internal/dataset"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
	"github.com/danielpatrickdp/adaptive-triage/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separable builds a 2-class set in 2 dimensions: class 0 near (1,0), class 1
// near (0,1).
func separable(n int, seed int64) dataset.Set {
	rng := rand.New(rand.NewSource(seed))
	s := dataset.Set{Labels: []string{"a", "b"}, Dim: 2}
	for i := 0; i < n; i++ {
		label := i % 2
		x := []float64{rng.Float64() * 0.3, rng.Float64() * 0.3}
		x[label] += 0.7
		s.Examples = append(s.Examples, dataset.Example{ID: fmt.Sprintf("p%d", i), Features: x, Label: label})
	}
	return s
}

func toyConfig() TrainConfig {
	cfg := DefaultTrainConfig()
	cfg.Epochs = 150
	cfg.Hidden = 8
	cfg.LearningRate = 0.05
	cfg.DropoutRate = 0
	cfg.L2 = 0
	cfg.Patience = 0
	cfg.ValidationSplit = 0
	return cfg
}

func TestTrainSeparableReachesFullAccuracy(t *testing.T) {
	ds := separable(200, 1)
	m, sum, err := Train(ds, toyConfig())
	require.NoError(t, err)

	assert.Equal(t, 150, sum.EpochsRun)
	assert.False(t, sum.EarlyStopped)
	assert.GreaterOrEqual(t, sum.TrainAccuracy, 0.99)

	_, acc := evaluate(m, ds.Examples, 1)
	assert.GreaterOrEqual(t, acc, 0.99)
}

func TestTrainWithSGD(t *testing.T) {
	cfg := toyConfig()
	cfg.Optimizer = update.SGD
	cfg.LearningRate = 0.5
	cfg.Epochs = 200
	_, sum, err := Train(separable(200, 2), cfg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sum.TrainAccuracy, 0.99)
}

func TestTrainIsDeterministic(t *testing.T) {
	cfg := toyConfig()
	cfg.Epochs = 5
	cfg.DropoutRate = 0.2
	m1, _, err := Train(separable(40, 3), cfg)
	require.NoError(t, err)
	m2, _, err := Train(separable(40, 3), cfg)
	require.NoError(t, err)
	assert.Equal(t, m1.W1, m2.W1)
	assert.Equal(t, m1.W2, m2.W2)
}

func TestTrainInsufficientData(t *testing.T) {
	ds := separable(10, 1)
	ds.Labels = []string{"a", "b", "c"}
	_, _, err := Train(ds, toyConfig())
	var ide *InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, []string{"c"}, ide.Missing)
}

func TestTrainAbortsOnNaN(t *testing.T) {
	ds := separable(10, 1)
	ds.Examples[3].Features[0] = math.NaN()
	_, _, err := Train(ds, toyConfig())
	var ne *NumericalError
	require.True(t, errors.As(err, &ne), "got %v", err)
	assert.Equal(t, 1, ne.Epoch)
}

func TestEarlyStoppingRestoresBestEpoch(t *testing.T) {
	// constant features with alternating labels: validation loss plateaus
	s := dataset.Set{Labels: []string{"a", "b"}, Dim: 2}
	for i := 0; i < 60; i++ {
		s.Examples = append(s.Examples, dataset.Example{ID: fmt.Sprint(i), Features: []float64{1, 1}, Label: i % 2})
	}
	cfg := DefaultTrainConfig()
	cfg.Epochs = 300
	cfg.Hidden = 4
	cfg.Patience = 3
	cfg.ValidationSplit = 0.3

	_, sum, err := Train(s, cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, sum.BestEpoch, 1)
	require.LessOrEqual(t, sum.BestEpoch, sum.EpochsRun)
	assert.Equal(t, sum.History[sum.BestEpoch-1].ValLoss, sum.FinalValLoss)
	if sum.EarlyStopped {
		assert.Equal(t, sum.BestEpoch+cfg.Patience, sum.EpochsRun)
	}
}

func TestPredictSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	m := newModel([]string{"a", "b", "c", "d"}, symptom.Dim, 16, rng)
	for i := 0; i < 50; i++ {
		x := make([]float64, symptom.Dim)
		for j := range x {
			if rng.Float64() < 0.3 {
				x[j] = rng.Float64()
			}
		}
		p, err := m.Predict(x)
		require.NoError(t, err)
		require.NoError(t, p.Validate())
	}
}

func TestPredictShapeError(t *testing.T) {
	m := newModel([]string{"a", "b"}, 4, 3, rand.New(rand.NewSource(1)))
	_, err := m.Predict([]float64{1, 2})
	var se *symptom.ShapeError
	assert.True(t, errors.As(err, &se))
}

func TestCalibrationNeverWorsensNLLAndKeepsWeights(t *testing.T) {
	ds := separable(120, 5)
	cfg := toyConfig()
	cfg.Epochs = 30
	m, _, err := Train(ds, cfg)
	require.NoError(t, err)

	val := separable(60, 6)
	w1 := append([]float64(nil), m.W1...)
	b2 := append([]float64(nil), m.B2...)
	cal, err := Calibrate(m, val, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, cal.NLLAfter, cal.NLLBefore)
	assert.Equal(t, w1, m.W1)
	assert.Equal(t, b2, m.B2)
	assert.Contains(t, DefaultTemperatureGrid, cal.Temperature)
}

func TestTrainCalibratesOnValidation(t *testing.T) {
	cfg := toyConfig()
	cfg.ValidationSplit = 0.25
	cfg.Epochs = 40
	m, sum, err := Train(separable(200, 8), cfg)
	require.NoError(t, err)
	assert.Equal(t, sum.Calibration.Temperature, m.Temperature)
	assert.LessOrEqual(t, sum.Calibration.NLLAfter, sum.Calibration.NLLBefore)
	assert.Equal(t, 50, sum.ValSize)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := newModel([]string{"a", "b", "c"}, symptom.Dim, 7, rand.New(rand.NewSource(11)))
	m.Temperature = 1.25
	m.KnowledgeVersion = "kv-1"
	path := filepath.Join(t.TempDir(), "nested", "model.json")

	require.NoError(t, m.Save(path))
	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, m.W1, got.W1)
	assert.Equal(t, m.B1, got.B1)
	assert.Equal(t, m.W2, got.W2)
	assert.Equal(t, m.B2, got.B2)
	assert.Equal(t, 1.25, got.Temperature)
	assert.Equal(t, "kv-1", got.KnowledgeVersion)

	x := make([]float64, symptom.Dim)
	x[0], x[symptom.Count] = 1, 0.8
	p1, err := m.Predict(x)
	require.NoError(t, err)
	p2, err := got.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.json"))
		var ce *CorruptModelError
		require.True(t, errors.As(err, &ce))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("garbage", func(t *testing.T) {
		p := filepath.Join(dir, "garbage.json")
		require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))
		_, err := Load(p)
		var ce *CorruptModelError
		assert.True(t, errors.As(err, &ce))
	})

	t.Run("shape mismatch", func(t *testing.T) {
		m := newModel([]string{"a", "b"}, 4, 3, rand.New(rand.NewSource(1)))
		p := filepath.Join(dir, "shape.json")
		require.NoError(t, m.Save(p))

		var doc map[string]any
		raw, err := os.ReadFile(p)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &doc))
		doc["hidden_dim"] = 5
		raw, err = json.Marshal(doc)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(p, raw, 0o644))

		_, err = Load(p)
		var ce *CorruptModelError
		require.True(t, errors.As(err, &ce))
		assert.Contains(t, ce.Reason, "w1")
	})

	t.Run("wrong version", func(t *testing.T) {
		m := newModel([]string{"a", "b"}, 4, 3, rand.New(rand.NewSource(1)))
		p := filepath.Join(dir, "version.json")
		require.NoError(t, m.Save(p))
		var doc map[string]any
		raw, _ := os.ReadFile(p)
		require.NoError(t, json.Unmarshal(raw, &doc))
		doc["version"] = 99
		raw, _ = json.Marshal(doc)
		require.NoError(t, os.WriteFile(p, raw, 0o644))

		_, err := Load(p)
		var ce *CorruptModelError
		assert.True(t, errors.As(err, &ce))
	})
}

func TestCheckCompatible(t *testing.T) {
	m := newModel([]string{"a", "b"}, 4, 3, rand.New(rand.NewSource(1)))
	assert.NoError(t, m.CheckCompatible(4, []string{"a", "b"}))
	var ce *CorruptModelError
	assert.ErrorAs(t, m.CheckCompatible(5, []string{"a", "b"}), &ce)
	assert.ErrorAs(t, m.CheckCompatible(4, []string{"a", "c"}), &ce)
}

func TestHolderSwap(t *testing.T) {
	h := NewHolder(nil)
	_, err := h.Predict(make([]float64, 4))
	assert.ErrorIs(t, err, ErrNoModel)

	m1 := newModel([]string{"a", "b"}, 4, 3, rand.New(rand.NewSource(1)))
	m2 := newModel([]string{"a", "b"}, 4, 3, rand.New(rand.NewSource(2)))
	assert.Nil(t, h.Swap(m1))
	assert.Same(t, m1, h.Swap(m2))
	assert.Same(t, m2, h.Current())

	p, err := h.Predict(make([]float64, 4))
	require.NoError(t, err)
	assert.NoError(t, p.Validate())
}
