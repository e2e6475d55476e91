package network

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// #region artifact
const (
	// ArtifactFormat tags model files written by Save.
	ArtifactFormat = "adaptive-triage/mlp"
	// ArtifactVersion is bumped whenever the artifact layout changes.
	ArtifactVersion = 1
)

type artifact struct {
	Format           string    `json:"format"`
	Version          int       `json:"version"`
	Labels           []string  `json:"labels"`
	InputDim         int       `json:"input_dim"`
	HiddenDim        int       `json:"hidden_dim"`
	OutputDim        int       `json:"output_dim"`
	Temperature      float64   `json:"temperature"`
	W1               []float64 `json:"w1"`
	B1               []float64 `json:"b1"`
	W2               []float64 `json:"w2"`
	B2               []float64 `json:"b2"`
	TrainedAt        time.Time `json:"trained_at,omitempty"`
	KnowledgeVersion string    `json:"knowledge_version,omitempty"`
}

// #endregion artifact

// #region save
// Save writes m as a JSON artifact. The write goes to a temp file in the same
// directory and is renamed into place.
func (m *Model) Save(path string) error {
	a := artifact{
		Format:           ArtifactFormat,
		Version:          ArtifactVersion,
		Labels:           m.Labels,
		InputDim:         m.InputDim,
		HiddenDim:        m.HiddenDim,
		OutputDim:        m.OutputDim,
		Temperature:      m.Temperature,
		W1:               m.W1,
		B1:               m.B1,
		W2:               m.W2,
		B2:               m.B2,
		TrainedAt:        m.TrainedAt,
		KnowledgeVersion: m.KnowledgeVersion,
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename model: %w", err)
	}
	return nil
}

// #endregion save

// #region load
// Load reads an artifact written by Save. Any read, decode or shape problem
// is a *CorruptModelError.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CorruptModelError{Path: path, Reason: "read", Err: err}
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &CorruptModelError{Path: path, Reason: "decode", Err: err}
	}
	if err := a.check(); err != nil {
		return nil, &CorruptModelError{Path: path, Reason: err.Error()}
	}
	return &Model{
		Labels:           a.Labels,
		InputDim:         a.InputDim,
		HiddenDim:        a.HiddenDim,
		OutputDim:        a.OutputDim,
		W1:               a.W1,
		B1:               a.B1,
		W2:               a.W2,
		B2:               a.B2,
		Temperature:      a.Temperature,
		TrainedAt:        a.TrainedAt,
		KnowledgeVersion: a.KnowledgeVersion,
	}, nil
}

func (a artifact) check() error {
	if a.Format != ArtifactFormat {
		return fmt.Errorf("format %q, want %q", a.Format, ArtifactFormat)
	}
	if a.Version != ArtifactVersion {
		return fmt.Errorf("version %d, want %d", a.Version, ArtifactVersion)
	}
	if a.InputDim <= 0 || a.HiddenDim <= 0 || a.OutputDim < 2 {
		return fmt.Errorf("invalid dims %d/%d/%d", a.InputDim, a.HiddenDim, a.OutputDim)
	}
	if len(a.Labels) != a.OutputDim {
		return fmt.Errorf("%d labels for %d outputs", len(a.Labels), a.OutputDim)
	}
	shapes := []struct {
		name string
		got  int
		want int
	}{
		{"w1", len(a.W1), a.HiddenDim * a.InputDim},
		{"b1", len(a.B1), a.HiddenDim},
		{"w2", len(a.W2), a.OutputDim * a.HiddenDim},
		{"b2", len(a.B2), a.OutputDim},
	}
	for _, s := range shapes {
		if s.got != s.want {
			return fmt.Errorf("%s has %d values, want %d", s.name, s.got, s.want)
		}
	}
	if !(a.Temperature > 0) || math.IsInf(a.Temperature, 0) {
		return fmt.Errorf("invalid temperature %v", a.Temperature)
	}
	return nil
}

// #endregion load
