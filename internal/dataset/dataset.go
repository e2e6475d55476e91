// Package dataset loads labelled cases, encodes them into feature vectors and
// produces stratified splits and class weights for training.
package dataset

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danielpatrickdp/adaptive-triage/internal/schemas"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

//go:embed case.schema.json
var caseSchema []byte

// #region types
// Case is one row of a JSONL case file.
type Case struct {
	CaseID    string             `json:"case_id,omitempty"`
	PatientID string             `json:"patient_id,omitempty"`
	OnsetDay  int                `json:"onset_day,omitempty"`
	Label     string             `json:"label_name"`
	Symptoms  map[string]float64 `json:"symptoms"`
	Tests     map[string]string  `json:"tests,omitempty"`
}

// Example is an encoded, labelled feature vector.
type Example struct {
	ID       string
	Features []float64
	Label    int
}

// Set is a labelled example collection over a fixed label space.
type Set struct {
	Labels   []string
	Dim      int
	Examples []Example
}

// Len returns the number of examples.
func (s Set) Len() int { return len(s.Examples) }

// ClassCounts returns the number of examples per label.
func (s Set) ClassCounts() []int {
	counts := make([]int, len(s.Labels))
	for _, ex := range s.Examples {
		if ex.Label >= 0 && ex.Label < len(counts) {
			counts[ex.Label]++
		}
	}
	return counts
}

// Validate checks feature lengths and label ranges.
func (s Set) Validate() error {
	if len(s.Labels) < 2 {
		return fmt.Errorf("dataset needs at least 2 labels, got %d", len(s.Labels))
	}
	for i, ex := range s.Examples {
		if err := symptom.CheckFeatures(ex.Features, s.Dim); err != nil {
			return fmt.Errorf("example %d (%s): %w", i, ex.ID, err)
		}
		if ex.Label < 0 || ex.Label >= len(s.Labels) {
			return fmt.Errorf("example %d (%s): label %d out of range", i, ex.ID, ex.Label)
		}
	}
	return nil
}

// subset returns a Set sharing labels and dim over the given examples.
func (s Set) subset(examples []Example) Set {
	return Set{Labels: s.Labels, Dim: s.Dim, Examples: examples}
}

// #endregion types

// #region loader

// LineError reports a case file row that failed to parse or validate.
type LineError struct {
	Path string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// LoadCases reads a JSONL case file, validating every row against the case
// schema. Blank lines are skipped.
func LoadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cases %s: %w", path, err)
	}
	defer f.Close()
	return ReadCases(f, path)
}

// ReadCases parses JSONL from r. name labels errors.
func ReadCases(r io.Reader, name string) ([]Case, error) {
	var cases []Case
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := schemas.Validate("case", caseSchema, raw); err != nil {
			return nil, &LineError{Path: name, Line: line, Err: err}
		}
		var c Case
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, &LineError{Path: name, Line: line, Err: err}
		}
		cases = append(cases, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	return cases, nil
}

// Build encodes cases over labels. Case labels may be a label key or one of
// names (display names in the same order as labels).
func Build(cases []Case, labels, names []string, enc *symptom.Encoder) (Set, error) {
	index := make(map[string]int, len(labels)*2)
	for i, l := range labels {
		index[l] = i
		if i < len(names) && names[i] != "" {
			index[names[i]] = i
		}
	}
	set := Set{Labels: labels, Dim: enc.Dim()}
	for i, c := range cases {
		label, ok := index[c.Label]
		if !ok {
			return Set{}, fmt.Errorf("case %d (%s): unknown label %q", i, c.CaseID, c.Label)
		}
		v, err := c.Vector()
		if err != nil {
			return Set{}, fmt.Errorf("case %d (%s): %w", i, c.CaseID, err)
		}
		id := c.CaseID
		if id == "" {
			id = fmt.Sprintf("case-%d", i)
		}
		set.Examples = append(set.Examples, Example{ID: id, Features: enc.Encode(v), Label: label})
	}
	return set, nil
}

// Vector converts the case's symptoms and tests into a symptom vector.
func (c Case) Vector() (*symptom.Vector, error) {
	v, err := symptom.FromSeverities(c.Symptoms)
	if err != nil {
		return nil, err
	}
	for id, r := range c.Tests {
		res, err := symptom.ParseTestResult(r)
		if err != nil {
			return nil, err
		}
		if err := v.SetTest(id, res); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// #endregion loader
