package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-triage/internal/session"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	Config      FixtureConfig `json:"config"`
	Cases       []FixtureCase `json:"cases"`
}

// FixtureConfig overrides the replay defaults. Zero values keep the default.
type FixtureConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MaxQuestions        int     `json:"max_questions"`
	DifferentialSize    int     `json:"differential_size"`
}

// FixtureAnswer is one scripted finding.
type FixtureAnswer struct {
	Presence string   `json:"presence"` // yes | no | unknown
	Severity *float64 `json:"severity,omitempty"`
}

// FixtureCase is one scripted session. Questions the script has no answer
// for are answered unknown.
type FixtureCase struct {
	ID       string                   `json:"id"`
	Initial  map[string]FixtureAnswer `json:"initial"`
	Answers  map[string]FixtureAnswer `json:"answers"`
	Tests    map[string]string        `json:"tests"`
	Expected FixtureExpected          `json:"expected"`
}

// FixtureExpected lists the outcome checks for a case. Empty fields are not
// checked.
type FixtureExpected struct {
	Status     string `json:"status"`
	Primary    string `json:"primary"`
	Tier       string `json:"tier"`
	StopReason string `json:"stop_reason"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToScripts converts every fixture case to a Script.
func (f *Fixture) ToScripts() ([]Script, error) {
	out := make([]Script, 0, len(f.Cases))
	for _, c := range f.Cases {
		s, err := c.ToScript()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ToScript resolves symptom names, presences and test results.
func (c *FixtureCase) ToScript() (Script, error) {
	s := Script{
		ID:       c.ID,
		Answers:  make(map[symptom.ID]session.Answer, len(c.Answers)),
		Tests:    make(map[string]symptom.TestResult, len(c.Tests)),
		Expected: Expectation(c.Expected),
	}
	for name, fa := range c.Initial {
		a, err := fa.toAnswer(name)
		if err != nil {
			return Script{}, fmt.Errorf("case %s: %w", c.ID, err)
		}
		s.Initial = append(s.Initial, a)
	}
	sortAnswers(s.Initial)
	for name, fa := range c.Answers {
		a, err := fa.toAnswer(name)
		if err != nil {
			return Script{}, fmt.Errorf("case %s: %w", c.ID, err)
		}
		s.Answers[a.Symptom] = a
	}
	for id, raw := range c.Tests {
		r, err := symptom.ParseTestResult(raw)
		if err != nil {
			return Script{}, fmt.Errorf("case %s: test %s: %w", c.ID, id, err)
		}
		s.Tests[id] = r
	}
	return s, nil
}

func (fa FixtureAnswer) toAnswer(name string) (session.Answer, error) {
	id, err := symptom.ParseID(name)
	if err != nil {
		return session.Answer{}, err
	}
	p, err := symptom.ParsePresence(fa.Presence)
	if err != nil {
		return session.Answer{}, fmt.Errorf("%s: %w", name, err)
	}
	return session.Answer{Symptom: id, Presence: p, Severity: fa.Severity}, nil
}

// ToReplayConfig applies the fixture overrides to DefaultReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	if fc.ConfidenceThreshold > 0 {
		cfg.Engine.Selector.ConfidenceThreshold = fc.ConfidenceThreshold
	}
	if fc.MaxQuestions > 0 {
		cfg.Engine.Selector.MaxQuestions = fc.MaxQuestions
	}
	if fc.DifferentialSize > 0 {
		cfg.Gate.DifferentialSize = fc.DifferentialSize
	}
	return cfg
}

// #endregion fixture-loader
