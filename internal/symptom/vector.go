package symptom

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSeverityRange is returned when a severity falls outside [0, 1].
var ErrSeverityRange = errors.New("severity out of range [0,1]")

// #region presence
// Presence is the tri-state answer for one symptom. Unknown is distinct from
// Absent: an unasked symptom is never treated as a negative finding.
type Presence int8

const (
	Unknown Presence = iota
	Absent
	Present
)

func (p Presence) String() string {
	switch p {
	case Absent:
		return "absent"
	case Present:
		return "present"
	default:
		return "unknown"
	}
}

// ParsePresence accepts yes/no/unknown and the common synonyms.
func ParsePresence(s string) (Presence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "present", "true", "1":
		return Present, nil
	case "n", "no", "absent", "false", "0":
		return Absent, nil
	case "u", "unknown", "?", "", "skip":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("parse presence %q: expected yes, no or unknown", s)
}

// #endregion presence

// #region test-result
// TestResult is the state of a confirmatory test.
type TestResult int8

const (
	TestUnknown TestResult = iota
	TestNegative
	TestPositive
)

func (r TestResult) String() string {
	switch r {
	case TestNegative:
		return "negative"
	case TestPositive:
		return "positive"
	default:
		return "unknown"
	}
}

// ParseTestResult accepts positive/negative/unknown.
func ParseTestResult(s string) (TestResult, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pos", "positive", "+", "yes":
		return TestPositive, nil
	case "neg", "negative", "-", "no":
		return TestNegative, nil
	case "", "unknown", "pending":
		return TestUnknown, nil
	}
	return TestUnknown, fmt.Errorf("parse test result %q: expected positive, negative or unknown", s)
}

// #endregion test-result

// #region observation
// Observation is the recorded state of one symptom.
type Observation struct {
	Presence      Presence
	Severity      float64 // valid only when SeverityKnown
	SeverityKnown bool
}

// #endregion observation

// #region vector
// Vector is the per-session evidence: one Observation per catalog symptom plus
// confirmatory test results keyed by test id. The zero value is all-unknown.
type Vector struct {
	obs   [Count]Observation
	tests map[string]TestResult
}

// NewVector returns an all-unknown vector.
func NewVector() *Vector {
	return &Vector{}
}

// Set records an answer. A nil severity leaves severity unknown for Present.
// Absent always forces severity to 0; Unknown clears the observation.
func (v *Vector) Set(id ID, p Presence, severity *float64) error {
	if !id.Valid() {
		return &ShapeError{Key: id.Key(), Reason: "unrecognized symptom id"}
	}
	switch p {
	case Unknown:
		v.obs[id] = Observation{}
	case Absent:
		v.obs[id] = Observation{Presence: Absent, Severity: 0, SeverityKnown: true}
	case Present:
		o := Observation{Presence: Present}
		if severity != nil {
			if *severity < 0 || *severity > 1 {
				return fmt.Errorf("set %s: %w (got %.3f)", id.Key(), ErrSeverityRange, *severity)
			}
			o.Severity = *severity
			o.SeverityKnown = true
		}
		v.obs[id] = o
	default:
		return fmt.Errorf("set %s: invalid presence %d", id.Key(), p)
	}
	return nil
}

// Get returns the observation for id. Out-of-range ids read as unknown.
func (v *Vector) Get(id ID) Observation {
	if v == nil || !id.Valid() {
		return Observation{}
	}
	return v.obs[id]
}

// IsPresent reports an explicit positive finding.
func (v *Vector) IsPresent(id ID) bool { return v.Get(id).Presence == Present }

// IsAbsent reports an explicit negative finding.
func (v *Vector) IsAbsent(id ID) bool { return v.Get(id).Presence == Absent }

// Severity returns the severity for id, falling back to def when present
// without a recorded severity. Unknown and absent symptoms read as 0.
func (v *Vector) Severity(id ID, def float64) float64 {
	o := v.Get(id)
	if o.Presence != Present {
		return 0
	}
	if !o.SeverityKnown {
		return def
	}
	return o.Severity
}

// Answered returns the ids with a known presence, ascending.
func (v *Vector) Answered() []ID {
	var ids []ID
	for i := range v.obs {
		if v.obs[i].Presence != Unknown {
			ids = append(ids, ID(i))
		}
	}
	return ids
}

// PresentIDs returns the ids with an explicit positive finding, ascending.
func (v *Vector) PresentIDs() []ID {
	var ids []ID
	for i := range v.obs {
		if v.obs[i].Presence == Present {
			ids = append(ids, ID(i))
		}
	}
	return ids
}

// SetTest records a confirmatory test result.
func (v *Vector) SetTest(testID string, r TestResult) error {
	testID = strings.TrimSpace(testID)
	if testID == "" {
		return fmt.Errorf("set test: empty test id")
	}
	if v.tests == nil {
		v.tests = make(map[string]TestResult)
	}
	if r == TestUnknown {
		delete(v.tests, testID)
		return nil
	}
	v.tests[testID] = r
	return nil
}

// Test returns the recorded result for testID.
func (v *Vector) Test(testID string) TestResult {
	if v == nil || v.tests == nil {
		return TestUnknown
	}
	return v.tests[testID]
}

// Tests returns a copy of all recorded test results.
func (v *Vector) Tests() map[string]TestResult {
	out := make(map[string]TestResult, len(v.tests))
	for k, r := range v.tests {
		out[k] = r
	}
	return out
}

// Clone returns a deep copy.
func (v *Vector) Clone() *Vector {
	if v == nil {
		return NewVector()
	}
	c := &Vector{obs: v.obs}
	if len(v.tests) > 0 {
		c.tests = v.Tests()
	}
	return c
}

// String renders the known findings, e.g. "fever=present(0.80) cough=absent".
func (v *Vector) String() string {
	var parts []string
	for _, id := range v.Answered() {
		o := v.obs[id]
		if o.Presence == Present && o.SeverityKnown {
			parts = append(parts, fmt.Sprintf("%s=present(%.2f)", id.Key(), o.Severity))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", id.Key(), o.Presence))
	}
	keys := make([]string, 0, len(v.tests))
	for k := range v.tests {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("test:%s=%s", k, v.tests[k]))
	}
	return strings.Join(parts, " ")
}

// #endregion vector

// #region from-severities
// FromSeverities builds a vector from a sparse name->severity payload.
// A severity of 0 records an explicit negative; (0, 1] records a positive.
// Unknown names are rejected here rather than deeper in the pipeline.
func FromSeverities(m map[string]float64) (*Vector, error) {
	v := NewVector()
	for name, sev := range m {
		id, err := ParseID(name)
		if err != nil {
			return nil, err
		}
		if sev == 0 {
			if err := v.Set(id, Absent, nil); err != nil {
				return nil, err
			}
			continue
		}
		s := sev
		if err := v.Set(id, Present, &s); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// #endregion from-severities
