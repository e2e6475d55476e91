package knowledge

import "github.com/danielpatrickdp/adaptive-triage/internal/symptom"

// #region certainty
// Certainty is the diagnostic kind of a condition: whether it can be called
// on the clinical picture alone or needs a test.
type Certainty string

const (
	CertaintyClinical     Certainty = "clinical"
	CertaintyPresumptive  Certainty = "presumptive"
	CertaintyConfirmatory Certainty = "confirmatory"
)

// #endregion certainty

// #region table-types
// Test is a confirmatory investigation a condition may require.
type Test struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Condition is one output class of the classifier.
type Condition struct {
	Key           string             `json:"key"`
	Name          string             `json:"name"`
	ICD10         string             `json:"icd10,omitempty"`
	Certainty     Certainty          `json:"certainty"`
	Syndromes     []string           `json:"syndromes,omitempty"`
	RequiredTests []string           `json:"required_tests,omitempty"`
	KeySymptoms   []string           `json:"key_symptoms,omitempty"`
	MinSupporting int                `json:"min_supporting,omitempty"`
	DowngradeTo   string             `json:"downgrade_to,omitempty"`
	Frequencies   map[string]float64 `json:"frequencies"`

	SupportiveTests []string      `json:"supportive_tests,omitempty"`
	Pearls          []string      `json:"pearls,omitempty"`
	Advice          []string      `json:"advice,omitempty"`
	RedFlags        []RedFlagRule `json:"red_flags,omitempty"` // checked only when this condition is primary

	keyIDs  []symptom.ID
	freqIDs map[symptom.ID]float64
}

// KeySymptomIDs returns the resolved key symptoms.
func (c Condition) KeySymptomIDs() []symptom.ID { return c.keyIDs }

// Frequency returns how often the condition presents with id. ok is false
// when the table does not list the symptom for this condition.
func (c Condition) Frequency(id symptom.ID) (f float64, ok bool) {
	f, ok = c.freqIDs[id]
	return f, ok
}

// NeedsTest reports whether the condition lists a confirmatory test.
func (c Condition) NeedsTest() bool { return len(c.RequiredTests) > 0 }

// Count bounds how many symptoms from a group are present.
// A nil Max is unbounded.
type Count struct {
	Of  []string `json:"of"`
	Min int      `json:"min,omitempty"`
	Max *int     `json:"max,omitempty"`

	ids []symptom.ID
}

// Clause matches when every Count holds.
type Clause struct {
	Counts []Count `json:"counts"`
}

// Syndrome is a named symptom pattern; it matches when any clause holds.
type Syndrome struct {
	Key   string   `json:"key"`
	Name  string   `json:"name"`
	Match []Clause `json:"match"`
}

// RedFlagRule emits a red flag when Symptom is present with severity above
// MinSeverity. A zero MinSeverity fires on presence alone.
type RedFlagRule struct {
	Name        string  `json:"name"`
	Symptom     string  `json:"symptom"`
	MinSeverity float64 `json:"min_severity,omitempty"`
	Message     string  `json:"message"`

	id symptom.ID
}

// SymptomID returns the resolved symptom.
func (r RedFlagRule) SymptomID() symptom.ID { return r.id }

// Fires reports whether the rule holds for a present symptom of severity s.
func (r RedFlagRule) Fires(s float64) bool {
	if r.MinSeverity == 0 {
		return true
	}
	return s > r.MinSeverity
}

// Requirement is one condition of a Pattern.
// State "present" (default) needs an explicit positive with severity in
// [Min, Max]; "absent" needs an explicit negative; "any" checks only the
// severity range, reading unknown and absent as 0.
type Requirement struct {
	Symptom string   `json:"symptom"`
	State   string   `json:"state,omitempty"`
	Min     float64  `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`

	id symptom.ID
}

// Pattern multiplies the named conditions when all requirements hold.
type Pattern struct {
	Name     string             `json:"name"`
	Requires []Requirement      `json:"requires"`
	Boost    map[string]float64 `json:"boost"`
}

// #endregion table-types
