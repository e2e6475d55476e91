package diagnosis

import "slices"

// #region tier
// Tier is the diagnostic certainty attached to a result.
type Tier string

const (
	TierClinical     Tier = "clinical"     // syndrome pattern alone suffices
	TierPresumptive  Tier = "presumptive"  // probable, confirmation advised
	TierConfirmatory Tier = "confirmatory" // a required test came back positive

	// TierNeedsMoreInformation marks an indeterminate or prematurely finished result.
	TierNeedsMoreInformation Tier = "needs_more_information"
)

// #endregion tier

// #region stop-reason
// StopReason records which rule ended a session.
type StopReason string

const (
	StopNone         StopReason = ""
	StopRedFlag      StopReason = "red_flag"
	StopConfident    StopReason = "confident"
	StopMaxQuestions StopReason = "max_questions"
	StopExhausted    StopReason = "exhausted"
	StopForced       StopReason = "forced"
)

// #endregion stop-reason

// #region red-flag
// RedFlag is a finding that mandates escalation regardless of confidence.
// Condition is set when the flag belongs to the primary condition rather
// than the general list.
type RedFlag struct {
	Name      string  `json:"name"`
	Symptom   string  `json:"symptom"`
	Severity  float64 `json:"severity"`
	Message   string  `json:"message"`
	Condition string  `json:"condition,omitempty"`
}

// #endregion red-flag

// #region result
// IndeterminateName labels the pseudo-condition used when every condition
// has been ruled out.
const IndeterminateName = "Indeterminate (needs more information)"

// Candidate is one entry of a differential.
type Candidate struct {
	Condition   int     `json:"condition"`
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// Result is the outcome of a diagnostic session. It is built once and not
// mutated afterwards.
type Result struct {
	Primary           int          `json:"primary"` // -1 when indeterminate
	PrimaryName       string       `json:"primary_name"`
	ICD10             string       `json:"icd10,omitempty"`
	Confidence        float64      `json:"confidence"`
	Posterior         Posterior    `json:"posterior"`
	Indeterminate     float64      `json:"indeterminate"`
	Tier              Tier         `json:"tier"`
	RedFlags          []RedFlag    `json:"red_flags,omitempty"`
	Differential      []Candidate  `json:"differential,omitempty"`
	RequiredTests     []string     `json:"required_tests,omitempty"`
	SupportiveTests   []string     `json:"supportive_tests,omitempty"`
	ClinicalPearls    []string     `json:"clinical_pearls,omitempty"`
	Reasoning         Reasoning    `json:"clinical_reasoning"`
	Recommendations   []string     `json:"recommendations,omitempty"`
	Syndrome          string       `json:"syndrome"`
	SyndromeDiagnosis string       `json:"syndrome_diagnosis,omitempty"`
	Severity          string       `json:"severity"`
	StopReason        StopReason   `json:"stop_reason,omitempty"`
	QuestionsAsked    int          `json:"questions_asked"`
	KnowledgeVersion  string       `json:"knowledge_version,omitempty"`
	Trace             []TraceEntry `json:"trace,omitempty"`
}

// IsIndeterminate reports whether every condition was ruled out.
func (r Result) IsIndeterminate() bool {
	return r.Primary < 0
}

// Clone returns a deep copy that shares no slices with r.
func (r Result) Clone() Result {
	c := r
	c.Posterior = r.Posterior.Clone()
	c.RedFlags = slices.Clone(r.RedFlags)
	c.Differential = slices.Clone(r.Differential)
	c.RequiredTests = slices.Clone(r.RequiredTests)
	c.SupportiveTests = slices.Clone(r.SupportiveTests)
	c.ClinicalPearls = slices.Clone(r.ClinicalPearls)
	c.Reasoning = r.Reasoning.Clone()
	c.Recommendations = slices.Clone(r.Recommendations)
	c.Trace = slices.Clone(r.Trace)
	return c
}

// TraceEntry is one line of the gate's audit trail.
type TraceEntry struct {
	Rule   string `json:"rule"`
	Kind   string `json:"kind"`
	Fired  bool   `json:"fired"`
	Detail string `json:"detail,omitempty"`
}

// #endregion result

// #region reasoning
// Finding relates one symptom to the primary condition.
type Finding struct {
	Symptom   string  `json:"symptom"`
	Frequency float64 `json:"frequency"` // share of cases presenting with it, 0 when not listed
	Note      string  `json:"note"`
}

// Reasoning explains the primary condition against the evidence.
// KeyFindings are present symptoms common in the condition, Supporting are
// present symptoms seen only sometimes, and Inconsistent holds present
// symptoms atypical for it plus expected symptoms the patient denied.
type Reasoning struct {
	Syndrome     string    `json:"syndrome"`
	KeyFindings  []Finding `json:"key_findings,omitempty"`
	Supporting   []Finding `json:"supporting_features,omitempty"`
	Inconsistent []Finding `json:"inconsistent_features,omitempty"`
}

// Clone returns a deep copy.
func (r Reasoning) Clone() Reasoning {
	return Reasoning{
		Syndrome:     r.Syndrome,
		KeyFindings:  slices.Clone(r.KeyFindings),
		Supporting:   slices.Clone(r.Supporting),
		Inconsistent: slices.Clone(r.Inconsistent),
	}
}

// #endregion reasoning
