package gate

import (
	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/knowledge"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// #region rule-kind
// RuleKind enumerates the rule variants.
type RuleKind string

const (
	KindVeto    RuleKind = "veto"
	KindBoost   RuleKind = "boost"
	KindRedFlag RuleKind = "red_flag"
)

// #endregion rule-kind

// #region rule
// Veto zeroes a condition.
type Veto struct {
	Condition int
	Reason    string
}

// Factor multiplies a condition's probability.
type Factor struct {
	Condition  int
	Multiplier float64
	Reason     string
}

// Context is what a rule observes: the evidence, the matched syndrome and
// the posterior as left by the rules before it.
type Context struct {
	Table     *knowledge.Table
	Vector    *symptom.Vector
	Syndrome  string
	Posterior diagnosis.Posterior
	Vetoed    []bool
	Primary   int // argmax after boosts, -1 before or when collapsed
	Config    GateConfig
}

// severity reads a symptom's severity with the configured default.
func (c *Context) severity(id symptom.ID) float64 {
	return c.Vector.Severity(id, c.Config.DefaultSeverity)
}

// Rule is a tagged variant. Exactly the function matching Kind is set.
type Rule struct {
	Name  string
	Kind  RuleKind
	Veto  func(*Context) []Veto
	Boost func(*Context) []Factor
	Flag  func(*Context) []diagnosis.RedFlag
}

// #endregion rule

// #region gate-config
// GateConfig holds rule thresholds and multipliers.
type GateConfig struct {
	DifferentialSize int     // k for the syndrome-scoped differential
	DefaultSeverity  float64 // severity for present-without-severity answers
	InScopeFactor    float64 // syndrome scope boost
	OutOfScopeFactor float64 // syndrome scope penalty

	CentorTarget string  // condition key boosted by the Centor count
	CentorLow    float64 // score <= 1
	CentorMid    float64 // score == 2
	CentorHigh   float64 // score >= 3

	CurbTarget string  // condition key boosted by the CURB-like count
	CurbMin    int     // count needed to fire
	CurbFactor float64 // multiplier when fired

	KeyFindingFrequency float64 // present symptoms above this are key findings
	ExpectedFrequency   float64 // denied symptoms above this are inconsistent
}

// DefaultGateConfig returns the standard thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		DifferentialSize: 5,
		DefaultSeverity:  0.5,
		InScopeFactor:    4.0,
		OutOfScopeFactor: 0.25,
		CentorTarget:     "strep_pharyngitis",
		CentorLow:        0.1,
		CentorMid:        0.5,
		CentorHigh:       1.5,
		CurbTarget:       "pneumonia_syndrome",
		CurbMin:          2,
		CurbFactor:       2.0,

		KeyFindingFrequency: 0.7,
		ExpectedFrequency:   0.8,
	}
}

// #endregion gate-config

// #region staging
// Staging is the gate's output for one evaluation.
type Staging struct {
	Posterior         diagnosis.Posterior // all zero when indeterminate
	Indeterminate     float64             // 1 when every condition was vetoed
	Primary           int                 // -1 when indeterminate
	Tier              diagnosis.Tier
	RedFlags          []diagnosis.RedFlag
	Differential      []diagnosis.Candidate
	RequiredTests     []string
	Syndrome          string
	SyndromeDiagnosis string
	Severity          string
	Reasoning         diagnosis.Reasoning
	Recommendations   []string
	Vetoed            []int
	Trace             []diagnosis.TraceEntry
}

// Confidence returns the primary condition's staged probability.
func (s Staging) Confidence() float64 {
	if s.Primary < 0 {
		return 0
	}
	return s.Posterior[s.Primary]
}

// #endregion staging
