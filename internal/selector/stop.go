package selector

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
)

// #region selector-config
// SelectorConfig holds the stop-rule thresholds.
type SelectorConfig struct {
	ConfidenceThreshold float64 // top-1 staged probability needed to stop
	MaxQuestions        int     // hard cap on questions per session
}

// DefaultSelectorConfig returns the standard stop thresholds.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		ConfidenceThreshold: 0.75,
		MaxQuestions:        12,
	}
}

// #endregion selector-config

// #region stop
// StopState is what the stop rules observe after each turn.
type StopState struct {
	Confidence     float64 // top-1 staged probability, 0 when indeterminate
	SupportMet     bool    // primary has its minimum supporting evidence
	RedFlags       int
	QuestionsAsked int
}

// StopDecision is the outcome of Evaluate.
type StopDecision struct {
	Stop   bool
	Reason diagnosis.StopReason
	Detail string
}

// Evaluate checks the stop rules in precedence order: red flag, confident,
// max questions.
func Evaluate(config SelectorConfig, s StopState) StopDecision {
	if s.RedFlags > 0 {
		return StopDecision{
			Stop:   true,
			Reason: diagnosis.StopRedFlag,
			Detail: fmt.Sprintf("%d red flag(s) require escalation", s.RedFlags),
		}
	}
	if s.Confidence >= config.ConfidenceThreshold && s.SupportMet {
		return StopDecision{
			Stop:   true,
			Reason: diagnosis.StopConfident,
			Detail: fmt.Sprintf("confidence %.4f >= %.4f with supporting evidence", s.Confidence, config.ConfidenceThreshold),
		}
	}
	if config.MaxQuestions > 0 && s.QuestionsAsked >= config.MaxQuestions {
		return StopDecision{
			Stop:   true,
			Reason: diagnosis.StopMaxQuestions,
			Detail: fmt.Sprintf("asked %d of %d questions", s.QuestionsAsked, config.MaxQuestions),
		}
	}
	return StopDecision{}
}

// #endregion stop
