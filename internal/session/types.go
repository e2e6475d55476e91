package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/selector"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// #region status
// Status is a session's lifecycle state.
type Status string

const (
	StatusCreated        Status = "created"
	StatusAwaitingAnswer Status = "awaiting_answer"
	StatusFinished       Status = "finished"
)

// #endregion status

// #region predictor
// Predictor maps an encoded feature vector to a raw posterior. A
// network.Holder satisfies it and can be swapped under live sessions.
type Predictor interface {
	Predict(x []float64) (diagnosis.Posterior, error)
}

// #endregion predictor

// #region answer
// Answer is one recorded finding. A nil Severity on a present answer leaves
// severity unknown.
type Answer struct {
	Symptom  symptom.ID
	Presence symptom.Presence
	Severity *float64
}

// Question is the next symptom the selector wants answered.
type Question struct {
	Symptom symptom.ID `json:"symptom"`
	Key     string     `json:"key"`
	Text    string     `json:"text"`
	EIG     float64    `json:"eig"`
}

func newQuestion(c selector.Candidate) *Question {
	return &Question{
		Symptom: c.Symptom,
		Key:     c.Symptom.Key(),
		Text:    fmt.Sprintf("Do you have %s?", strings.ToLower(c.Symptom.Name())),
		EIG:     c.EIG,
	}
}

// Turn is the engine's reply to Start, Answer or RecordTest: either the next
// question or, once finished, the result.
type Turn struct {
	SessionID      string               `json:"session_id"`
	Status         Status               `json:"status"`
	Question       *Question            `json:"question,omitempty"`
	Result         *diagnosis.Result    `json:"result,omitempty"`
	QuestionsAsked int                  `json:"questions_asked"`
	Posterior      diagnosis.Posterior  `json:"posterior"`
	Primary        int                  `json:"primary"`
	Syndrome       string               `json:"syndrome"`
	Candidates     []selector.Candidate `json:"candidates,omitempty"` // top-k, when DebugK > 0
	RedFlags       []diagnosis.RedFlag  `json:"red_flags,omitempty"`
}

// Finished reports whether the turn carries a final result.
func (t Turn) Finished() bool { return t.Status == StatusFinished }

// #endregion answer

// #region snapshot
// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID             string
	Status         Status
	Vector         *symptom.Vector
	QuestionsAsked int
	Result         *diagnosis.Result
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// #endregion snapshot

// #region hooks
// Record is a finished session handed to an Archiver.
type Record struct {
	ID             string
	Vector         *symptom.Vector
	Result         diagnosis.Result
	QuestionsAsked int
	CreatedAt      time.Time
	FinishedAt     time.Time
}

// Archiver persists finished sessions.
type Archiver interface {
	ArchiveSession(rec Record) error
}

// TurnKind names the operation that produced a TurnEvent.
type TurnKind string

const (
	TurnStart  TurnKind = "start"
	TurnAnswer TurnKind = "answer"
	TurnTest   TurnKind = "test"
	TurnFinish TurnKind = "finish"
)

// TurnEvent is one journaled step of a session.
type TurnEvent struct {
	SessionID  string
	Seq        int
	Kind       TurnKind
	Input      string // e.g. "cough=absent" or "flu_test=positive"
	Primary    string
	Confidence float64
	Entropy    float64
	Question   string
	StopReason diagnosis.StopReason
	At         time.Time
}

// Journal records every turn.
type Journal interface {
	RecordTurn(ev TurnEvent) error
}

// #endregion hooks

// #region engine-config
// EngineConfig configures an Engine.
type EngineConfig struct {
	Selector selector.SelectorConfig
	DebugK   int // when > 0, turns carry the top-k EIG candidates
}

// DefaultEngineConfig returns the standard engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Selector: selector.DefaultSelectorConfig()}
}

// #endregion engine-config
