// Package session runs adaptive diagnostic conversations: each session
// accumulates answers, re-runs encoder, classifier, gate and selector on
// every turn, and finishes once a stop rule fires.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/gate"
	"github.com/danielpatrickdp/adaptive-triage/internal/selector"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// #region session
type session struct {
	mu        sync.Mutex
	id        string
	status    Status
	vector    *symptom.Vector
	asked     map[symptom.ID]bool
	seq       int
	result    *diagnosis.Result
	createdAt time.Time
	updatedAt time.Time
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		ID:             s.id,
		Status:         s.status,
		Vector:         s.vector.Clone(),
		QuestionsAsked: len(s.asked),
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}
	if s.result != nil {
		r := s.result.Clone()
		snap.Result = &r
	}
	return snap
}

// #endregion session

// #region engine
// Engine owns the live sessions. Sessions never share mutable state; the
// predictor, gate and encoder are read-only and shared.
type Engine struct {
	predictor Predictor
	gate      *gate.Gate
	encoder   *symptom.Encoder
	config    EngineConfig
	archiver  Archiver
	journal   Journal
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// Option customizes an Engine.
type Option func(*Engine)

// WithArchiver archives every finished session.
func WithArchiver(a Archiver) Option { return func(e *Engine) { e.archiver = a } }

// WithJournal journals every turn.
func WithJournal(j Journal) Option { return func(e *Engine) { e.journal = j } }

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine creates an engine.
func NewEngine(p Predictor, g *gate.Gate, enc *symptom.Encoder, config EngineConfig, opts ...Option) *Engine {
	e := &Engine{
		predictor: p,
		gate:      g,
		encoder:   enc,
		config:    config,
		logger:    slog.Default(),
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With("component", "session")
	return e
}

// Start opens a session seeded with prior answers and runs the pipeline
// once. The returned turn is already finished when a stop rule fires on the
// prior answers alone.
func (e *Engine) Start(prior []Answer) (Turn, error) {
	v := symptom.NewVector()
	for _, a := range prior {
		if err := v.Set(a.Symptom, a.Presence, a.Severity); err != nil {
			return Turn{}, fmt.Errorf("start: %w", err)
		}
	}

	now := e.now()
	s := &session{
		id:        uuid.New().String(),
		status:    StatusCreated,
		vector:    v,
		asked:     make(map[symptom.ID]bool),
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	turn, err := e.advance(s, TurnStart, v.String())
	if err != nil {
		return Turn{}, fmt.Errorf("start: %w", err)
	}

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.logger.Info("session started", "session", s.id, "prior", len(prior), "status", turn.Status)
	return turn, nil
}

// Answer records a finding and advances the session. Answering the same
// symptom again overwrites the earlier answer and does not count as a new
// question.
func (e *Engine) Answer(id string, sym symptom.ID, value symptom.Presence, severity *float64) (Turn, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Turn{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return Turn{}, &SessionClosedError{ID: id}
	}
	if err := s.vector.Set(sym, value, severity); err != nil {
		return Turn{}, fmt.Errorf("answer %s: %w", id, err)
	}
	s.asked[sym] = true

	input := fmt.Sprintf("%s=%s", sym.Key(), value)
	if severity != nil && value == symptom.Present {
		input = fmt.Sprintf("%s=present(%.2f)", sym.Key(), *severity)
	}
	turn, err := e.advance(s, TurnAnswer, input)
	if err != nil {
		return Turn{}, fmt.Errorf("answer %s: %w", id, err)
	}
	return turn, nil
}

// RecordTest records a confirmatory test result and advances the session
// without counting a question.
func (e *Engine) RecordTest(id, testID string, r symptom.TestResult) (Turn, error) {
	if !e.gate.Table().HasTest(testID) {
		return Turn{}, fmt.Errorf("record test %s: unknown test %q", id, testID)
	}
	s, err := e.lookup(id)
	if err != nil {
		return Turn{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return Turn{}, &SessionClosedError{ID: id}
	}
	if err := s.vector.SetTest(testID, r); err != nil {
		return Turn{}, fmt.Errorf("record test %s: %w", id, err)
	}
	turn, err := e.advance(s, TurnTest, fmt.Sprintf("%s=%s", testID, r))
	if err != nil {
		return Turn{}, fmt.Errorf("record test %s: %w", id, err)
	}
	return turn, nil
}

// Finish force-terminates a session with one last gate evaluation. If no
// stop rule holds on the current evidence the result is marked as needing
// more information. Finishing a finished session returns its stored result.
func (e *Engine) Finish(id string) (diagnosis.Result, error) {
	s, err := e.lookup(id)
	if err != nil {
		return diagnosis.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return s.result.Clone(), nil
	}

	ev, err := e.evaluate(s.vector, len(s.asked))
	if err != nil {
		return diagnosis.Result{}, fmt.Errorf("finish %s: %w", id, err)
	}
	reason := ev.decision.Reason
	if !ev.decision.Stop {
		reason = diagnosis.StopForced
	}
	turn := e.close(s, ev, reason)
	e.journalTurn(s, TurnFinish, "", turn)
	return *turn.Result, nil
}

// Diagnose runs the pipeline once over v without opening a session. The
// stop reason reports which stop rule, if any, already holds.
func (e *Engine) Diagnose(v *symptom.Vector) (diagnosis.Result, error) {
	ev, err := e.evaluate(v, 0)
	if err != nil {
		return diagnosis.Result{}, fmt.Errorf("diagnose: %w", err)
	}
	return e.gate.Result(ev.staging, ev.decision.Reason, 0), nil
}

// Get returns a copy of the session.
func (e *Engine) Get(id string) (Snapshot, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Len returns the number of sessions held, finished ones included.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// Evict drops finished sessions last updated before cutoff and returns how
// many were removed.
func (e *Engine) Evict(cutoff time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, s := range e.sessions {
		s.mu.Lock()
		stale := s.status == StatusFinished && s.updatedAt.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(e.sessions, id)
			n++
		}
	}
	return n
}

// #endregion engine

// #region pipeline
type evaluation struct {
	raw      diagnosis.Posterior
	staging  gate.Staging
	decision selector.StopDecision
}

// evaluate runs encoder, classifier, gate and stop rules over v.
func (e *Engine) evaluate(v *symptom.Vector, asked int) (evaluation, error) {
	x := e.encoder.Encode(v)
	raw, err := e.predictor.Predict(x)
	if err != nil {
		return evaluation{}, fmt.Errorf("predict: %w", err)
	}
	st, err := e.gate.Stage(raw, v)
	if err != nil {
		return evaluation{}, fmt.Errorf("stage: %w", err)
	}
	decision := selector.Evaluate(e.config.Selector, selector.StopState{
		Confidence:     st.Confidence(),
		SupportMet:     e.gate.SupportMet(st.Primary, v),
		RedFlags:       len(st.RedFlags),
		QuestionsAsked: asked,
	})
	return evaluation{raw: raw, staging: st, decision: decision}, nil
}

// advance re-runs the pipeline and either finishes the session or poses
// the next question. Caller holds s.mu.
func (e *Engine) advance(s *session, kind TurnKind, input string) (Turn, error) {
	ev, err := e.evaluate(s.vector, len(s.asked))
	if err != nil {
		return Turn{}, err
	}
	if ev.decision.Stop {
		turn := e.close(s, ev, ev.decision.Reason)
		e.journalTurn(s, kind, input, turn)
		return turn, nil
	}

	// indeterminate stagings rank on the raw posterior
	rankOn := ev.staging.Posterior
	if ev.staging.Primary < 0 {
		rankOn, _ = ev.raw.Normalize()
	}
	eligible := e.unasked(s, e.gate.Eligible(ev.staging.Syndrome))
	next, err := selector.Next(rankOn, e.gate.Table(), s.vector, eligible)
	if errors.Is(err, selector.ErrExhausted) {
		turn := e.close(s, ev, diagnosis.StopExhausted)
		e.journalTurn(s, kind, input, turn)
		return turn, nil
	}
	if err != nil {
		return Turn{}, err
	}

	s.status = StatusAwaitingAnswer
	s.updatedAt = e.now()
	turn := e.turn(s, ev)
	turn.Question = newQuestion(next)
	if e.config.DebugK > 0 {
		turn.Candidates = selector.Top(rankOn, e.gate.Table(), s.vector, eligible, e.config.DebugK)
	}
	e.journalTurn(s, kind, input, turn)
	return turn, nil
}

// close finalizes the session. Caller holds s.mu.
func (e *Engine) close(s *session, ev evaluation, reason diagnosis.StopReason) Turn {
	result := e.gate.Result(ev.staging, reason, len(s.asked))
	s.status = StatusFinished
	s.result = &result
	s.updatedAt = e.now()

	e.logger.Info("session finished",
		"session", s.id,
		"stop", reason,
		"primary", result.PrimaryName,
		"confidence", fmt.Sprintf("%.4f", result.Confidence),
		"tier", result.Tier,
		"questions", len(s.asked),
	)
	if e.archiver != nil {
		rec := Record{
			ID:             s.id,
			Vector:         s.vector.Clone(),
			Result:         result.Clone(),
			QuestionsAsked: len(s.asked),
			CreatedAt:      s.createdAt,
			FinishedAt:     s.updatedAt,
		}
		if err := e.archiver.ArchiveSession(rec); err != nil {
			e.logger.Warn("archive failed", "session", s.id, "error", err)
		}
	}

	turn := e.turn(s, ev)
	r := result.Clone()
	turn.Result = &r
	return turn
}

func (e *Engine) turn(s *session, ev evaluation) Turn {
	return Turn{
		SessionID:      s.id,
		Status:         s.status,
		QuestionsAsked: len(s.asked),
		Posterior:      ev.staging.Posterior.Clone(),
		Primary:        ev.staging.Primary,
		Syndrome:       ev.staging.Syndrome,
		RedFlags:       slices.Clone(ev.staging.RedFlags),
	}
}

// unasked filters out symptoms already put to the patient, including ones
// answered unknown.
func (e *Engine) unasked(s *session, ids []symptom.ID) []symptom.ID {
	out := make([]symptom.ID, 0, len(ids))
	for _, id := range ids {
		if !s.asked[id] {
			out = append(out, id)
		}
	}
	return out
}

func (e *Engine) journalTurn(s *session, kind TurnKind, input string, t Turn) {
	s.seq++
	if e.journal == nil {
		return
	}
	ev := TurnEvent{
		SessionID: s.id,
		Seq:       s.seq,
		Kind:      kind,
		Input:     input,
		Entropy:   t.Posterior.Entropy(),
		At:        e.now(),
	}
	if t.Primary >= 0 {
		ev.Primary = e.gate.Table().Condition(t.Primary).Key
		ev.Confidence = t.Posterior[t.Primary]
	}
	if t.Question != nil {
		ev.Question = t.Question.Key
	}
	if t.Result != nil {
		ev.StopReason = t.Result.StopReason
	}
	if err := e.journal.RecordTurn(ev); err != nil {
		e.logger.Warn("journal failed", "session", s.id, "seq", s.seq, "error", err)
	}
}

func (e *Engine) lookup(id string) (*session, error) {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// #endregion pipeline
