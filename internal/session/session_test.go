package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/gate"
	"github.com/danielpatrickdp/adaptive-triage/internal/knowledge"
	"github.com/danielpatrickdp/adaptive-triage/internal/selector"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// bayesPredictor scores each condition by the table likelihood of the
// present symptoms in the encoded vector.
type bayesPredictor struct {
	table *knowledge.Table
}

func (b bayesPredictor) Predict(x []float64) (diagnosis.Posterior, error) {
	if err := symptom.CheckFeatures(x, symptom.Dim); err != nil {
		return nil, err
	}
	logp := make([]float64, b.table.Len())
	for d := range logp {
		for _, id := range symptom.All() {
			if x[id] > 0 {
				logp[d] += math.Log(math.Max(b.table.PYes(d, id), 1e-3))
			}
		}
	}
	hi := logp[0]
	for _, l := range logp {
		hi = math.Max(hi, l)
	}
	p := make(diagnosis.Posterior, len(logp))
	for d, l := range logp {
		p[d] = math.Exp(l - hi)
	}
	p, _ = p.Normalize()
	return p, nil
}

type failingPredictor struct{}

func (failingPredictor) Predict([]float64) (diagnosis.Posterior, error) {
	return nil, errors.New("model unavailable")
}

type memArchive struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (m *memArchive) ArchiveSession(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

type memJournal struct {
	mu     sync.Mutex
	events []TurnEvent
	err    error
}

func (m *memJournal) RecordTurn(ev TurnEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, cfg EngineConfig, opts ...Option) *Engine {
	t.Helper()
	table, err := knowledge.Default()
	require.NoError(t, err)
	g := gate.NewGate(table, gate.DefaultGateConfig())
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewEngine(bayesPredictor{table: table}, g, symptom.NewEncoder(symptom.DefaultEncoderConfig()), cfg, opts...)
}

func sev(f float64) *float64 { return &f }

func TestStartWithRedFlagFinishesImmediately(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())

	turn, err := e.Start([]Answer{
		{Symptom: symptom.Fever, Presence: symptom.Present, Severity: sev(0.3)},
		{Symptom: symptom.Confusion, Presence: symptom.Present, Severity: sev(0.5)},
	})
	require.NoError(t, err)
	assert.True(t, turn.Finished())
	assert.Nil(t, turn.Question)
	require.NotNil(t, turn.Result)
	assert.Equal(t, diagnosis.StopRedFlag, turn.Result.StopReason)
	require.Len(t, turn.Result.RedFlags, 1)
	assert.Equal(t, "altered_mental_status", turn.Result.RedFlags[0].Name)
	assert.Equal(t, 0, turn.Result.QuestionsAsked)
}

func TestAnswerRedFlagFinishesRegardlessOfBudget(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	cfg.Selector.MaxQuestions = 100
	e := newTestEngine(t, cfg)

	turn, err := e.Start(nil)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingAnswer, turn.Status)
	require.NotNil(t, turn.Question)

	turn, err = e.Answer(turn.SessionID, symptom.ChestPain, symptom.Present, sev(0.9))
	require.NoError(t, err)
	assert.True(t, turn.Finished())
	assert.Equal(t, diagnosis.StopRedFlag, turn.Result.StopReason)
}

func TestRepeatedAnswerIsIdempotent(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	e := newTestEngine(t, cfg)

	turn, err := e.Start(nil)
	require.NoError(t, err)
	id := turn.SessionID

	once, err := e.Answer(id, symptom.Cough, symptom.Present, sev(0.6))
	require.NoError(t, err)
	twice, err := e.Answer(id, symptom.Cough, symptom.Present, sev(0.6))
	require.NoError(t, err)

	assert.Equal(t, once.Posterior, twice.Posterior)
	assert.Equal(t, once.Question, twice.Question)
	assert.Equal(t, 1, twice.QuestionsAsked)

	snap, err := e.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.QuestionsAsked)
	assert.True(t, snap.Vector.IsPresent(symptom.Cough))
}

func TestReanswerOverwrites(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	e := newTestEngine(t, cfg)

	turn, err := e.Start(nil)
	require.NoError(t, err)
	_, err = e.Answer(turn.SessionID, symptom.Cough, symptom.Present, sev(0.6))
	require.NoError(t, err)
	_, err = e.Answer(turn.SessionID, symptom.Cough, symptom.Absent, nil)
	require.NoError(t, err)

	snap, err := e.Get(turn.SessionID)
	require.NoError(t, err)
	assert.True(t, snap.Vector.IsAbsent(symptom.Cough))
	assert.Equal(t, 1, snap.QuestionsAsked)
}

func TestUnknownAnswerIsNotAskedAgain(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	e := newTestEngine(t, cfg)

	turn, err := e.Start(nil)
	require.NoError(t, err)
	first := turn.Question.Symptom

	turn, err = e.Answer(turn.SessionID, first, symptom.Unknown, nil)
	require.NoError(t, err)
	require.NotNil(t, turn.Question)
	assert.NotEqual(t, first, turn.Question.Symptom)
	assert.Equal(t, 1, turn.QuestionsAsked)
}

func TestAnswerOnFinishedSessionFails(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	turn, err := e.Start(nil)
	require.NoError(t, err)

	res, err := e.Finish(turn.SessionID)
	require.NoError(t, err)
	assert.Equal(t, diagnosis.StopForced, res.StopReason)
	assert.Equal(t, diagnosis.TierNeedsMoreInformation, res.Tier)

	_, err = e.Answer(turn.SessionID, symptom.Fever, symptom.Present, nil)
	var closed *SessionClosedError
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, turn.SessionID, closed.ID)

	_, err = e.RecordTest(turn.SessionID, "flu_test", symptom.TestPositive)
	assert.ErrorAs(t, err, &closed)

	again, err := e.Finish(turn.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestUnknownSession(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	_, err := e.Answer("missing", symptom.Fever, symptom.Present, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = e.Finish("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = e.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMaxQuestionsStops(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	cfg.Selector.MaxQuestions = 2
	e := newTestEngine(t, cfg)

	turn, err := e.Start(nil)
	require.NoError(t, err)
	turn, err = e.Answer(turn.SessionID, turn.Question.Symptom, symptom.Absent, nil)
	require.NoError(t, err)
	require.False(t, turn.Finished())
	turn, err = e.Answer(turn.SessionID, turn.Question.Symptom, symptom.Absent, nil)
	require.NoError(t, err)
	require.True(t, turn.Finished())
	assert.Equal(t, diagnosis.StopMaxQuestions, turn.Result.StopReason)
	assert.Equal(t, 2, turn.Result.QuestionsAsked)
}

func TestExhaustionFinishesWithNeedsMoreInformation(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	cfg.Selector.MaxQuestions = 0
	e := newTestEngine(t, cfg)

	turn, err := e.Start(nil)
	require.NoError(t, err)
	for i := 0; !turn.Finished(); i++ {
		require.Less(t, i, symptom.Count, "selector never exhausted")
		turn, err = e.Answer(turn.SessionID, turn.Question.Symptom, symptom.Unknown, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, diagnosis.StopExhausted, turn.Result.StopReason)
	assert.Equal(t, diagnosis.TierNeedsMoreInformation, turn.Result.Tier)
}

func TestConfidentStopIsMonotonic(t *testing.T) {
	cfg := DefaultEngineConfig()
	e := newTestEngine(t, cfg)
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 25; trial++ {
		turn, err := e.Start(nil)
		require.NoError(t, err)
		for !turn.Finished() {
			snap, err := e.Get(turn.SessionID)
			require.NoError(t, err)
			// a pending question means no stop rule held on this evidence
			if turn.Primary >= 0 {
				conf := turn.Posterior[turn.Primary]
				table := e.gate.Table()
				held := conf >= cfg.Selector.ConfidenceThreshold && table.SupportMet(turn.Primary, snap.Vector)
				require.False(t, held, "question asked after stop condition held")
			}

			p := symptom.Absent
			var s *float64
			if rng.Float64() < 0.5 {
				p = symptom.Present
				s = sev(0.1 + 0.5*rng.Float64())
			}
			turn, err = e.Answer(turn.SessionID, turn.Question.Symptom, p, s)
			require.NoError(t, err)
		}
		_, err = e.Answer(turn.SessionID, symptom.Fever, symptom.Present, nil)
		var closed *SessionClosedError
		require.ErrorAs(t, err, &closed)
	}
}

func TestRecordTestConfirms(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	e := newTestEngine(t, cfg)

	turn, err := e.Start([]Answer{
		{Symptom: symptom.Fever, Presence: symptom.Present, Severity: sev(0.9)},
		{Symptom: symptom.MusclePain, Presence: symptom.Present, Severity: sev(0.8)},
		{Symptom: symptom.Fatigue, Presence: symptom.Present, Severity: sev(0.7)},
		{Symptom: symptom.Cough, Presence: symptom.Present, Severity: sev(0.5)},
	})
	require.NoError(t, err)

	_, err = e.RecordTest(turn.SessionID, "no_such_test", symptom.TestPositive)
	assert.Error(t, err)

	turn, err = e.RecordTest(turn.SessionID, "flu_test", symptom.TestNegative)
	require.NoError(t, err)
	assert.Equal(t, 0, turn.QuestionsAsked)

	res, err := e.Finish(turn.SessionID)
	require.NoError(t, err)
	assert.NotContains(t, res.PrimaryName, "Influenza")
}

func TestDiagnoseOneShot(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	v, err := symptom.FromSeverities(map[string]float64{"nausea": 0.7, "vomiting": 0.6, "diarrhea": 0.8})
	require.NoError(t, err)

	res, err := e.Diagnose(v)
	require.NoError(t, err)
	assert.Equal(t, "Acute Gastroenteritis", res.PrimaryName)
	assert.Equal(t, "Gastrointestinal", res.Syndrome)
	assert.NoError(t, res.Posterior.Validate())
	assert.Equal(t, 0, e.Len())
}

func TestPredictorErrorPropagates(t *testing.T) {
	table, err := knowledge.Default()
	require.NoError(t, err)
	e := NewEngine(failingPredictor{}, gate.NewGate(table, gate.DefaultGateConfig()),
		symptom.NewEncoder(symptom.DefaultEncoderConfig()), DefaultEngineConfig(), WithLogger(quietLogger()))

	_, err = e.Start(nil)
	assert.ErrorContains(t, err, "model unavailable")
	assert.Equal(t, 0, e.Len())
}

func TestHooksReceiveTurnsAndArchive(t *testing.T) {
	archive := &memArchive{err: errors.New("disk full")}
	journal := &memJournal{err: errors.New("disk full")}
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	cfg.DebugK = 3
	e := newTestEngine(t, cfg, WithArchiver(archive), WithJournal(journal))

	turn, err := e.Start(nil)
	require.NoError(t, err)
	assert.Len(t, turn.Candidates, 3)
	assert.Equal(t, turn.Question.Symptom, turn.Candidates[0].Symptom)

	_, err = e.Answer(turn.SessionID, turn.Question.Symptom, symptom.Present, sev(0.4))
	require.NoError(t, err)
	_, err = e.Finish(turn.SessionID)
	require.NoError(t, err, "hook failures must not surface")

	require.Len(t, journal.events, 3)
	assert.Equal(t, TurnStart, journal.events[0].Kind)
	assert.Equal(t, TurnAnswer, journal.events[1].Kind)
	assert.Equal(t, TurnFinish, journal.events[2].Kind)
	assert.Equal(t, 3, journal.events[2].Seq)
	assert.Equal(t, diagnosis.StopForced, journal.events[2].StopReason)

	require.Len(t, archive.records, 1)
	assert.Equal(t, turn.SessionID, archive.records[0].ID)
	assert.Equal(t, 1, archive.records[0].QuestionsAsked)
}

func TestConcurrentSessionsAreIsolated(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	cfg.Selector.MaxQuestions = 5
	e := newTestEngine(t, cfg)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			turn, err := e.Start(nil)
			if err != nil {
				errs <- err
				return
			}
			for !turn.Finished() {
				p, s := symptom.Absent, (*float64)(nil)
				if w%2 == 0 {
					p, s = symptom.Present, sev(0.2)
				}
				turn, err = e.Answer(turn.SessionID, turn.Question.Symptom, p, s)
				if err != nil {
					errs <- err
					return
				}
			}
			if turn.Result.QuestionsAsked != 5 {
				errs <- fmt.Errorf("worker %d asked %d questions", w, turn.Result.QuestionsAsked)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 16, e.Len())
}

func TestEvictDropsStaleFinishedSessions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(t, DefaultEngineConfig(), WithClock(func() time.Time { return now }))

	done, err := e.Start(nil)
	require.NoError(t, err)
	_, err = e.Finish(done.SessionID)
	require.NoError(t, err)
	_, err = e.Start(nil)
	require.NoError(t, err)

	assert.Equal(t, 1, e.Evict(now.Add(time.Minute)))
	assert.Equal(t, 1, e.Len())
	_, err = e.Get(done.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

var _ selector.Likelihood = (*knowledge.Table)(nil)

func TestFinishedResultCannotBeMutatedByCallers(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Selector.ConfidenceThreshold = 1.1
	e := newTestEngine(t, cfg)

	turn, err := e.Start([]Answer{
		{Symptom: symptom.Nausea, Presence: symptom.Present, Severity: sev(0.7)},
		{Symptom: symptom.Vomiting, Presence: symptom.Present, Severity: sev(0.6)},
		{Symptom: symptom.Diarrhea, Presence: symptom.Present, Severity: sev(0.8)},
	})
	require.NoError(t, err)
	require.False(t, turn.Finished())

	res, err := e.Finish(turn.SessionID)
	require.NoError(t, err)
	require.NotEmpty(t, res.Differential)
	require.NotEmpty(t, res.Recommendations)
	want := res.Clone()

	res.Posterior[0] = 42
	res.Differential[0].Name = "tampered"
	res.Recommendations[0] = "tampered"
	res.Reasoning.KeyFindings = nil

	snap, err := e.Get(turn.SessionID)
	require.NoError(t, err)
	require.NotNil(t, snap.Result)
	assert.Equal(t, want, *snap.Result)

	snap.Result.Posterior[0] = 42
	snap.Result.Trace[0].Rule = "tampered"

	again, err := e.Finish(turn.SessionID)
	require.NoError(t, err)
	assert.Equal(t, want, again)
}
