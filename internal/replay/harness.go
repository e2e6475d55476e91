package replay

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/gate"
	"github.com/danielpatrickdp/adaptive-triage/internal/knowledge"
	"github.com/danielpatrickdp/adaptive-triage/internal/session"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// #region types
// Script is one scripted session.
type Script struct {
	ID       string
	Initial  []session.Answer
	Answers  map[symptom.ID]session.Answer
	Tests    map[string]symptom.TestResult
	Expected Expectation
}

// Expectation holds the outcome checks for a script. Empty fields match
// anything.
type Expectation struct {
	Status     string
	Primary    string
	Tier       string
	StopReason string
}

// ReplayConfig bundles the gate and engine configs for a replay run.
type ReplayConfig struct {
	Gate   gate.GateConfig
	Engine session.EngineConfig
}

// DefaultReplayConfig returns the production defaults.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Gate:   gate.DefaultGateConfig(),
		Engine: session.DefaultEngineConfig(),
	}
}

// ReplayResult captures the outcome of replaying one script.
type ReplayResult struct {
	CaseID         string
	Status         string
	Primary        string // condition key, empty when indeterminate
	Tier           string
	StopReason     string
	Questions      []string // symptom keys in the order asked
	QuestionsAsked int
	Result         diagnosis.Result
	Passed         bool
	Mismatches     []string
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalCases    int
	Passed        int
	Failed        int
	ByStopReason  map[string]int
	ByTier        map[string]int
	MeanQuestions float64
}

// #endregion types

// #region replay
// Replay runs each script through a fresh session engine: initial answers,
// then recorded tests, then scripted answers to every question until the
// session finishes. Operates entirely in-memory.
func Replay(p session.Predictor, table *knowledge.Table, scripts []Script, config ReplayConfig, opts ...session.Option) ([]ReplayResult, error) {
	g := gate.NewGate(table, config.Gate)
	enc := symptom.NewEncoder(symptom.DefaultEncoderConfig())
	labels := table.Labels()

	results := make([]ReplayResult, 0, len(scripts))
	for _, sc := range scripts {
		engine := session.NewEngine(p, g, enc, config.Engine, opts...)
		rr, err := run(engine, sc)
		if err != nil {
			return results, fmt.Errorf("replay %s: %w", sc.ID, err)
		}
		if i := rr.Result.Primary; i >= 0 && i < len(labels) {
			rr.Primary = labels[i]
		}
		rr.Mismatches = sc.Expected.check(rr)
		rr.Passed = len(rr.Mismatches) == 0
		results = append(results, rr)
	}
	return results, nil
}

func run(engine *session.Engine, sc Script) (ReplayResult, error) {
	rr := ReplayResult{CaseID: sc.ID}

	turn, err := engine.Start(sc.Initial)
	if err != nil {
		return rr, err
	}
	id := turn.SessionID

	testIDs := make([]string, 0, len(sc.Tests))
	for t := range sc.Tests {
		testIDs = append(testIDs, t)
	}
	sort.Strings(testIDs)
	for _, t := range testIDs {
		if turn.Finished() {
			break
		}
		if turn, err = engine.RecordTest(id, t, sc.Tests[t]); err != nil {
			return rr, err
		}
	}

	// Each question is a distinct unasked symptom, so the loop is bounded.
	for i := 0; !turn.Finished() && i <= symptom.Dim; i++ {
		q := turn.Question
		rr.Questions = append(rr.Questions, q.Key)
		a, ok := sc.Answers[q.Symptom]
		if !ok {
			a = session.Answer{Symptom: q.Symptom, Presence: symptom.Unknown}
		}
		if turn, err = engine.Answer(id, q.Symptom, a.Presence, a.Severity); err != nil {
			return rr, err
		}
	}

	var res diagnosis.Result
	if turn.Finished() {
		res = *turn.Result
	} else if res, err = engine.Finish(id); err != nil {
		return rr, err
	}

	rr.Status = string(session.StatusFinished)
	rr.Tier = string(res.Tier)
	rr.StopReason = string(res.StopReason)
	rr.QuestionsAsked = res.QuestionsAsked
	rr.Result = res
	return rr, nil
}

func (e Expectation) check(rr ReplayResult) []string {
	var out []string
	expect := func(field, want, got string) {
		if want != "" && want != got {
			out = append(out, fmt.Sprintf("%s: want %q, got %q", field, want, got))
		}
	}
	expect("status", e.Status, rr.Status)
	expect("primary", e.Primary, rr.Primary)
	expect("tier", e.Tier, rr.Tier)
	expect("stop_reason", e.StopReason, rr.StopReason)
	return out
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{
		TotalCases:   len(results),
		ByStopReason: make(map[string]int),
		ByTier:       make(map[string]int),
	}
	var asked int
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		s.ByStopReason[r.StopReason]++
		s.ByTier[r.Tier]++
		asked += r.QuestionsAsked
	}
	if len(results) > 0 {
		s.MeanQuestions = float64(asked) / float64(len(results))
	}
	return s
}

// LogSummary writes the summary as one structured line.
func LogSummary(logger *slog.Logger, s ReplaySummary) {
	logger.Info("replay complete",
		"component", "replay",
		"cases", s.TotalCases,
		"passed", s.Passed,
		"failed", s.Failed,
		"mean_questions", s.MeanQuestions,
		"stop_reasons", s.ByStopReason,
	)
}

// #endregion replay

func sortAnswers(as []session.Answer) {
	sort.Slice(as, func(i, j int) bool { return as[i].Symptom < as[j].Symptom })
}
