package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-triage/internal/gate"
	"github.com/danielpatrickdp/adaptive-triage/internal/knowledge"
	"github.com/danielpatrickdp/adaptive-triage/internal/logging"
	"github.com/danielpatrickdp/adaptive-triage/internal/network"
	"github.com/danielpatrickdp/adaptive-triage/internal/session"
	"github.com/danielpatrickdp/adaptive-triage/internal/state"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// #region wiring
func loadTable() (*knowledge.Table, error) {
	if cfg.KnowledgePath == "" {
		return knowledge.Default()
	}
	return knowledge.Load(cfg.KnowledgePath)
}

func openStore() (*state.Store, error) {
	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return store, nil
}

// loadModel reads modelPath, or the registry's active artifact when empty,
// and checks it against the table.
func loadModel(store *state.Store, table *knowledge.Table, modelPath string) (*network.Model, error) {
	if modelPath == "" {
		rec, err := store.GetActive()
		if errors.Is(err, state.ErrNoActiveModel) {
			return nil, fmt.Errorf("no active model: run 'triage train' or pass --model")
		}
		if err != nil {
			return nil, err
		}
		modelPath = rec.ArtifactPath
	}
	m, err := network.Load(modelPath)
	if err != nil {
		return nil, err
	}
	if err := m.CheckCompatible(symptom.Dim, table.Labels()); err != nil {
		return nil, fmt.Errorf("model %s: %w", modelPath, err)
	}
	if m.KnowledgeVersion != "" && m.KnowledgeVersion != table.Version {
		slog.Warn("model trained on a different knowledge table",
			"model_knowledge", m.KnowledgeVersion, "table", table.Version)
	}
	return m, nil
}

// newEngine builds a session engine. A nil store disables journaling and
// archiving.
func newEngine(p session.Predictor, table *knowledge.Table, store *state.Store, debugK int) *session.Engine {
	ec := cfg.Engine()
	ec.DebugK = debugK
	opts := []session.Option{session.WithLogger(slog.Default())}
	if store != nil {
		rec := logging.NewRecorder(store, table.Labels())
		opts = append(opts, session.WithJournal(rec), session.WithArchiver(rec))
	}
	return session.NewEngine(p, gate.NewGate(table, cfg.Gate()), symptom.NewEncoder(cfg.Encoder()), ec, opts...)
}

func conditionNames(t *knowledge.Table) []string {
	names := make([]string, t.Len())
	for i, c := range t.Conditions {
		names[i] = c.Name
	}
	return names
}

// #endregion wiring

// #region parsing
// parseFinding reads "name=severity" or "name=yes|no|unknown".
func parseFinding(s string) (session.Answer, error) {
	name, val, ok := strings.Cut(s, "=")
	if !ok {
		val = "yes"
	}
	id, err := symptom.ParseID(name)
	if err != nil {
		return session.Answer{}, err
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		if f == 0 {
			return session.Answer{Symptom: id, Presence: symptom.Absent}, nil
		}
		return session.Answer{Symptom: id, Presence: symptom.Present, Severity: &f}, nil
	}
	p, err := symptom.ParsePresence(val)
	if err != nil {
		return session.Answer{}, err
	}
	return session.Answer{Symptom: id, Presence: p}, nil
}

// parseTest reads "test_id=positive|negative".
func parseTest(s string) (string, symptom.TestResult, error) {
	id, val, ok := strings.Cut(s, "=")
	if !ok {
		return "", symptom.TestUnknown, fmt.Errorf("test %q: expected id=result", s)
	}
	r, err := symptom.ParseTestResult(val)
	return id, r, err
}

// #endregion parsing
