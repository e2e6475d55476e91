// Package logging journals session turns to the turn_log table and archives
// finished sessions, wiring the session engine's hooks to the state store.
package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-triage/internal/session"
	"github.com/danielpatrickdp/adaptive-triage/internal/state"
)

// #region log-turn
// LogTurn writes a journal entry to the turn_log table.
func LogTurn(db *sql.DB, entry TurnEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO turn_log (session_id, seq, kind, input, primary_key, confidence, entropy, question, stop_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.Seq,
		entry.Kind,
		nullIfEmpty(entry.Input),
		nullIfEmpty(entry.Primary),
		entry.Confidence,
		entry.Entropy,
		nullIfEmpty(entry.Question),
		nullIfEmpty(entry.StopReason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log turn: %w", err)
	}
	return nil
}

// ListTurns returns a session's journal in turn order.
func ListTurns(db *sql.DB, sessionID string) ([]TurnEntry, error) {
	rows, err := db.Query(
		`SELECT session_id, seq, kind, input, primary_key, confidence, entropy, question, stop_reason, created_at
		 FROM turn_log WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []TurnEntry
	for rows.Next() {
		var e TurnEntry
		var input, primary, question, stop sql.NullString
		var conf, entropy sql.NullFloat64
		var created string
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.Kind, &input, &primary, &conf, &entropy, &question, &stop, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		e.Input = input.String
		e.Primary = primary.String
		e.Confidence = conf.Float64
		e.Entropy = entropy.Float64
		e.Question = question.String
		e.StopReason = stop.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion log-turn

// #region recorder
// Recorder persists session activity. It satisfies session.Journal and
// session.Archiver.
type Recorder struct {
	store  *state.Store
	labels []string
}

var (
	_ session.Journal  = (*Recorder)(nil)
	_ session.Archiver = (*Recorder)(nil)
)

// NewRecorder creates a recorder. labels map condition ids to keys.
func NewRecorder(store *state.Store, labels []string) *Recorder {
	return &Recorder{store: store, labels: labels}
}

// RecordTurn journals one session turn.
func (r *Recorder) RecordTurn(ev session.TurnEvent) error {
	return LogTurn(r.store.DB(), TurnEntry{
		SessionID:  ev.SessionID,
		Seq:        ev.Seq,
		Kind:       string(ev.Kind),
		Input:      ev.Input,
		Primary:    ev.Primary,
		Confidence: ev.Confidence,
		Entropy:    ev.Entropy,
		Question:   ev.Question,
		StopReason: string(ev.StopReason),
		CreatedAt:  ev.At,
	})
}

// ArchiveSession stores a finished session with its full result as JSON.
func (r *Recorder) ArchiveSession(rec session.Record) error {
	raw, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	sr := state.SessionRecord{
		SessionID:        rec.ID,
		Findings:         rec.Vector.String(),
		PrimaryName:      rec.Result.PrimaryName,
		Confidence:       rec.Result.Confidence,
		Tier:             string(rec.Result.Tier),
		StopReason:       string(rec.Result.StopReason),
		QuestionsAsked:   rec.QuestionsAsked,
		RedFlags:         len(rec.Result.RedFlags),
		KnowledgeVersion: rec.Result.KnowledgeVersion,
		ResultJSON:       string(raw),
		CreatedAt:        rec.CreatedAt,
		FinishedAt:       rec.FinishedAt,
	}
	if p := rec.Result.Primary; p >= 0 && p < len(r.labels) {
		sr.Primary = r.labels[p]
	}
	return r.store.ArchiveSession(sr)
}

// #endregion recorder

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
