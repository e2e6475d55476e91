// Package state is the SQLite registry of trained model artifacts, with an
// active-model pointer, plus the archive of finished diagnostic sessions.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS model_versions (
	version_id        TEXT PRIMARY KEY,
	parent_id         TEXT,
	artifact_path     TEXT NOT NULL,
	labels_json       TEXT NOT NULL,
	knowledge_version TEXT,
	status            TEXT NOT NULL,
	metrics_json      TEXT,
	created_at        TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES model_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_model (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES model_versions(version_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id        TEXT PRIMARY KEY,
	findings          TEXT,
	primary_key       TEXT,
	primary_name      TEXT NOT NULL,
	confidence        REAL NOT NULL,
	tier              TEXT NOT NULL,
	stop_reason       TEXT,
	questions_asked   INTEGER NOT NULL,
	red_flags         INTEGER NOT NULL,
	knowledge_version TEXT,
	result_json       TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	finished_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS turn_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	input         TEXT,
	primary_key   TEXT,
	confidence    REAL,
	entropy       REAL,
	question      TEXT,
	stop_reason   TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS turn_log_session ON turn_log(session_id, seq);
`

// #endregion schema

// #region store-struct
// Store manages model versions and archived sessions in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region commit-model
// CommitModel registers a model version and makes it active atomically. An
// empty ParentID is filled with the currently active version, if any.
func (s *Store) CommitModel(rec ModelRecord) (ModelRecord, error) {
	rec.Status = ModelCommitted
	tx, err := s.db.Begin()
	if err != nil {
		return ModelRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if rec.ParentID == "" {
		var parent string
		err := tx.QueryRow(`SELECT version_id FROM active_model WHERE id = 1`).Scan(&parent)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return ModelRecord{}, fmt.Errorf("get active: %w", err)
		}
		rec.ParentID = parent
	}

	rec, err = insertModel(tx, rec)
	if err != nil {
		return ModelRecord{}, err
	}

	_, err = tx.Exec(
		`INSERT INTO active_model (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ModelRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// RecordModel registers a model version without activating it. Used for
// artifacts that failed evaluation so the run stays auditable.
func (s *Store) RecordModel(rec ModelRecord) (ModelRecord, error) {
	if rec.Status == "" {
		rec.Status = ModelRejected
	}
	tx, err := s.db.Begin()
	if err != nil {
		return ModelRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, err = insertModel(tx, rec)
	if err != nil {
		return ModelRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ModelRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func insertModel(tx *sql.Tx, rec ModelRecord) (ModelRecord, error) {
	if rec.VersionID == "" {
		rec.VersionID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	labels, err := json.Marshal(rec.Labels)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("marshal labels: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO model_versions (version_id, parent_id, artifact_path, labels_json, knowledge_version, status, metrics_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), rec.ArtifactPath, string(labels),
		nullIfEmpty(rec.KnowledgeVersion), rec.Status, nullIfEmpty(rec.MetricsJSON),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("insert version: %w", err)
	}
	return rec, nil
}

// #endregion commit-model

// #region get-active
// GetActive reads the active model version.
func (s *Store) GetActive() (ModelRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_model WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, ErrNoActiveModel
	}
	if err != nil {
		return ModelRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// #endregion get-active

// #region get-version
const modelColumns = `version_id, parent_id, artifact_path, labels_json, knowledge_version, status, metrics_json, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(row scanner) (ModelRecord, error) {
	var rec ModelRecord
	var parentID, knowledge, metrics sql.NullString
	var labels, created string
	if err := row.Scan(&rec.VersionID, &parentID, &rec.ArtifactPath, &labels, &knowledge, &rec.Status, &metrics, &created); err != nil {
		return ModelRecord{}, err
	}
	rec.ParentID = parentID.String
	rec.KnowledgeVersion = knowledge.String
	rec.MetricsJSON = metrics.String
	if err := json.Unmarshal([]byte(labels), &rec.Labels); err != nil {
		return ModelRecord{}, fmt.Errorf("unmarshal labels: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return rec, nil
}

// GetVersion retrieves a specific model version by ID.
func (s *Store) GetVersion(id string) (ModelRecord, error) {
	rec, err := scanModel(s.db.QueryRow(`SELECT `+modelColumns+` FROM model_versions WHERE version_id = ?`, id))
	if err != nil {
		return ModelRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-version

// #region rollback
// Rollback sets the active pointer to a previous committed version.
func (s *Store) Rollback(targetVersionID string) error {
	var status string
	err := s.db.QueryRow(
		`SELECT status FROM model_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("version %s not found", targetVersionID)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if status != ModelCommitted {
		return fmt.Errorf("version %s is %s, not committed", targetVersionID, status)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_model (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		targetVersionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent model versions.
func (s *Store) ListVersions(limit int) ([]ModelRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+modelColumns+` FROM model_versions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []ModelRecord
	for rows.Next() {
		rec, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-versions

// #region sessions
// ArchiveSession stores a finished session. Archiving the same session id
// twice replaces the earlier row.
func (s *Store) ArchiveSession(rec SessionRecord) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.FinishedAt
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, findings, primary_key, primary_name, confidence, tier, stop_reason,
			questions_asked, red_flags, knowledge_version, result_json, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			findings = excluded.findings, primary_key = excluded.primary_key,
			primary_name = excluded.primary_name, confidence = excluded.confidence,
			tier = excluded.tier, stop_reason = excluded.stop_reason,
			questions_asked = excluded.questions_asked, red_flags = excluded.red_flags,
			knowledge_version = excluded.knowledge_version, result_json = excluded.result_json,
			finished_at = excluded.finished_at`,
		rec.SessionID, nullIfEmpty(rec.Findings), nullIfEmpty(rec.Primary), rec.PrimaryName,
		rec.Confidence, rec.Tier, nullIfEmpty(rec.StopReason), rec.QuestionsAsked, rec.RedFlags,
		nullIfEmpty(rec.KnowledgeVersion), rec.ResultJSON,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.FinishedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", rec.SessionID, err)
	}
	return nil
}

const sessionColumns = `session_id, findings, primary_key, primary_name, confidence, tier, stop_reason,
	questions_asked, red_flags, knowledge_version, result_json, created_at, finished_at`

func scanSession(row scanner) (SessionRecord, error) {
	var rec SessionRecord
	var findings, primary, stop, knowledge sql.NullString
	var created, finished string
	err := row.Scan(&rec.SessionID, &findings, &primary, &rec.PrimaryName, &rec.Confidence, &rec.Tier, &stop,
		&rec.QuestionsAsked, &rec.RedFlags, &knowledge, &rec.ResultJSON, &created, &finished)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.Findings = findings.String
	rec.Primary = primary.String
	rec.StopReason = stop.String
	rec.KnowledgeVersion = knowledge.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	return rec, nil
}

// GetSession retrieves an archived session.
func (s *Store) GetSession(id string) (SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id))
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns the most recently finished sessions.
func (s *Store) ListSessions(limit int) ([]SessionRecord, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion sessions

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
