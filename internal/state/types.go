package state

import (
	"errors"
	"time"
)

// ErrNoActiveModel is returned when no model version has been activated.
var ErrNoActiveModel = errors.New("no active model")

// #region model-record
// ModelRecord is one registered classifier artifact. Labels pin the output
// order the artifact was trained with.
type ModelRecord struct {
	VersionID        string
	ParentID         string
	ArtifactPath     string
	Labels           []string
	KnowledgeVersion string
	Status           string // ModelCommitted or ModelRejected
	MetricsJSON      string
	CreatedAt        time.Time
}

// Model status values.
const (
	ModelCommitted = "committed"
	ModelRejected  = "rejected"
)

// #endregion model-record

// #region session-record
// SessionRecord is an archived, finished diagnostic session.
type SessionRecord struct {
	SessionID        string
	Findings         string // rendered symptom vector
	Primary          string // condition key, empty when indeterminate
	PrimaryName      string
	Confidence       float64
	Tier             string
	StopReason       string
	QuestionsAsked   int
	RedFlags         int
	KnowledgeVersion string
	ResultJSON       string
	CreatedAt        time.Time
	FinishedAt       time.Time
}

// #endregion session-record
