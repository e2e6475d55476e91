package logging

import "time"

// #region turn-entry
// TurnEntry is a single row in the turn_log table.
type TurnEntry struct {
	SessionID  string
	Seq        int
	Kind       string // "start" | "answer" | "test" | "finish"
	Input      string
	Primary    string
	Confidence float64
	Entropy    float64
	Question   string
	StopReason string
	CreatedAt  time.Time
}

// #endregion turn-entry
