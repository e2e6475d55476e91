package session

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// SessionClosedError is returned when a finished session is asked to change.
type SessionClosedError struct {
	ID string
}

func (e *SessionClosedError) Error() string {
	return fmt.Sprintf("session %s is finished", e.ID)
}
