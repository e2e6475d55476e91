package network

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoModel is returned by a Holder before any model has been stored.
var ErrNoModel = errors.New("no model loaded")

// InsufficientDataError reports classes with no training examples.
type InsufficientDataError struct {
	Missing []string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: no examples for %s", strings.Join(e.Missing, ", "))
}

// CorruptModelError reports an unreadable or mismatched model artifact.
type CorruptModelError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptModelError) Error() string {
	msg := "corrupt model"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptModelError) Unwrap() error { return e.Err }

// NumericalError aborts training when the loss stops being finite.
type NumericalError struct {
	Epoch   int
	Example string
	Loss    float64
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("numerical failure at epoch %d, example %s: loss=%v", e.Epoch, e.Example, e.Loss)
}
