// Package proctor implements the exam session lifecycle: the state machine of
// one attempt, violation detection and escalation, grading, the recording log,
// the countdown timer and the read-side aggregation for the monitor view.
package proctor

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a missing or malformed input. No state changes.
	ErrValidation = errors.New("validation failed")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownQuestion is returned when a question id is not part of the exam.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrSessionNotActive rejects answer, violation, webcam and recording
	// operations outside the ACTIVE state.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrAlreadyStarted is returned by Start on anything but NOT_STARTED.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrCameraUnavailable is the non-fatal camera acquisition failure.
	ErrCameraUnavailable = errors.New("camera unavailable")
)

// PersistenceError wraps a failed fire-and-forget write. It is logged, never
// returned to the caller of a state transition.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
