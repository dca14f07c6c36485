package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationType is the closed set of integrity violations.
type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "TAB_SWITCH"
	ViolationFullscreenExit ViolationType = "FULLSCREEN_EXIT"
	ViolationMotionDetected ViolationType = "MOTION_DETECTED"
	ViolationOther          ViolationType = "OTHER"
)

// Valid reports whether t is one of the known violation types.
func (t ViolationType) Valid() bool {
	switch t {
	case ViolationTabSwitch, ViolationFullscreenExit, ViolationMotionDetected, ViolationOther:
		return true
	}
	return false
}

// Warning is an append-only record of one counted violation.
type Warning struct {
	ID          uuid.UUID     `json:"id"`
	SessionID   uuid.UUID     `json:"sessionId"`
	Type        ViolationType `json:"type"`
	Description string        `json:"description"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ReportViolationRequest is the payload for POST /warning.
type ReportViolationRequest struct {
	SessionID   uuid.UUID     `json:"sessionId" binding:"required"`
	Type        ViolationType `json:"type" binding:"required,violation_type"`
	Description string        `json:"description" binding:"omitempty,max=500"`
}

// ViolationResult is returned after a violation report.
type ViolationResult struct {
	Warning      *Warning      `json:"warning,omitempty"`
	Outcome      string        `json:"outcome"`
	WarningCount int           `json:"warningCount"`
	Remaining    int           `json:"remaining"`
	Status       SessionStatus `json:"status"`
}
