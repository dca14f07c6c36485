package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "NOT_STARTED"
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusFinished   SessionStatus = "FINISHED"
	SessionStatusTerminated SessionStatus = "TERMINATED"
)

// Terminal reports whether no transition can leave s.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusFinished || s == SessionStatusTerminated
}

// WebcamStatus is the student's camera state as seen by the proctor.
type WebcamStatus string

const (
	WebcamOn  WebcamStatus = "on"
	WebcamOff WebcamStatus = "off"
)

// ExamSession represents a student's exam attempt.
type ExamSession struct {
	ID           uuid.UUID     `json:"id"`
	ExamID       uuid.UUID     `json:"examId"`
	StudentID    uuid.UUID     `json:"studentId"`
	Status       SessionStatus `json:"status"`
	WebcamStatus WebcamStatus  `json:"webcamStatus"`
	WarningCount int           `json:"warningCount"`
	EndReason    string        `json:"endReason,omitempty"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      *time.Time    `json:"endTime,omitempty"`
}

// SessionDetail is the session plus the values derived on demand.
type SessionDetail struct {
	ExamSession
	Score            int             `json:"score"`
	MaxWarnings      int             `json:"maxWarnings"`
	RemainingSeconds int             `json:"remainingSeconds"`
	Recording        RecordingStatus `json:"recordingStatus"`
}

// StartSessionRequest is the payload for starting an exam attempt.
// StudentID may be omitted by students; it then defaults to the token subject.
type StartSessionRequest struct {
	ExamID          uuid.UUID `json:"examId" binding:"required"`
	StudentID       uuid.UUID `json:"studentId"`
	WebcamAvailable *bool     `json:"webcamAvailable"`
}

// UpdateSessionRequest is the partial update accepted by PUT /session/:id.
type UpdateSessionRequest struct {
	Status       *SessionStatus `json:"status" binding:"omitempty,session_status"`
	WebcamStatus *WebcamStatus  `json:"webcamStatus" binding:"omitempty,webcam_status"`
	WarningCount *int           `json:"warningCount" binding:"omitempty,min=0"`
	Reason       string         `json:"reason" binding:"omitempty,max=255"`
}
