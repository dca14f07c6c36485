package model

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus is the state carried by a recording segment.
type RecordingStatus string

const (
	RecordingActive  RecordingStatus = "recording"
	RecordingStopped RecordingStatus = "stopped"
)

// RecordingSegment is one append-only entry of a session's recording log.
// StartTime is set on "recording" entries, EndTime on "stopped" ones.
type RecordingSegment struct {
	ID         uuid.UUID       `json:"id"`
	SessionID  uuid.UUID       `json:"sessionId"`
	ExaminerID *uuid.UUID      `json:"examinerId,omitempty"`
	Status     RecordingStatus `json:"status"`
	StartTime  *time.Time      `json:"startTime,omitempty"`
	EndTime    *time.Time      `json:"endTime,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ToggleRecordingRequest is the payload for POST /recording.
type ToggleRecordingRequest struct {
	SessionID  uuid.UUID       `json:"sessionId" binding:"required"`
	ExaminerID *uuid.UUID      `json:"examinerId"`
	Status     RecordingStatus `json:"status" binding:"required,recording_status"`
}
