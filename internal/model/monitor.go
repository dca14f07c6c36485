package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorFilter selects which sessions the monitor view lists.
type MonitorFilter string

const (
	FilterAll      MonitorFilter = "all"
	FilterActive   MonitorFilter = "active"
	FilterFinished MonitorFilter = "finished"
	FilterWarnings MonitorFilter = "warnings"
)

// MonitorSession is one row of the examiner's live view.
type MonitorSession struct {
	SessionID        uuid.UUID       `json:"sessionId"`
	ExamID           uuid.UUID       `json:"examId"`
	StudentID        uuid.UUID       `json:"studentId"`
	StudentName      string          `json:"studentName"`
	StudentEmail     string          `json:"studentEmail"`
	Status           SessionStatus   `json:"status"`
	WebcamStatus     WebcamStatus    `json:"webcamStatus"`
	WarningCount     int             `json:"warningCount"`
	Recording        RecordingStatus `json:"recordingStatus"`
	RemainingSeconds *int            `json:"remainingSeconds,omitempty"`
	StartTime        time.Time       `json:"startTime"`
	EndTime          *time.Time      `json:"endTime,omitempty"`
}

// MonitorStats summarises every session of an exam regardless of filter.
type MonitorStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Finished     int `json:"finished"`
	WithWarnings int `json:"withWarnings"`
}

// MonitorSnapshot is the payload of GET /sessions/:examId and the SSE snapshot event.
type MonitorSnapshot struct {
	ExamID      uuid.UUID        `json:"examId"`
	Filter      MonitorFilter    `json:"filter"`
	Sessions    []MonitorSession `json:"sessions"`
	Stats       MonitorStats     `json:"stats"`
	GeneratedAt time.Time        `json:"generatedAt"`
}
