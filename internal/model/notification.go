package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind names the user-visible notices and monitor updates.
type NotificationKind string

const (
	NotificationWarning       NotificationKind = "warning"
	NotificationTermination   NotificationKind = "termination"
	NotificationFinished      NotificationKind = "finished"
	NotificationCameraDenied  NotificationKind = "camera_denied"
	NotificationSessionUpdate NotificationKind = "session_update"
)

// Notification is pushed to the student's stream and the exam monitor channel.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	SessionID    uuid.UUID        `json:"sessionId"`
	ExamID       uuid.UUID        `json:"examId"`
	StudentID    uuid.UUID        `json:"studentId"`
	Status       SessionStatus    `json:"status"`
	WebcamStatus WebcamStatus     `json:"webcamStatus"`
	WarningCount int              `json:"warningCount"`
	Recording    RecordingStatus  `json:"recordingStatus,omitempty"`
	Remaining    int              `json:"remaining"`
	Reason       string           `json:"reason,omitempty"`
	Dismissable  bool             `json:"dismissable"`
	At           time.Time        `json:"at"`
}
