package websocket

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal Action = "signal"
	ActionAnswer Action = "answer"
	ActionWebcam Action = "webcam"
	ActionAck    Action = "ack"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SignalRequest reports a browser integrity signal.
type SignalRequest struct {
	Action      Action `json:"action"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// AnswerRequest is sent by the client to save a single answer.
type AnswerRequest struct {
	Action     Action    `json:"action"`
	QuestionID uuid.UUID `json:"questionId"`
	Answer     string    `json:"answer"`
}

// WebcamRequest reports a change of the camera permission.
type WebcamRequest struct {
	Action Action             `json:"action"`
	Status model.WebcamStatus `json:"status"`
}

// AckRequest dismisses a dismissable notice.
type AckRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSession      Event = "session"
	EventNotification Event = "notification"
	EventAnswerSaved  Event = "answer_saved"
	EventAcked        Event = "acked"
	EventSubmitted    Event = "submitted"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// SessionEvent carries the session state when the stream opens.
type SessionEvent struct {
	Event   Event               `json:"event"`
	Session model.SessionDetail `json:"session"`
}

// NotificationEvent relays a notification published for the session.
type NotificationEvent struct {
	Event        Event           `json:"event"`
	Notification json.RawMessage `json:"notification"`
}

// AnswerSavedResponse confirms an answer without revealing the key.
type AnswerSavedResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"questionId"`
	Status     string    `json:"status"`
}

type AckResponse struct {
	Event Event  `json:"event"`
	Kind  string `json:"kind"`
}

type SubmittedResponse struct {
	Event  Event               `json:"event"`
	Status model.SessionStatus `json:"status"`
	Score  int                 `json:"score"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
