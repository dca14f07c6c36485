package proctor

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// SignalKind is a raw environment observation reported by the exam client.
type SignalKind string

const (
	SignalVisibilityHidden SignalKind = "visibility_hidden"
	SignalFullscreenExit   SignalKind = "fullscreen_exit"
	SignalMotion           SignalKind = "motion"
	SignalOther            SignalKind = "other"
)

// Signal is one observation from an EventSource.
type Signal struct {
	Kind        SignalKind `json:"kind"`
	Description string     `json:"description,omitempty"`
	At          time.Time  `json:"at"`
}

// Classify maps a signal to its violation type. Unknown kinds are not violations.
func Classify(s Signal) (model.ViolationType, bool) {
	switch s.Kind {
	case SignalVisibilityHidden:
		return model.ViolationTabSwitch, true
	case SignalFullscreenExit:
		return model.ViolationFullscreenExit, true
	case SignalMotion:
		return model.ViolationMotionDetected, true
	case SignalOther:
		return model.ViolationOther, true
	}
	return "", false
}

// Describe returns the default warning description for t.
func Describe(t model.ViolationType) string {
	switch t {
	case model.ViolationTabSwitch:
		return "Tab switch detected"
	case model.ViolationFullscreenExit:
		return "Exited fullscreen mode"
	case model.ViolationMotionDetected:
		return "Suspicious movement detected"
	case model.ViolationOther:
		return "Suspicious activity"
	}
	return ""
}
