package proctor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// RecordingLog is the append-only segment log of one session. It is guarded
// by the owning lifecycle's mutex.
type RecordingLog struct {
	segments []model.RecordingSegment
}

// Append adds seg and returns it.
func (r *RecordingLog) Append(seg model.RecordingSegment) model.RecordingSegment {
	r.segments = append(r.segments, seg)
	return seg
}

// Current is the status of the latest segment, stopped when there is none.
func (r *RecordingLog) Current() model.RecordingStatus {
	if len(r.segments) == 0 {
		return model.RecordingStopped
	}
	return r.segments[len(r.segments)-1].Status
}

// Segments returns a copy of the log, oldest first.
func (r *RecordingLog) Segments() []model.RecordingSegment {
	out := make([]model.RecordingSegment, len(r.segments))
	copy(out, r.segments)
	return out
}

func newSegment(sessionID uuid.UUID, examinerID *uuid.UUID, status model.RecordingStatus, at time.Time) model.RecordingSegment {
	seg := model.RecordingSegment{
		ID:         uuid.New(),
		SessionID:  sessionID,
		ExaminerID: examinerID,
		Status:     status,
		CreatedAt:  at,
	}
	if status == model.RecordingActive {
		seg.StartTime = &at
	} else {
		seg.EndTime = &at
	}
	return seg
}

// ToggleRecording appends a segment with the desired status. Prior segments
// are never modified.
func (l *Lifecycle) ToggleRecording(ctx context.Context, examinerID *uuid.UUID, status model.RecordingStatus) (model.RecordingSegment, error) {
	if status != model.RecordingActive && status != model.RecordingStopped {
		return model.RecordingSegment{}, fmt.Errorf("%w: recording status %q", ErrValidation, status)
	}
	now := l.deps.Now()

	l.mu.Lock()
	if l.session.Status != model.SessionStatusActive {
		l.mu.Unlock()
		return model.RecordingSegment{}, ErrSessionNotActive
	}
	seg := l.recording.Append(newSegment(l.session.ID, examinerID, status, now))
	session := l.session
	l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	l.logPersist("recording", l.deps.Journal.RecordingAppended(ctx, seg))
	l.deps.Notifier.Notify(ctx, l.notification(model.NotificationSessionUpdate, session, status, ""))
	return seg, nil
}

// Recording returns the current recording status.
func (l *Lifecycle) Recording() model.RecordingStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recording.Current()
}

// Segments returns the recording log.
func (l *Lifecycle) Segments() []model.RecordingSegment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recording.Segments()
}
