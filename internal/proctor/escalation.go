package proctor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Outcome is the result of one violation report.
type Outcome int

const (
	// OutcomeIgnored: the signal was not a violation or was rejected.
	OutcomeIgnored Outcome = iota
	// OutcomeWarned: a warning was recorded below the threshold.
	OutcomeWarned
	// OutcomeTerminated: the warning reached the threshold and ended the attempt.
	OutcomeTerminated
	// OutcomeSuppressed: the threshold was already reached; nothing recorded.
	OutcomeSuppressed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWarned:
		return "warned"
	case OutcomeTerminated:
		return "terminated"
	case OutcomeSuppressed:
		return "suppressed"
	}
	return "ignored"
}

// EscalationPolicy maps the warning count to admission and termination.
type EscalationPolicy struct {
	MaxWarnings int
}

// Admit reports whether one more violation may be counted.
func (p EscalationPolicy) Admit(status model.SessionStatus, count int) bool {
	return status == model.SessionStatusActive && count < p.MaxWarnings
}

// Exceeded reports whether count ends the attempt.
func (p EscalationPolicy) Exceeded(count int) bool {
	return count >= p.MaxWarnings
}

// Remaining returns how many warnings are left before termination.
func (p EscalationPolicy) Remaining(count int) int {
	if r := p.MaxWarnings - count; r > 0 {
		return r
	}
	return 0
}

// ReportViolation counts one violation. The increment, the warning row and,
// at the threshold, the TERMINATED transition happen in one critical section,
// so a racing timer expiry cannot turn a threshold termination into FINISHED.
// Concurrent reports are serialized as sequential increments.
func (l *Lifecycle) ReportViolation(ctx context.Context, vt model.ViolationType, description string) (*model.Warning, Outcome, error) {
	if !vt.Valid() {
		return nil, OutcomeIgnored, fmt.Errorf("%w: unknown violation type %q", ErrValidation, vt)
	}
	if description == "" {
		description = Describe(vt)
	}
	now := l.deps.Now()

	l.mu.Lock()
	if l.session.Status != model.SessionStatusActive {
		l.mu.Unlock()
		return nil, OutcomeIgnored, ErrSessionNotActive
	}
	if !l.policy.Admit(l.session.Status, l.session.WarningCount) {
		l.mu.Unlock()
		return nil, OutcomeSuppressed, nil
	}

	w := model.Warning{
		ID:          uuid.New(),
		SessionID:   l.session.ID,
		Type:        vt,
		Description: description,
		Timestamp:   now,
	}
	l.warnings = append(l.warnings, w)
	l.session.WarningCount++
	snapshot := l.session
	recording := l.recording.Current()

	var (
		f          finalization
		terminated bool
	)
	if l.policy.Exceeded(snapshot.WarningCount) {
		f, terminated = l.finalizeLocked(model.SessionStatusTerminated, ReasonMaxWarnings)
	}
	l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	l.logPersist("warning", l.deps.Journal.WarningRecorded(ctx, w))

	l.log.Info().
		Str("type", string(vt)).
		Int("warning_count", snapshot.WarningCount).
		Int("max_warnings", l.policy.MaxWarnings).
		Msg("Violation recorded")

	if terminated {
		// finish emits the non-dismissable termination notice.
		l.finish(ctx, f)
		return &w, OutcomeTerminated, nil
	}

	l.deps.Notifier.Notify(ctx, l.notification(model.NotificationWarning, snapshot, recording, description))
	return &w, OutcomeWarned, nil
}
