package proctor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// SessionSource lists persisted sessions of an exam with student identity and
// latest recording status.
type SessionSource interface {
	ExamSessions(ctx context.Context, examID uuid.UUID) ([]model.MonitorSession, error)
}

// LiveSource exposes in-memory lifecycles. *Manager implements it.
type LiveSource interface {
	Live(examID uuid.UUID) []LiveState
}

// markRetention is how long an untouched high-water mark is kept. It outlasts
// the persistence lag, after which the stored row is already current.
const markRetention = 30 * time.Minute

type highWater struct {
	warnings int
	status   model.SessionStatus
	endTime  *time.Time
	touched  time.Time
}

// LiveAggregator joins persisted and live session state for the monitor view.
// It is read-only. Per-session high-water marks keep warning counts and
// terminal statuses from regressing between reads, whichever source is stale.
type LiveAggregator struct {
	source SessionSource
	live   LiveSource
	now    func() time.Time

	mu        sync.Mutex
	marks     map[uuid.UUID]highWater
	retention time.Duration
	lastPrune time.Time
}

func NewLiveAggregator(source SessionSource, live LiveSource) *LiveAggregator {
	return &LiveAggregator{
		source: source,
		live:   live,
		now:       time.Now,
		marks:     make(map[uuid.UUID]highWater),
		retention: markRetention,
	}
}

// ParseFilter accepts all, active, finished and warnings; empty means all.
func ParseFilter(raw string) (model.MonitorFilter, error) {
	switch f := model.MonitorFilter(raw); f {
	case "":
		return model.FilterAll, nil
	case model.FilterAll, model.FilterActive, model.FilterFinished, model.FilterWarnings:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown filter %q", ErrValidation, raw)
}

// Matches applies a filter predicate to one row.
func Matches(filter model.MonitorFilter, s model.MonitorSession) bool {
	switch filter {
	case model.FilterActive:
		return s.Status == model.SessionStatusActive
	case model.FilterFinished:
		return s.Status.Terminal()
	case model.FilterWarnings:
		return s.WarningCount > 0
	}
	return true
}

// Snapshot builds the view of one exam. Stats cover every session; the list
// is filtered.
func (a *LiveAggregator) Snapshot(ctx context.Context, examID uuid.UUID, filter model.MonitorFilter) (model.MonitorSnapshot, error) {
	var rows []model.MonitorSession
	if a.source != nil {
		persisted, err := a.source.ExamSessions(ctx, examID)
		if err != nil {
			return model.MonitorSnapshot{}, fmt.Errorf("list exam sessions: %w", err)
		}
		rows = append(rows, persisted...)
	}

	index := make(map[uuid.UUID]int, len(rows))
	for i, r := range rows {
		index[r.SessionID] = i
	}

	if a.live != nil {
		for _, st := range a.live.Live(examID) {
			i, ok := index[st.Session.ID]
			if !ok {
				rows = append(rows, model.MonitorSession{
					SessionID: st.Session.ID,
					ExamID:    st.Session.ExamID,
					StudentID: st.Session.StudentID,
				})
				i = len(rows) - 1
				index[st.Session.ID] = i
			}
			overlay(&rows[i], st)
		}
	}

	now := a.now()
	a.mu.Lock()
	for i := range rows {
		a.clampLocked(&rows[i], now)
	}
	a.maybePruneLocked(now)
	a.mu.Unlock()

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].StartTime.Equal(rows[j].StartTime) {
			return rows[i].StartTime.Before(rows[j].StartTime)
		}
		return rows[i].SessionID.String() < rows[j].SessionID.String()
	})

	snap := model.MonitorSnapshot{
		ExamID:      examID,
		Filter:      filter,
		Sessions:    make([]model.MonitorSession, 0, len(rows)),
		GeneratedAt: now,
	}
	for _, r := range rows {
		snap.Stats.Total++
		switch {
		case r.Status == model.SessionStatusActive:
			snap.Stats.Active++
		case r.Status.Terminal():
			snap.Stats.Finished++
		}
		if r.WarningCount > 0 {
			snap.Stats.WithWarnings++
		}
		if Matches(filter, r) {
			snap.Sessions = append(snap.Sessions, r)
		}
	}
	return snap, nil
}

// overlay lets the live lifecycle win over the persisted row.
func overlay(row *model.MonitorSession, st LiveState) {
	s := st.Session
	row.Status = s.Status
	row.WebcamStatus = s.WebcamStatus
	row.WarningCount = max(row.WarningCount, s.WarningCount)
	row.Recording = st.Recording
	row.StartTime = s.StartTime
	row.EndTime = s.EndTime
	row.RemainingSeconds = nil
	if s.Status == model.SessionStatusActive {
		rem := st.RemainingSeconds
		row.RemainingSeconds = &rem
	}
}

func (a *LiveAggregator) clampLocked(row *model.MonitorSession, now time.Time) {
	hw := a.marks[row.SessionID]

	if row.WarningCount < hw.warnings {
		row.WarningCount = hw.warnings
	} else {
		hw.warnings = row.WarningCount
	}

	if hw.status.Terminal() && !row.Status.Terminal() {
		row.Status = hw.status
		row.WebcamStatus = model.WebcamOff
		row.EndTime = hw.endTime
		row.RemainingSeconds = nil
	} else if row.Status.Terminal() {
		hw.status = row.Status
		hw.endTime = row.EndTime
	}

	hw.touched = now
	a.marks[row.SessionID] = hw
}

// Apply passes a pushed notification through the same monotonic merge as
// Snapshot, so push and poll never disagree backwards.
func (a *LiveAggregator) Apply(n model.Notification) model.Notification {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()

	hw := a.marks[n.SessionID]
	if n.WarningCount < hw.warnings {
		n.WarningCount = hw.warnings
	} else {
		hw.warnings = n.WarningCount
	}
	if hw.status.Terminal() && !n.Status.Terminal() {
		n.Status = hw.status
		n.WebcamStatus = model.WebcamOff
	} else if n.Status.Terminal() {
		hw.status = n.Status
	}
	hw.touched = now
	a.marks[n.SessionID] = hw
	a.maybePruneLocked(now)
	return n
}

// Prune drops marks not touched within the retention window and returns how
// many were removed.
func (a *LiveAggregator) Prune(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pruneLocked(now)
}

func (a *LiveAggregator) maybePruneLocked(now time.Time) {
	if now.Sub(a.lastPrune) < a.retention/2 {
		return
	}
	a.pruneLocked(now)
}

func (a *LiveAggregator) pruneLocked(now time.Time) int {
	a.lastPrune = now
	cutoff := now.Add(-a.retention)
	removed := 0
	for id, hw := range a.marks {
		if hw.touched.Before(cutoff) {
			delete(a.marks, id)
			removed++
		}
	}
	return removed
}
