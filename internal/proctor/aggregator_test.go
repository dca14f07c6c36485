package proctor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

type stubSource struct {
	rows []model.MonitorSession
	err  error
}

func (s *stubSource) ExamSessions(context.Context, uuid.UUID) ([]model.MonitorSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.MonitorSession, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

type stubLive []LiveState

func (s stubLive) Live(uuid.UUID) []LiveState { return s }

func row(status model.SessionStatus, warnings int, start time.Time) model.MonitorSession {
	return model.MonitorSession{
		SessionID:    uuid.New(),
		ExamID:       examID,
		StudentID:    uuid.New(),
		StudentName:  "Student",
		Status:       status,
		WebcamStatus: model.WebcamOff,
		WarningCount: warnings,
		Recording:    model.RecordingStopped,
		StartTime:    start,
	}
}

func TestAggregatorFilters(t *testing.T) {
	base := time.Now()
	src := &stubSource{rows: []model.MonitorSession{
		row(model.SessionStatusActive, 0, base),
		row(model.SessionStatusActive, 2, base.Add(time.Second)),
		row(model.SessionStatusFinished, 0, base.Add(2*time.Second)),
		row(model.SessionStatusTerminated, 3, base.Add(3*time.Second)),
	}}
	agg := NewLiveAggregator(src, nil)

	tests := []struct {
		filter model.MonitorFilter
		want   int
	}{
		{model.FilterAll, 4},
		{model.FilterActive, 2},
		{model.FilterFinished, 2},
		{model.FilterWarnings, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			snap, err := agg.Snapshot(context.Background(), examID, tt.filter)
			require.NoError(t, err)
			assert.Len(t, snap.Sessions, tt.want)
			assert.Equal(t, model.MonitorStats{Total: 4, Active: 2, Finished: 2, WithWarnings: 2}, snap.Stats)
		})
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, model.FilterAll, f)

	f, err = ParseFilter("warnings")
	require.NoError(t, err)
	assert.Equal(t, model.FilterWarnings, f)

	_, err = ParseFilter("flagged")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAggregatorLiveOverlayWins(t *testing.T) {
	persisted := row(model.SessionStatusActive, 1, time.Now())
	src := &stubSource{rows: []model.MonitorSession{persisted}}
	live := stubLive{{
		Session: model.ExamSession{
			ID:           persisted.SessionID,
			ExamID:       examID,
			StudentID:    persisted.StudentID,
			Status:       model.SessionStatusActive,
			WebcamStatus: model.WebcamOn,
			WarningCount: 2,
			StartTime:    persisted.StartTime,
		},
		Recording:        model.RecordingActive,
		RemainingSeconds: 120,
	}, {
		Session: model.ExamSession{ID: uuid.New(), ExamID: examID, Status: model.SessionStatusActive},
	}}

	snap, err := NewLiveAggregator(src, live).Snapshot(context.Background(), examID, model.FilterAll)
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 2)

	var got model.MonitorSession
	for _, s := range snap.Sessions {
		if s.SessionID == persisted.SessionID {
			got = s
		}
	}
	assert.Equal(t, "Student", got.StudentName)
	assert.Equal(t, 2, got.WarningCount)
	assert.Equal(t, model.WebcamOn, got.WebcamStatus)
	assert.Equal(t, model.RecordingActive, got.Recording)
	require.NotNil(t, got.RemainingSeconds)
	assert.Equal(t, 120, *got.RemainingSeconds)
}

func TestAggregatorNeverRegresses(t *testing.T) {
	r := row(model.SessionStatusActive, 2, time.Now())
	src := &stubSource{rows: []model.MonitorSession{r}}
	agg := NewLiveAggregator(src, nil)
	ctx := context.Background()

	snap, err := agg.Snapshot(ctx, examID, model.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Sessions[0].WarningCount)

	src.rows[0].WarningCount = 1
	snap, err = agg.Snapshot(ctx, examID, model.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Sessions[0].WarningCount)

	end := time.Now()
	src.rows[0].Status = model.SessionStatusTerminated
	src.rows[0].EndTime = &end
	src.rows[0].WarningCount = 3
	_, err = agg.Snapshot(ctx, examID, model.FilterAll)
	require.NoError(t, err)

	src.rows[0].Status = model.SessionStatusActive
	src.rows[0].EndTime = nil
	src.rows[0].WarningCount = 2
	snap, err = agg.Snapshot(ctx, examID, model.FilterActive)
	require.NoError(t, err)
	assert.Empty(t, snap.Sessions)
	assert.Equal(t, 1, snap.Stats.Finished)

	snap, err = agg.Snapshot(ctx, examID, model.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusTerminated, snap.Sessions[0].Status)
	assert.Equal(t, 3, snap.Sessions[0].WarningCount)
	assert.NotNil(t, snap.Sessions[0].EndTime)

	n := agg.Apply(model.Notification{SessionID: r.SessionID, Status: model.SessionStatusActive, WarningCount: 1})
	assert.Equal(t, 3, n.WarningCount)
	assert.Equal(t, model.SessionStatusTerminated, n.Status)
}

func TestAggregatorSourceError(t *testing.T) {
	agg := NewLiveAggregator(&stubSource{err: errors.New("db down")}, nil)
	_, err := agg.Snapshot(context.Background(), examID, model.FilterAll)
	assert.Error(t, err)
}

func TestAggregatorOverManager(t *testing.T) {
	h := newHarness()
	m := NewManager(h.deps, examSettings(), time.Minute)
	t.Cleanup(m.Close)
	ctx := context.Background()

	l, err := m.Start(ctx, StartOptions{ExamID: examID, StudentID: uuid.New(), DeviceReady: true})
	require.NoError(t, err)
	agg := NewLiveAggregator(nil, m)

	last := 0
	for i := 0; i < 3; i++ {
		_, _, err := l.ReportViolation(ctx, model.ViolationTabSwitch, "")
		require.NoError(t, err)
		snap, err := agg.Snapshot(ctx, examID, model.FilterAll)
		require.NoError(t, err)
		require.Len(t, snap.Sessions, 1)
		assert.GreaterOrEqual(t, snap.Sessions[0].WarningCount, last)
		last = snap.Sessions[0].WarningCount
	}

	snap, err := agg.Snapshot(ctx, examID, model.FilterFinished)
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, model.SessionStatusTerminated, snap.Sessions[0].Status)
	assert.Equal(t, model.WebcamOff, snap.Sessions[0].WebcamStatus)
	assert.Nil(t, snap.Sessions[0].RemainingSeconds)
}

func TestAggregatorPrunesIdleMarks(t *testing.T) {
	end := time.Now()
	done := row(model.SessionStatusTerminated, 3, end.Add(-time.Hour))
	done.EndTime = &end
	src := &stubSource{rows: []model.MonitorSession{done}}
	agg := NewLiveAggregator(src, nil)

	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := agg.Snapshot(ctx, examID, model.FilterAll)
	require.NoError(t, err)
	other := uuid.New()
	agg.Apply(model.Notification{SessionID: other, Status: model.SessionStatusActive, WarningCount: 1})
	require.Len(t, agg.marks, 2)

	// Only the session still being pushed stays fresh.
	clock = clock.Add(markRetention / 2)
	agg.Apply(model.Notification{SessionID: other, Status: model.SessionStatusActive, WarningCount: 2})

	assert.Zero(t, agg.Prune(clock.Add(markRetention/2)))
	assert.Equal(t, 1, agg.Prune(clock.Add(markRetention/2+time.Second)))
	require.Len(t, agg.marks, 1)
	assert.Contains(t, agg.marks, other)

	// Once the exam is off the monitor for a full window, the map empties
	// during ordinary traffic.
	src.rows = nil
	clock = clock.Add(2 * markRetention)
	_, err = agg.Snapshot(ctx, examID, model.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, agg.marks)
}
