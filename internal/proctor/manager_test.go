package proctor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

func newTestManager(h *harness, retention time.Duration) *Manager {
	m := NewManager(h.deps, examSettings(), retention)
	return m
}

func TestManagerOneAttemptPerStudent(t *testing.T) {
	h := newHarness()
	m := newTestManager(h, time.Minute)
	t.Cleanup(m.Close)
	student := uuid.New()
	ctx := context.Background()

	l, err := m.Start(ctx, StartOptions{ExamID: examID, StudentID: student, DeviceReady: true})
	require.NoError(t, err)
	assert.Equal(t, 3, l.MaxWarnings())

	_, err = m.Start(ctx, StartOptions{ExamID: examID, StudentID: student, DeviceReady: true})
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	got, err := m.Get(l.ID())
	require.NoError(t, err)
	assert.Same(t, l, got)

	found, ok := m.Lookup(examID, student)
	require.True(t, ok)
	assert.Same(t, l, found)

	_, err = m.Get(uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = m.Start(ctx, StartOptions{ExamID: examID})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestManagerAppliesExamSettings(t *testing.T) {
	h := newHarness()
	m := newTestManager(h, time.Minute)
	t.Cleanup(m.Close)

	l, err := m.Start(context.Background(), StartOptions{
		ExamID:    examID,
		StudentID: uuid.New(),
		Settings:  Settings{MaxWarnings: 5, Duration: 90 * time.Second},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, l.MaxWarnings())
	assert.Equal(t, 90, l.Remaining())
}

func TestManagerEvictsAfterRetention(t *testing.T) {
	h := newHarness()
	m := newTestManager(h, time.Minute)
	t.Cleanup(m.Close)
	ctx := context.Background()

	done, err := m.Start(ctx, StartOptions{ExamID: examID, StudentID: uuid.New()})
	require.NoError(t, err)
	live, err := m.Start(ctx, StartOptions{ExamID: examID, StudentID: uuid.New()})
	require.NoError(t, err)
	done.Submit(ctx)

	assert.Equal(t, 0, m.Evict(time.Now()))
	assert.Equal(t, 1, m.Evict(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 1, m.Len())

	_, err = m.Get(done.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(live.ID())
	assert.NoError(t, err)
}

func TestManagerRestore(t *testing.T) {
	h := newHarness()
	m := newTestManager(h, time.Minute)
	t.Cleanup(m.Close)

	session := model.ExamSession{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: uuid.New(),
		Status:    model.SessionStatusActive,
		StartTime: time.Now(),
	}
	l, err := m.Restore(RestoreOptions{Session: session})
	require.NoError(t, err)

	again, err := m.Restore(RestoreOptions{Session: session})
	require.NoError(t, err)
	assert.Same(t, l, again)

	_, err = m.Start(context.Background(), StartOptions{ExamID: examID, StudentID: session.StudentID})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestManagerLiveListsExamSessions(t *testing.T) {
	h := newHarness()
	m := newTestManager(h, time.Minute)
	t.Cleanup(m.Close)
	ctx := context.Background()

	_, err := m.Start(ctx, StartOptions{ExamID: examID, StudentID: uuid.New(), DeviceReady: true})
	require.NoError(t, err)
	_, err = m.Start(ctx, StartOptions{ExamID: uuid.New(), StudentID: uuid.New()})
	require.NoError(t, err)

	states := m.Live(examID)
	require.Len(t, states, 1)
	assert.Equal(t, model.RecordingActive, states[0].Recording)
	assert.Equal(t, 7200, states[0].RemainingSeconds)
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	h := newHarness()
	m := newTestManager(h, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
