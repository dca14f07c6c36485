package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

type rowStore struct {
	rows map[uuid.UUID]model.ExamSession
}

func (s *rowStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &row, nil
}

func (s *rowStore) GetByExamAndStudent(_ context.Context, examID, studentID uuid.UUID) (*model.ExamSession, error) {
	for _, row := range s.rows {
		if row.ExamID == examID && row.StudentID == studentID {
			return &row, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *rowStore) ListActive(context.Context) ([]model.ExamSession, error) {
	var out []model.ExamSession
	for _, row := range s.rows {
		if row.Status == model.SessionStatusActive {
			out = append(out, row)
		}
	}
	return out, nil
}

// historyRows returns warnings newest first, like the repository.
type historyRows struct {
	warnings map[uuid.UUID][]model.Warning
	answers  map[uuid.UUID][]model.Answer
}

func (h *historyRows) Warnings(_ context.Context, id uuid.UUID) ([]model.Warning, error) {
	return append([]model.Warning(nil), h.warnings[id]...), nil
}

func (h *historyRows) Answers(_ context.Context, id uuid.UUID) ([]model.Answer, error) {
	return append([]model.Answer(nil), h.answers[id]...), nil
}

func (h *historyRows) Segments(context.Context, uuid.UUID) ([]model.RecordingSegment, error) {
	return nil, nil
}

type fixedSettings struct{}

func (fixedSettings) Settings(context.Context, uuid.UUID) (proctor.Settings, error) {
	return proctor.Settings{MaxWarnings: 3, Duration: 2 * time.Hour}, nil
}

type noMonitor struct{}

func (noMonitor) ExamSessions(context.Context, uuid.UUID) ([]model.MonitorSession, error) {
	return nil, nil
}

type proctorFixture struct {
	svc     *ProctorService
	rows    *rowStore
	history *historyRows
	manager *proctor.Manager
}

func newProctorFixture(t *testing.T) *proctorFixture {
	t.Helper()
	f := &proctorFixture{
		rows: &rowStore{rows: make(map[uuid.UUID]model.ExamSession)},
		history: &historyRows{
			warnings: make(map[uuid.UUID][]model.Warning),
			answers:  make(map[uuid.UUID][]model.Answer),
		},
	}
	f.manager = proctor.NewManager(proctor.Deps{Log: zerolog.Nop()}, proctor.Settings{}, time.Minute)
	t.Cleanup(f.manager.Close)
	f.svc = NewProctorService(f.manager, f.rows, f.history, fixedSettings{}, noMonitor{}, zerolog.Nop())
	return f
}

func (f *proctorFixture) persist(status model.SessionStatus, startedAgo time.Duration, warnings int) model.ExamSession {
	row := model.ExamSession{
		ID:           uuid.New(),
		ExamID:       uuid.New(),
		StudentID:    uuid.New(),
		Status:       status,
		StartTime:    time.Now().Add(-startedAgo),
		WebcamStatus: model.WebcamOff,
		WarningCount: warnings,
	}
	if status.Terminal() {
		end := time.Now()
		row.EndTime = &end
		row.EndReason = proctor.ReasonSubmitted
	}
	f.rows.rows[row.ID] = row

	base := row.StartTime
	for i := warnings; i > 0; i-- {
		f.history.warnings[row.ID] = append(f.history.warnings[row.ID], model.Warning{
			ID:        uuid.New(),
			SessionID: row.ID,
			Type:      model.ViolationTabSwitch,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	f.history.answers[row.ID] = []model.Answer{{
		SessionID:  row.ID,
		QuestionID: uuid.New(),
		AnswerText: "Stack",
		IsCorrect:  true,
		Marks:      1,
		Timestamp:  base.Add(time.Minute),
	}}
	return row
}

func TestProctorServiceResumesPersistedAttempt(t *testing.T) {
	f := newProctorFixture(t)
	ctx := context.Background()
	row := f.persist(model.SessionStatusActive, 10*time.Minute, 1)

	detail, err := f.svc.Detail(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, detail.Status)
	assert.Equal(t, 1, detail.WarningCount)
	assert.Equal(t, 1, detail.Score)
	assert.InDelta(t, 7200-600, detail.RemainingSeconds, 5)
	assert.Equal(t, 1, f.manager.Len())

	res, err := f.svc.ReportViolation(ctx, row.ID, model.ViolationFullscreenExit, "left fullscreen")
	require.NoError(t, err)
	assert.Equal(t, 2, res.WarningCount)
	assert.Equal(t, 1, res.Remaining)

	warnings, err := f.svc.Warnings(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, model.ViolationFullscreenExit, warnings[0].Type, "newest first")

	res, err = f.svc.ReportViolation(ctx, row.ID, model.ViolationTabSwitch, "")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusTerminated, res.Status)
}

func TestProctorServiceResumeOverLimitTerminates(t *testing.T) {
	f := newProctorFixture(t)
	row := f.persist(model.SessionStatusActive, time.Minute, 3)

	detail, err := f.svc.Detail(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusTerminated, detail.Status)
	assert.Equal(t, proctor.ReasonMaxWarnings, detail.EndReason)
}

func TestProctorServiceResumeActive(t *testing.T) {
	f := newProctorFixture(t)
	f.persist(model.SessionStatusActive, time.Minute, 0)
	f.persist(model.SessionStatusActive, 3*time.Hour, 0)
	f.persist(model.SessionStatusFinished, time.Hour, 0)

	n, err := f.svc.ResumeActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.manager.Len())
}

func TestProctorServicePersistedTerminalUpdates(t *testing.T) {
	f := newProctorFixture(t)
	ctx := context.Background()
	row := f.persist(model.SessionStatusFinished, time.Hour, 1)

	finished := model.SessionStatusFinished
	detail, err := f.svc.UpdateSession(ctx, row.ID, model.UpdateSessionRequest{Status: &finished})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFinished, detail.Status)
	assert.Equal(t, 1, detail.Score)
	assert.Equal(t, 3, detail.MaxWarnings)
	assert.Equal(t, model.RecordingStopped, detail.Recording)

	on := model.WebcamOn
	_, err = f.svc.UpdateSession(ctx, row.ID, model.UpdateSessionRequest{WebcamStatus: &on})
	assert.ErrorIs(t, err, proctor.ErrSessionNotActive)

	count := 4
	_, err = f.svc.UpdateSession(ctx, row.ID, model.UpdateSessionRequest{WarningCount: &count})
	assert.ErrorIs(t, err, proctor.ErrValidation)

	_, err = f.svc.ReportViolation(ctx, row.ID, model.ViolationTabSwitch, "")
	assert.ErrorIs(t, err, proctor.ErrSessionNotActive)
	_, err = f.svc.SubmitAnswer(ctx, row.ID, uuid.New(), "Stack")
	assert.ErrorIs(t, err, proctor.ErrSessionNotActive)
	assert.Zero(t, f.manager.Len())

	sheet, err := f.svc.Answers(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sheet.Score)

	warnings, err := f.svc.Warnings(ctx, row.ID)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestProctorServiceSingleAttempt(t *testing.T) {
	f := newProctorFixture(t)
	ctx := context.Background()
	row := f.persist(model.SessionStatusFinished, time.Hour, 0)

	_, err := f.svc.StartSession(ctx, row.ExamID, row.StudentID, true)
	assert.ErrorIs(t, err, proctor.ErrAlreadyStarted)

	examID, studentID := uuid.New(), uuid.New()
	session, err := f.svc.StartSession(ctx, examID, studentID, false)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, session.Status)
	assert.Equal(t, model.WebcamOff, session.WebcamStatus)

	_, err = f.svc.StartSession(ctx, examID, studentID, false)
	assert.ErrorIs(t, err, proctor.ErrAlreadyStarted)

	owner, err := f.svc.Owner(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, studentID, owner)
}

func TestProctorServiceUnknownSession(t *testing.T) {
	f := newProctorFixture(t)
	ctx := context.Background()

	_, err := f.svc.Detail(ctx, uuid.New())
	assert.ErrorIs(t, err, proctor.ErrSessionNotFound)
	_, err = f.svc.Answers(ctx, uuid.New())
	assert.ErrorIs(t, err, proctor.ErrSessionNotFound)
	_, err = f.svc.Owner(ctx, uuid.New())
	assert.ErrorIs(t, err, proctor.ErrSessionNotFound)
}
