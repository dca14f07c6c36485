package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/telemetry"
)

type sessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.ExamSession, error)
	ListActive(ctx context.Context) ([]model.ExamSession, error)
}

type historyStore interface {
	Warnings(ctx context.Context, sessionID uuid.UUID) ([]model.Warning, error)
	Answers(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error)
	Segments(ctx context.Context, sessionID uuid.UUID) ([]model.RecordingSegment, error)
}

type examSettings interface {
	Settings(ctx context.Context, examID uuid.UUID) (proctor.Settings, error)
}

// ProctorService orchestrates live attempts on top of the session manager.
// Attempts missing from memory are resumed from PostgreSQL.
type ProctorService struct {
	manager    *proctor.Manager
	sessions   sessionStore
	history    historyStore
	exams      examSettings
	aggregator *proctor.LiveAggregator
	tracer     trace.Tracer
	log        zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(
	manager *proctor.Manager,
	sessions sessionStore,
	history historyStore,
	exams examSettings,
	monitor proctor.SessionSource,
	log zerolog.Logger,
) *ProctorService {
	return &ProctorService{
		manager:    manager,
		sessions:   sessions,
		history:    history,
		exams:      exams,
		aggregator: proctor.NewLiveAggregator(monitor, manager),
		tracer:     telemetry.Tracer("proctor"),
		log:        log.With().Str("component", "proctor_service").Logger(),
	}
}

func (s *ProctorService) span(ctx context.Context, name string, sessionID uuid.UUID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("session_id", sessionID.String())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartSession begins the single attempt of a student in an exam.
func (s *ProctorService) StartSession(ctx context.Context, examID, studentID uuid.UUID, webcamAvailable bool) (session model.ExamSession, err error) {
	ctx, span := s.tracer.Start(ctx, "proctor.StartSession", trace.WithAttributes(
		attribute.String("exam_id", examID.String()),
		attribute.String("student_id", studentID.String()),
	))
	defer func() { endSpan(span, err) }()

	settings, err := s.exams.Settings(ctx, examID)
	if err != nil {
		return model.ExamSession{}, err
	}

	if _, ok := s.manager.Lookup(examID, studentID); ok {
		return model.ExamSession{}, proctor.ErrAlreadyStarted
	}
	_, err = s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	switch {
	case err == nil:
		return model.ExamSession{}, proctor.ErrAlreadyStarted
	case !errors.Is(err, pgx.ErrNoRows):
		return model.ExamSession{}, fmt.Errorf("check attempt: %w", err)
	}

	l, err := s.manager.Start(ctx, proctor.StartOptions{
		ExamID:      examID,
		StudentID:   studentID,
		DeviceReady: webcamAvailable,
		Settings:    settings,
	})
	if err != nil {
		return model.ExamSession{}, err
	}
	span.SetAttributes(attribute.String("session_id", l.ID().String()))
	return l.Snapshot(), nil
}

// resolve returns the live lifecycle of a session, resuming a persisted
// ACTIVE attempt when needed. Terminal attempts come back as their row.
func (s *ProctorService) resolve(ctx context.Context, id uuid.UUID) (*proctor.Lifecycle, *model.ExamSession, error) {
	if l, err := s.manager.Get(id); err == nil {
		return l, nil, nil
	}

	row, err := s.sessions.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, proctor.ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	if row.Status != model.SessionStatusActive {
		return nil, row, nil
	}

	l, err := s.resume(ctx, *row)
	if err != nil {
		return nil, nil, err
	}
	return l, nil, nil
}

func (s *ProctorService) resume(ctx context.Context, row model.ExamSession) (*proctor.Lifecycle, error) {
	settings, err := s.exams.Settings(ctx, row.ExamID)
	if err != nil {
		return nil, err
	}
	warnings, err := s.history.Warnings(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("load warnings: %w", err)
	}
	answers, err := s.history.Answers(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	segments, err := s.history.Segments(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("load recording log: %w", err)
	}

	// Restore expects the warning log oldest first.
	for i, j := 0, len(warnings)-1; i < j; i, j = i+1, j-1 {
		warnings[i], warnings[j] = warnings[j], warnings[i]
	}

	return s.manager.Restore(proctor.RestoreOptions{
		Session:  row,
		Warnings: warnings,
		Answers:  answers,
		Segments: segments,
		Settings: settings,
	})
}

// ResumeActive rehydrates every persisted ACTIVE attempt. Attempts whose
// deadline passed while the server was down finish immediately.
func (s *ProctorService) ResumeActive(ctx context.Context) (int, error) {
	rows, err := s.sessions.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	resumed := 0
	for _, row := range rows {
		if _, err := s.resume(ctx, row); err != nil {
			s.log.Warn().Err(err).Str("session_id", row.ID.String()).Msg("Failed to resume session, skipping")
			continue
		}
		resumed++
	}
	return resumed, nil
}

// Lifecycle returns the live attempt. Terminal attempts yield ErrSessionNotActive.
func (s *ProctorService) Lifecycle(ctx context.Context, id uuid.UUID) (*proctor.Lifecycle, error) {
	l, _, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, proctor.ErrSessionNotActive
	}
	return l, nil
}

// Owner returns the student an attempt belongs to.
func (s *ProctorService) Owner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	if l, err := s.manager.Get(id); err == nil {
		return l.StudentID(), nil
	}
	row, err := s.sessions.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, proctor.ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get session: %w", err)
	}
	return row.StudentID, nil
}

// Detail returns the session with score, remaining time and recording state.
func (s *ProctorService) Detail(ctx context.Context, id uuid.UUID) (model.SessionDetail, error) {
	l, row, err := s.resolve(ctx, id)
	if err != nil {
		return model.SessionDetail{}, err
	}
	if l != nil {
		return l.Detail(), nil
	}
	return s.persistedDetail(ctx, *row)
}

func (s *ProctorService) persistedDetail(ctx context.Context, row model.ExamSession) (model.SessionDetail, error) {
	answers, err := s.history.Answers(ctx, row.ID)
	if err != nil {
		return model.SessionDetail{}, fmt.Errorf("load answers: %w", err)
	}
	segments, err := s.history.Segments(ctx, row.ID)
	if err != nil {
		return model.SessionDetail{}, fmt.Errorf("load recording log: %w", err)
	}
	settings, err := s.exams.Settings(ctx, row.ExamID)
	if err != nil {
		return model.SessionDetail{}, err
	}

	recording := model.RecordingStopped
	if n := len(segments); n > 0 {
		recording = segments[n-1].Status
	}
	return model.SessionDetail{
		ExamSession: row,
		Score:       proctor.Score(answers),
		MaxWarnings: settings.WithDefaults(s.manager.Defaults()).MaxWarnings,
		Recording:   recording,
	}, nil
}

// UpdateSession applies a partial update. warningCount is read-only: an equal
// value is accepted, anything else is a validation error. Repeated terminal
// transitions return the unchanged session.
func (s *ProctorService) UpdateSession(ctx context.Context, id uuid.UUID, req model.UpdateSessionRequest) (detail model.SessionDetail, err error) {
	ctx, span := s.span(ctx, "proctor.UpdateSession", id)
	defer func() { endSpan(span, err) }()

	l, row, err := s.resolve(ctx, id)
	if err != nil {
		return model.SessionDetail{}, err
	}

	if row != nil {
		if err := checkUpdate(req, *row); err != nil {
			return model.SessionDetail{}, err
		}
		if req.WebcamStatus != nil && *req.WebcamStatus != row.WebcamStatus {
			return model.SessionDetail{}, proctor.ErrSessionNotActive
		}
		return s.persistedDetail(ctx, *row)
	}

	if err := checkUpdate(req, l.Snapshot()); err != nil {
		return model.SessionDetail{}, err
	}
	if req.WebcamStatus != nil {
		if _, err := l.SetWebcam(ctx, *req.WebcamStatus); err != nil {
			return model.SessionDetail{}, err
		}
	}
	if req.Status != nil {
		switch *req.Status {
		case model.SessionStatusFinished:
			l.Submit(ctx)
		case model.SessionStatusTerminated:
			reason := req.Reason
			if reason == "" {
				reason = proctor.ReasonTerminatedByExaminer
			}
			l.Terminate(ctx, reason)
		}
	}
	return l.Detail(), nil
}

func checkUpdate(req model.UpdateSessionRequest, current model.ExamSession) error {
	if req.WarningCount != nil && *req.WarningCount != current.WarningCount {
		return fmt.Errorf("%w: warningCount is read-only, report violations instead", proctor.ErrValidation)
	}
	if req.Status != nil {
		switch *req.Status {
		case model.SessionStatusFinished, model.SessionStatusTerminated:
		default:
			return fmt.Errorf("%w: status can only move to FINISHED or TERMINATED", proctor.ErrValidation)
		}
	}
	return nil
}

// ReportViolation counts one violation against a session.
func (s *ProctorService) ReportViolation(ctx context.Context, id uuid.UUID, vt model.ViolationType, description string) (result model.ViolationResult, err error) {
	ctx, span := s.span(ctx, "proctor.ReportViolation", id)
	span.SetAttributes(attribute.String("violation_type", string(vt)))
	defer func() { endSpan(span, err) }()

	l, err := s.Lifecycle(ctx, id)
	if err != nil {
		return model.ViolationResult{}, err
	}

	w, outcome, err := l.ReportViolation(ctx, vt, description)
	if err != nil {
		return model.ViolationResult{}, err
	}

	snap := l.Snapshot()
	policy := proctor.EscalationPolicy{MaxWarnings: l.MaxWarnings()}
	span.SetAttributes(attribute.String("outcome", outcome.String()), attribute.Int("warning_count", snap.WarningCount))
	return model.ViolationResult{
		Warning:      w,
		Outcome:      outcome.String(),
		WarningCount: snap.WarningCount,
		Remaining:    policy.Remaining(snap.WarningCount),
		Status:       snap.Status,
	}, nil
}

// SubmitAnswer grades and records an answer.
func (s *ProctorService) SubmitAnswer(ctx context.Context, id, questionID uuid.UUID, answerText string) (answer model.Answer, err error) {
	ctx, span := s.span(ctx, "proctor.SubmitAnswer", id)
	defer func() { endSpan(span, err) }()

	l, err := s.Lifecycle(ctx, id)
	if err != nil {
		return model.Answer{}, err
	}
	return l.RecordAnswer(ctx, questionID, answerText)
}

// ToggleRecording appends a recording segment.
func (s *ProctorService) ToggleRecording(ctx context.Context, id uuid.UUID, examinerID *uuid.UUID, status model.RecordingStatus) (seg model.RecordingSegment, err error) {
	ctx, span := s.span(ctx, "proctor.ToggleRecording", id)
	defer func() { endSpan(span, err) }()

	l, err := s.Lifecycle(ctx, id)
	if err != nil {
		return model.RecordingSegment{}, err
	}
	return l.ToggleRecording(ctx, examinerID, status)
}

// Answers returns the answer sheet; live attempts answer from memory.
func (s *ProctorService) Answers(ctx context.Context, id uuid.UUID) (model.AnswerSheet, error) {
	if l, err := s.manager.Get(id); err == nil {
		return model.NewAnswerSheet(id, l.Answers()), nil
	}
	if _, err := s.Owner(ctx, id); err != nil {
		return model.AnswerSheet{}, err
	}
	answers, err := s.history.Answers(ctx, id)
	if err != nil {
		return model.AnswerSheet{}, fmt.Errorf("load answers: %w", err)
	}
	return model.NewAnswerSheet(id, answers), nil
}

// Warnings returns the warning log, newest first.
func (s *ProctorService) Warnings(ctx context.Context, id uuid.UUID) ([]model.Warning, error) {
	if l, err := s.manager.Get(id); err == nil {
		warnings := l.Warnings()
		for i, j := 0, len(warnings)-1; i < j; i, j = i+1, j-1 {
			warnings[i], warnings[j] = warnings[j], warnings[i]
		}
		return warnings, nil
	}
	if _, err := s.Owner(ctx, id); err != nil {
		return nil, err
	}
	warnings, err := s.history.Warnings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load warnings: %w", err)
	}
	return warnings, nil
}

// Monitor returns the examiner's view of an exam.
func (s *ProctorService) Monitor(ctx context.Context, examID uuid.UUID, filter model.MonitorFilter) (model.MonitorSnapshot, error) {
	return s.aggregator.Snapshot(ctx, examID, filter)
}

// ApplyEvent merges a pushed notification into the monitor's high-water marks.
func (s *ProctorService) ApplyEvent(n model.Notification) model.Notification {
	return s.aggregator.Apply(n)
}

// LiveCount returns the number of attempts held in memory.
func (s *ProctorService) LiveCount() int {
	return s.manager.Len()
}
