package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// HistoryRepository reads the append-only records of a session.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Warnings lists a session's warnings, newest first.
func (r *HistoryRepository) Warnings(ctx context.Context, sessionID uuid.UUID) ([]model.Warning, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, type, description, created_at
		 FROM warnings WHERE session_id = $1
		 ORDER BY created_at DESC, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	warnings := make([]model.Warning, 0)
	for rows.Next() {
		var w model.Warning
		if err := rows.Scan(&w.ID, &w.SessionID, &w.Type, &w.Description, &w.Timestamp); err != nil {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// Answers lists a session's current answers in submission order.
func (r *HistoryRepository) Answers(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, question_id, question_text, answer_text, is_correct, marks, answered_at
		 FROM answers WHERE session_id = $1
		 ORDER BY answered_at`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make([]model.Answer, 0)
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.SessionID, &a.QuestionID, &a.QuestionText, &a.AnswerText,
			&a.IsCorrect, &a.Marks, &a.Timestamp); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// Segments lists a session's recording log in append order.
func (r *HistoryRepository) Segments(ctx context.Context, sessionID uuid.UUID) ([]model.RecordingSegment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, examiner_id, status, start_time, end_time, created_at
		 FROM recording_segments WHERE session_id = $1
		 ORDER BY created_at, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := make([]model.RecordingSegment, 0)
	for rows.Next() {
		var s model.RecordingSegment
		if err := rows.Scan(&s.ID, &s.SessionID, &s.ExaminerID, &s.Status,
			&s.StartTime, &s.EndTime, &s.CreatedAt); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}
