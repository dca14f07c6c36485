package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamSessionRepository reads persisted sessions. Writes go through the
// session and warning workers.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, exam_id, student_id, status, webcam_status, warning_count, end_reason, start_time, end_time`

func scanSession(row pgx.Row, s *model.ExamSession) error {
	return row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.WebcamStatus,
		&s.WarningCount, &s.EndReason, &s.StartTime, &s.EndTime)
}

// GetByID retrieves a session by id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id), s)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByExamAndStudent retrieves the attempt of a student in an exam.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID), s)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListActive returns every ACTIVE session, used to resume attempts on startup.
func (r *ExamSessionRepository) ListActive(ctx context.Context) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE status = $1
		 ORDER BY start_time`, model.SessionStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		var s model.ExamSession
		if err := scanSession(rows, &s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
