package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `e.id, e.title, e.description, e.examiner_id, e.duration_seconds, e.max_warnings,
	(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id), e.created_at`

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.Description, &e.ExaminerID, &e.DurationSeconds,
		&e.MaxWarnings, &e.QuestionCount, &e.CreatedAt)
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams e WHERE e.id = $1`, id), e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListByExaminer lists exams newest first. uuid.Nil lists every exam.
func (r *ExamRepository) ListByExaminer(ctx context.Context, examinerID uuid.UUID) ([]model.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams e`
	var args []any
	if examinerID != uuid.Nil {
		query += ` WHERE e.examiner_id = $1`
		args = append(args, examinerID)
	}
	query += ` ORDER BY e.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := make([]model.Exam, 0)
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts an exam and its questions in one transaction.
// Question ids and order numbers are filled in place.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (title, description, examiner_id, duration_seconds, max_warnings)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		e.Title, e.Description, e.ExaminerID, e.DurationSeconds, e.MaxWarnings,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return err
	}

	for i := range questions {
		q := &questions[i]
		q.ExamID = e.ID
		if q.OrderNum == 0 {
			q.OrderNum = i + 1
		}
		if err := insertQuestion(ctx, tx, q); err != nil {
			return err
		}
	}
	e.QuestionCount = len(questions)

	return tx.Commit(ctx)
}
