package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// QuestionRepository reads exam questions, answer keys included.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam returns an exam's questions in paper order. It backs the
// answer-key cache refill.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, text, options, correct_answer, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanQuestion)
}

func scanQuestion(row pgx.CollectableRow) (model.Question, error) {
	var q model.Question
	err := row.Scan(&q.ID, &q.ExamID, &q.Text, &q.Options, &q.CorrectAnswer, &q.OrderNum)
	return q, err
}

// queryRower is satisfied by both the pool and a transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertQuestion(ctx context.Context, db queryRower, q *model.Question) error {
	return db.QueryRow(ctx,
		`INSERT INTO questions (exam_id, text, options, correct_answer, order_num)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		q.ExamID, q.Text, q.Options, q.CorrectAnswer, q.OrderNum,
	).Scan(&q.ID)
}
