package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// NewAnswerWorker consumes persist_answers_queue and UPSERTs answers to PostgreSQL.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, maxAttempts int, log zerolog.Logger) *QueueWorker[model.Answer] {
	return NewQueueWorker[model.Answer]("answer_worker", config.WorkerKey.PersistAnswersQueue, rdb, &answerSink{pool: pool}, maxAttempts, log)
}

type answerSink struct {
	pool *pgxpool.Pool
}

// upsertAnswers keeps one current row per (session, question). An older
// submission replayed after a newer one never overwrites it.
const upsertAnswers = `
	INSERT INTO answers (session_id, question_id, question_text, answer_text, is_correct, marks, answered_at)
	SELECT * FROM UNNEST(
		$1::uuid[],
		$2::uuid[],
		$3::text[],
		$4::text[],
		$5::bool[],
		$6::int[],
		$7::timestamptz[]
	)
	ON CONFLICT (session_id, question_id) DO UPDATE
	SET question_text = EXCLUDED.question_text,
	    answer_text   = EXCLUDED.answer_text,
	    is_correct    = EXCLUDED.is_correct,
	    marks         = EXCLUDED.marks,
	    answered_at   = EXCLUDED.answered_at
	WHERE answers.answered_at <= EXCLUDED.answered_at
`

func (s *answerSink) WriteBatch(ctx context.Context, items []model.Answer) error {
	latest := latestAnswers(items)

	n := len(latest)
	sessions := make([]uuid.UUID, 0, n)
	questions := make([]uuid.UUID, 0, n)
	texts := make([]string, 0, n)
	answers := make([]string, 0, n)
	correct := make([]bool, 0, n)
	marks := make([]int32, 0, n)
	times := make([]time.Time, 0, n)

	for _, a := range latest {
		sessions = append(sessions, a.SessionID)
		questions = append(questions, a.QuestionID)
		texts = append(texts, a.QuestionText)
		answers = append(answers, a.AnswerText)
		correct = append(correct, a.IsCorrect)
		marks = append(marks, int32(a.Marks))
		times = append(times, a.Timestamp)
	}

	_, err := s.pool.Exec(ctx, upsertAnswers, sessions, questions, texts, answers, correct, marks, times)
	return err
}

func (s *answerSink) Write(ctx context.Context, a model.Answer) error {
	return s.WriteBatch(ctx, []model.Answer{a})
}

type answerKey struct {
	session  uuid.UUID
	question uuid.UUID
}

// latestAnswers keeps the newest answer per (session, question); a single
// upsert may not touch the same row twice.
func latestAnswers(items []model.Answer) []model.Answer {
	idx := make(map[answerKey]int, len(items))
	out := make([]model.Answer, 0, len(items))
	for _, a := range items {
		k := answerKey{a.SessionID, a.QuestionID}
		if i, ok := idx[k]; ok {
			if !a.Timestamp.Before(out[i].Timestamp) {
				out[i] = a
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, a)
	}
	return out
}
