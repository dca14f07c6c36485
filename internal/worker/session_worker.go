package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// NewSessionWorker upserts session snapshots. warning_count is owned by the
// warning worker and is never written here.
func NewSessionWorker(pool *pgxpool.Pool, rdb *redis.Client, maxAttempts int, log zerolog.Logger) *QueueWorker[model.ExamSession] {
	return NewQueueWorker[model.ExamSession]("session_worker", config.WorkerKey.PersistSessionsQueue, rdb, &sessionSink{pool: pool}, maxAttempts, log)
}

type sessionSink struct {
	pool *pgxpool.Pool
}

// upsertSessions never moves a row out of FINISHED or TERMINATED.
const upsertSessions = `
	INSERT INTO exam_sessions (id, exam_id, student_id, status, webcam_status, end_reason, start_time, end_time)
	SELECT * FROM UNNEST(
		$1::uuid[],
		$2::uuid[],
		$3::uuid[],
		$4::text[],
		$5::text[],
		$6::text[],
		$7::timestamptz[],
		$8::timestamptz[]
	)
	ON CONFLICT (id) DO UPDATE
	SET status        = EXCLUDED.status,
	    webcam_status = EXCLUDED.webcam_status,
	    end_reason    = EXCLUDED.end_reason,
	    end_time      = EXCLUDED.end_time,
	    updated_at    = NOW()
	WHERE exam_sessions.status NOT IN ('FINISHED', 'TERMINATED')
`

func (s *sessionSink) WriteBatch(ctx context.Context, items []model.ExamSession) error {
	latest := latestSessions(items)

	n := len(latest)
	ids := make([]uuid.UUID, 0, n)
	exams := make([]uuid.UUID, 0, n)
	students := make([]uuid.UUID, 0, n)
	statuses := make([]string, 0, n)
	webcams := make([]string, 0, n)
	reasons := make([]string, 0, n)
	starts := make([]pgtype.Timestamptz, 0, n)
	ends := make([]pgtype.Timestamptz, 0, n)

	for _, ses := range latest {
		ids = append(ids, ses.ID)
		exams = append(exams, ses.ExamID)
		students = append(students, ses.StudentID)
		statuses = append(statuses, string(ses.Status))
		webcams = append(webcams, string(ses.WebcamStatus))
		reasons = append(reasons, ses.EndReason)
		starts = append(starts, pgtype.Timestamptz{Time: ses.StartTime, Valid: true})
		end := pgtype.Timestamptz{}
		if ses.EndTime != nil {
			end = pgtype.Timestamptz{Time: *ses.EndTime, Valid: true}
		}
		ends = append(ends, end)
	}

	_, err := s.pool.Exec(ctx, upsertSessions, ids, exams, students, statuses, webcams, reasons, starts, ends)
	return err
}

func (s *sessionSink) Write(ctx context.Context, ses model.ExamSession) error {
	return s.WriteBatch(ctx, []model.ExamSession{ses})
}

// latestSessions keeps the last snapshot per session id. A terminal snapshot
// is never replaced by a non-terminal one.
func latestSessions(items []model.ExamSession) []model.ExamSession {
	idx := make(map[uuid.UUID]int, len(items))
	out := make([]model.ExamSession, 0, len(items))
	for _, ses := range items {
		if i, ok := idx[ses.ID]; ok {
			if !out[i].Status.Terminal() {
				out[i] = ses
			}
			continue
		}
		idx[ses.ID] = len(out)
		out = append(out, ses)
	}
	return out
}
