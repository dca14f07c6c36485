package worker

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// NewRecordingWorker appends recording segments with COPY.
func NewRecordingWorker(pool *pgxpool.Pool, rdb *redis.Client, maxAttempts int, log zerolog.Logger) *QueueWorker[model.RecordingSegment] {
	return NewQueueWorker[model.RecordingSegment]("recording_worker", config.WorkerKey.PersistRecordingsQueue, rdb, &recordingSink{pool: pool}, maxAttempts, log)
}

type recordingSink struct {
	pool *pgxpool.Pool
}

func (s *recordingSink) WriteBatch(ctx context.Context, items []model.RecordingSegment) error {
	rows := make([][]any, 0, len(items))
	for _, seg := range items {
		rows = append(rows, []any{
			seg.ID, seg.SessionID, seg.ExaminerID, string(seg.Status), seg.StartTime, seg.EndTime, seg.CreatedAt,
		})
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"recording_segments"},
		[]string{"id", "session_id", "examiner_id", "status", "start_time", "end_time", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Write is the recovery path; a segment already copied is skipped.
func (s *recordingSink) Write(ctx context.Context, seg model.RecordingSegment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recording_segments (id, session_id, examiner_id, status, start_time, end_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		seg.ID, seg.SessionID, seg.ExaminerID, string(seg.Status), seg.StartTime, seg.EndTime, seg.CreatedAt,
	)
	return err
}
