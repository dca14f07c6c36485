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

// NewWarningWorker persists warnings and bumps exam_sessions.warning_count.
func NewWarningWorker(pool *pgxpool.Pool, rdb *redis.Client, maxAttempts int, log zerolog.Logger) *QueueWorker[model.Warning] {
	return NewQueueWorker[model.Warning]("warning_worker", config.WorkerKey.PersistWarningsQueue, rdb, &warningSink{pool: pool}, maxAttempts, log)
}

type warningSink struct {
	pool *pgxpool.Pool
}

// insertWarnings inserts the rows and increments the owning session's counter
// by the number of rows actually inserted, in one statement. Replayed
// warnings hit ON CONFLICT and increment nothing.
const insertWarnings = `
	WITH inserted AS (
		INSERT INTO warnings (id, session_id, type, description, created_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::text[],
			$4::text[],
			$5::timestamptz[]
		)
		ON CONFLICT (id) DO NOTHING
		RETURNING session_id
	)
	UPDATE exam_sessions AS s
	SET warning_count = s.warning_count + c.n,
	    updated_at = NOW()
	FROM (
		SELECT session_id, COUNT(*) AS n FROM inserted GROUP BY session_id
	) AS c
	WHERE s.id = c.session_id
`

func (s *warningSink) WriteBatch(ctx context.Context, items []model.Warning) error {
	n := len(items)
	ids := make([]uuid.UUID, 0, n)
	sessions := make([]uuid.UUID, 0, n)
	types := make([]string, 0, n)
	descs := make([]string, 0, n)
	times := make([]time.Time, 0, n)

	for _, w := range items {
		ids = append(ids, w.ID)
		sessions = append(sessions, w.SessionID)
		types = append(types, string(w.Type))
		descs = append(descs, w.Description)
		times = append(times, w.Timestamp)
	}

	_, err := s.pool.Exec(ctx, insertWarnings, ids, sessions, types, descs, times)
	return err
}

func (s *warningSink) Write(ctx context.Context, w model.Warning) error {
	return s.WriteBatch(ctx, []model.Warning{w})
}
