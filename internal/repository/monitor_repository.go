package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// MonitorRepository provides data access for the live exam monitoring feature.
// It combines PostgreSQL (session rows) and Redis (persistence backlog).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

var _ proctor.SessionSource = (*MonitorRepository)(nil)

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// ExamSessions returns every persisted session of an exam joined with the
// student's identity and the latest recording segment.
func (r *MonitorRepository) ExamSessions(ctx context.Context, examID uuid.UUID) ([]model.MonitorSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT es.id, es.exam_id, es.student_id, s.full_name, s.email,
		        es.status, es.webcam_status, es.warning_count,
		        COALESCE(rs.status, 'stopped'), es.start_time, es.end_time
		 FROM exam_sessions es
		 JOIN students s ON s.id = es.student_id
		 LEFT JOIN LATERAL (
		     SELECT status FROM recording_segments
		     WHERE session_id = es.id
		     ORDER BY created_at DESC
		     LIMIT 1
		 ) rs ON TRUE
		 WHERE es.exam_id = $1
		 ORDER BY es.start_time`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]model.MonitorSession, 0)
	for rows.Next() {
		var m model.MonitorSession
		if err := rows.Scan(&m.SessionID, &m.ExamID, &m.StudentID, &m.StudentName, &m.StudentEmail,
			&m.Status, &m.WebcamStatus, &m.WarningCount,
			&m.Recording, &m.StartTime, &m.EndTime); err != nil {
			return nil, err
		}
		sessions = append(sessions, m)
	}
	return sessions, rows.Err()
}

// QueueDepths reports the length of every persistence queue.
func (r *MonitorRepository) QueueDepths(ctx context.Context) (map[string]int64, error) {
	queues := config.WorkerKey.Queues()

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(queues))
	for i, q := range queues {
		cmds[i] = pipe.LLen(ctx, q)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	depths := make(map[string]int64, len(queues))
	for i, q := range queues {
		depths[q] = cmds[i].Val()
	}
	return depths, nil
}
