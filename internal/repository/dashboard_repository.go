package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// DashboardRepository handles examiner dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// GetSummaryCounts retrieves the high-level metrics for the dashboard.
func (r *DashboardRepository) GetSummaryCounts(ctx context.Context) (totalStudents, totalExams, totalSessions, totalWarnings int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM students),
			(SELECT COUNT(*) FROM exams),
			(SELECT COUNT(*) FROM exam_sessions),
			(SELECT COUNT(*) FROM warnings)`,
	).Scan(&totalStudents, &totalExams, &totalSessions, &totalWarnings)
	return
}

// GetSessionStatusCounts retrieves the distribution of sessions by status.
func (r *DashboardRepository) GetSessionStatusCounts(ctx context.Context) (map[model.SessionStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM exam_sessions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.SessionStatus]int)
	for rows.Next() {
		var status model.SessionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// DashboardTermination is a recently terminated session.
type DashboardTermination struct {
	SessionID    uuid.UUID  `json:"sessionId"`
	ExamTitle    string     `json:"examTitle"`
	StudentName  string     `json:"studentName"`
	WarningCount int        `json:"warningCount"`
	EndReason    string     `json:"endReason"`
	EndTime      *time.Time `json:"endTime"`
}

// GetRecentTerminations retrieves the last N terminated sessions.
func (r *DashboardRepository) GetRecentTerminations(ctx context.Context, limit int) ([]DashboardTermination, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT es.id, e.title, s.full_name, es.warning_count, es.end_reason, es.end_time
		 FROM exam_sessions es
		 JOIN exams e ON e.id = es.exam_id
		 JOIN students s ON s.id = es.student_id
		 WHERE es.status = $1
		 ORDER BY es.end_time DESC NULLS LAST
		 LIMIT $2`,
		model.SessionStatusTerminated, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]DashboardTermination, 0)
	for rows.Next() {
		var t DashboardTermination
		if err := rows.Scan(&t.SessionID, &t.ExamTitle, &t.StudentName, &t.WarningCount, &t.EndReason, &t.EndTime); err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}
