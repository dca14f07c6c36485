package service

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// DashboardData consolidates all metrics for the examiner dashboard.
type DashboardData struct {
	TotalStudents      int                               `json:"totalStudents"`
	TotalExams         int                               `json:"totalExams"`
	TotalSessions      int                               `json:"totalSessions"`
	TotalWarnings      int                               `json:"totalWarnings"`
	LiveSessions       int                               `json:"liveSessions"`
	SessionStatuses    map[model.SessionStatus]int       `json:"sessionStatuses"`
	RecentTerminations []repository.DashboardTermination `json:"recentTerminations"`
	QueueDepths        map[string]int64                  `json:"queueDepths"`
}

type dashboardStore interface {
	GetSummaryCounts(ctx context.Context) (int, int, int, int, error)
	GetSessionStatusCounts(ctx context.Context) (map[model.SessionStatus]int, error)
	GetRecentTerminations(ctx context.Context, limit int) ([]repository.DashboardTermination, error)
}

type queueDepther interface {
	QueueDepths(ctx context.Context) (map[string]int64, error)
}

// DashboardService handles examiner dashboard business logic.
type DashboardService struct {
	repo   dashboardStore
	queues queueDepther
	live   func() int
}

// NewDashboardService creates a new DashboardService. live reports the number
// of attempts held in memory.
func NewDashboardService(repo dashboardStore, queues queueDepther, live func() int) *DashboardService {
	return &DashboardService{repo: repo, queues: queues, live: live}
}

// Bounds of the recent terminations list.
const (
	DefaultRecentTerminations = 5
	MaxRecentTerminations     = 50
)

// Overview gathers the dashboard metrics sequentially. recent is clamped to
// [1, MaxRecentTerminations].
func (s *DashboardService) Overview(ctx context.Context, recent int) (*DashboardData, error) {
	if recent <= 0 {
		recent = DefaultRecentTerminations
	}
	if recent > MaxRecentTerminations {
		recent = MaxRecentTerminations
	}

	students, exams, sessions, warnings, err := s.repo.GetSummaryCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("summary counts: %w", err)
	}

	statusCounts, err := s.repo.GetSessionStatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}

	terminations, err := s.repo.GetRecentTerminations(ctx, recent)
	if err != nil {
		return nil, fmt.Errorf("recent terminations: %w", err)
	}

	depths, err := s.queues.QueueDepths(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue depths: %w", err)
	}

	data := &DashboardData{
		TotalStudents:      students,
		TotalExams:         exams,
		TotalSessions:      sessions,
		TotalWarnings:      warnings,
		SessionStatuses:    statusCounts,
		RecentTerminations: terminations,
		QueueDepths:        depths,
	}
	if s.live != nil {
		data.LiveSessions = s.live()
	}

	return data, nil
}
