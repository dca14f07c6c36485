package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

type stubDashboard struct {
	limit int
	err   error
}

func (s *stubDashboard) GetSummaryCounts(context.Context) (int, int, int, int, error) {
	return 3, 1, 2, 4, s.err
}

func (s *stubDashboard) GetSessionStatusCounts(context.Context) (map[model.SessionStatus]int, error) {
	return map[model.SessionStatus]int{
		model.SessionStatusActive:     1,
		model.SessionStatusTerminated: 1,
	}, nil
}

func (s *stubDashboard) GetRecentTerminations(_ context.Context, limit int) ([]repository.DashboardTermination, error) {
	s.limit = limit
	return []repository.DashboardTermination{{SessionID: uuid.New(), WarningCount: 3, EndReason: "max_warnings_exceeded"}}, nil
}

type stubDepths map[string]int64

func (s stubDepths) QueueDepths(context.Context) (map[string]int64, error) { return s, nil }

func TestDashboardOverview(t *testing.T) {
	repo := &stubDashboard{}
	svc := NewDashboardService(repo, stubDepths{"warnings": 2}, func() int { return 7 })

	data, err := svc.Overview(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRecentTerminations, repo.limit)
	assert.Equal(t, 3, data.TotalStudents)
	assert.Equal(t, 4, data.TotalWarnings)
	assert.Equal(t, 7, data.LiveSessions)
	assert.Equal(t, int64(2), data.QueueDepths["warnings"])
	assert.Len(t, data.RecentTerminations, 1)

	_, err = svc.Overview(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, MaxRecentTerminations, repo.limit)
}

func TestDashboardOverviewPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	svc := NewDashboardService(&stubDashboard{err: boom}, stubDepths{}, nil)

	_, err := svc.Overview(context.Background(), 5)
	assert.ErrorIs(t, err, boom)
}
