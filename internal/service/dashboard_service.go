package service

import (
	"context"

	"github.com/stemsi/shikkha-backend/internal/repository"
	"golang.org/x/sync/errgroup"
)

const dashboardListLimit = 5

// DashboardData consolidates all metrics for the admin dashboard.
type DashboardData struct {
	Counts           repository.DashboardCounts         `json:"counts"`
	QuizStatusCounts map[string]int                     `json:"quiz_status_counts"`
	ActiveAttempts   int                                `json:"active_attempts"`
	UpcomingQuizzes  []repository.DashboardUpcomingQuiz `json:"upcoming_quizzes"`
	RecentActivity   []repository.DashboardQuizActivity `json:"recent_activity"`
}

// DashboardSource is the data access DashboardService reads from.
type DashboardSource interface {
	SummaryCounts(ctx context.Context) (repository.DashboardCounts, error)
	QuizStatusCounts(ctx context.Context) (map[string]int, error)
	UpcomingQuizzes(ctx context.Context, limit int) ([]repository.DashboardUpcomingQuiz, error)
	RecentQuizActivity(ctx context.Context, limit int) ([]repository.DashboardQuizActivity, error)
}

// DashboardService handles admin dashboard business logic.
type DashboardService struct {
	repo     DashboardSource
	attempts interface{ Len() int }
}

// NewDashboardService creates a new DashboardService. attempts reports how
// many attempts this instance currently holds in memory.
func NewDashboardService(repo DashboardSource, attempts interface{ Len() int }) *DashboardService {
	return &DashboardService{repo: repo, attempts: attempts}
}

// GetDashboardData runs the four queries concurrently; the first error wins.
func (s *DashboardService) GetDashboardData(ctx context.Context) (*DashboardData, error) {
	data := &DashboardData{ActiveAttempts: s.attempts.Len()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		data.Counts, err = s.repo.SummaryCounts(ctx)
		return err
	})
	g.Go(func() (err error) {
		data.QuizStatusCounts, err = s.repo.QuizStatusCounts(ctx)
		return err
	})
	g.Go(func() (err error) {
		data.UpcomingQuizzes, err = s.repo.UpcomingQuizzes(ctx, dashboardListLimit)
		return err
	})
	g.Go(func() (err error) {
		data.RecentActivity, err = s.repo.RecentQuizActivity(ctx, dashboardListLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}
