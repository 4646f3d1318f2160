package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DashboardRepository handles admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// DashboardCounts are the stat cards at the top of the admin dashboard.
type DashboardCounts struct {
	Students int `json:"students"`
	Teachers int `json:"teachers"`
	Courses  int `json:"courses"`
	Quizzes  int `json:"quizzes"`
	Results  int `json:"results"`
}

// SummaryCounts retrieves the platform-wide totals.
func (r *DashboardRepository) SummaryCounts(ctx context.Context) (DashboardCounts, error) {
	var c DashboardCounts
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users WHERE role = 'student'),
			(SELECT COUNT(*) FROM users WHERE role = 'teacher'),
			(SELECT COUNT(*) FROM courses),
			(SELECT COUNT(*) FROM quizzes),
			(SELECT COUNT(*) FROM quiz_results)`,
	).Scan(&c.Students, &c.Teachers, &c.Courses, &c.Quizzes, &c.Results)
	return c, err
}

// QuizStatusCounts buckets quizzes the same way quiz.CheckAvailable does:
// inactive, scheduled (window not open yet), closed (window over) or open.
func (r *DashboardRepository) QuizStatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT CASE
			WHEN NOT is_active THEN 'inactive'
			WHEN starts_at IS NOT NULL AND starts_at > NOW() THEN 'scheduled'
			WHEN ends_at IS NOT NULL AND ends_at <= NOW() THEN 'closed'
			ELSE 'open'
		 END AS status, COUNT(*)
		 FROM quizzes GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{"open": 0, "scheduled": 0, "closed": 0, "inactive": 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// DashboardUpcomingQuiz is an active quiz whose window opens later.
type DashboardUpcomingQuiz struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	StartsAt         time.Time `json:"starts_at"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
}

// UpcomingQuizzes retrieves the next N scheduled quizzes.
func (r *DashboardRepository) UpcomingQuizzes(ctx context.Context, limit int) ([]DashboardUpcomingQuiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, starts_at, time_limit_minutes
		 FROM quizzes
		 WHERE is_active AND starts_at > NOW()
		 ORDER BY starts_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quizzes := []DashboardUpcomingQuiz{}
	for rows.Next() {
		var q DashboardUpcomingQuiz
		if err := rows.Scan(&q.ID, &q.Title, &q.StartsAt, &q.TimeLimitMinutes); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

// DashboardQuizActivity summarizes the results of one recently taken quiz.
type DashboardQuizActivity struct {
	ID                uuid.UUID `json:"id"`
	Title             string    `json:"title"`
	LastSubmittedAt   time.Time `json:"last_submitted_at"`
	ParticipantCount  int       `json:"participant_count"`
	AveragePercentage int       `json:"average_percentage"`
}

// RecentQuizActivity retrieves the N quizzes with the latest submissions.
func (r *DashboardRepository) RecentQuizActivity(ctx context.Context, limit int) ([]DashboardQuizActivity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.title, MAX(r.submitted_at) AS last_submitted,
		        COUNT(DISTINCT r.user_id), ROUND(AVG(r.percentage))::int
		 FROM quizzes q
		 JOIN quiz_results r ON r.quiz_id = q.id
		 GROUP BY q.id, q.title
		 ORDER BY last_submitted DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activity := []DashboardQuizActivity{}
	for rows.Next() {
		var a DashboardQuizActivity
		if err := rows.Scan(&a.ID, &a.Title, &a.LastSubmittedAt, &a.ParticipantCount, &a.AveragePercentage); err != nil {
			return nil, err
		}
		activity = append(activity, a)
	}
	return activity, rows.Err()
}
