package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/quiz"
)

// ResultRepository persists scored attempts. Writes are keyed on attempt_id
// so replays from the queue never create duplicates.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

const insertResult = `
	INSERT INTO quiz_results (attempt_id, quiz_id, user_id, achieved_points, total_points,
	                          correct, incorrect, unanswered, time_taken_seconds, percentage,
	                          reason, outcomes, submitted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (attempt_id) DO NOTHING`

func resultArgs(r *quiz.Result) ([]interface{}, error) {
	outcomes, err := json.Marshal(r.Outcomes)
	if err != nil {
		return nil, fmt.Errorf("marshal outcomes: %w", err)
	}
	return []interface{}{
		r.AttemptID, r.QuizID, r.ActorID, r.AchievedPoints, r.TotalPoints,
		r.Correct, r.Incorrect, r.Unanswered, r.TimeTakenSeconds, r.Percentage,
		string(r.Reason), outcomes, r.SubmittedAt,
	}, nil
}

// Save writes one result.
func (r *ResultRepository) Save(ctx context.Context, res *quiz.Result) error {
	args, err := resultArgs(res)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, insertResult, args...)
	return err
}

// SaveBatch writes all results in a single transaction.
func (r *ResultRepository) SaveBatch(ctx context.Context, results []*quiz.Result) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, res := range results {
		args, err := resultArgs(res)
		if err != nil {
			return err
		}
		batch.Queue(insertResult, args...)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

// GetByAttempt loads a persisted result, including per-question outcomes.
func (r *ResultRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*quiz.Result, error) {
	res := &quiz.Result{}
	var reason string
	err := r.pool.QueryRow(ctx,
		`SELECT attempt_id, quiz_id, user_id, achieved_points, total_points, correct, incorrect,
		        unanswered, time_taken_seconds, percentage, reason, outcomes, submitted_at
		 FROM quiz_results WHERE attempt_id = $1`, attemptID,
	).Scan(&res.AttemptID, &res.QuizID, &res.ActorID, &res.AchievedPoints, &res.TotalPoints,
		&res.Correct, &res.Incorrect, &res.Unanswered, &res.TimeTakenSeconds, &res.Percentage,
		&reason, &res.Outcomes, &res.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res.Reason = quiz.SubmitReason(reason)
	return res, nil
}

// History returns a user's results newest first, with the total count.
func (r *ResultRepository) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.QuizHistoryEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_results WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT r.attempt_id, r.quiz_id, q.title, r.achieved_points, r.total_points,
		        r.percentage, r.time_taken_seconds, r.reason, r.submitted_at
		 FROM quiz_results r JOIN quizzes q ON q.id = r.quiz_id
		 WHERE r.user_id = $1
		 ORDER BY r.submitted_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []model.QuizHistoryEntry{}
	for rows.Next() {
		var e model.QuizHistoryEntry
		if err := rows.Scan(&e.AttemptID, &e.QuizID, &e.Title, &e.AchievedPoints, &e.TotalPoints,
			&e.Percentage, &e.TimeTakenSeconds, &e.Reason, &e.CompletedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Stats aggregates a user's results. Average is rounded half up.
func (r *ResultRepository) Stats(ctx context.Context, userID uuid.UUID) (*model.UserStats, error) {
	s := &model.UserStats{}
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(ROUND(AVG(percentage)), 0)::int,
		        COALESCE(MAX(percentage), 0),
		        COALESCE(SUM(time_taken_seconds), 0) / 60,
		        (SELECT COUNT(*) FROM enrollments WHERE user_id = $1)
		 FROM quiz_results WHERE user_id = $1`, userID,
	).Scan(&s.CompletedQuizzes, &s.AverageScore, &s.BestScore, &s.StudyTimeMinutes, &s.EnrolledCourses)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RecentCompletions returns the user's latest completed quizzes as activity.
func (r *ResultRepository) RecentCompletions(ctx context.Context, userID uuid.UUID, limit int) ([]model.Activity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.title, r.percentage, r.submitted_at
		 FROM quiz_results r JOIN quizzes q ON q.id = r.quiz_id
		 WHERE r.user_id = $1
		 ORDER BY r.submitted_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var title string
		var pct int
		a := model.Activity{Type: model.ActivityQuizCompleted}
		if err := rows.Scan(&title, &pct, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Description = fmt.Sprintf("Completed %s with %d%%", title, pct)
		out = append(out, a)
	}
	return out, rows.Err()
}
