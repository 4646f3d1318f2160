package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/shikkha-backend/internal/quiz"
)

// QuizRepository stores quiz definitions and their questions.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

const quizColumns = `id, course_id, title, description, time_limit_minutes,
	is_active, starts_at, ends_at, author_id, created_at`

func scanQuiz(row pgx.Row, q *quiz.Quiz) error {
	return row.Scan(&q.ID, &q.CourseID, &q.Title, &q.Description, &q.TimeLimitMinutes,
		&q.Active, &q.StartsAt, &q.EndsAt, &q.AuthorID, &q.CreatedAt)
}

// Create inserts the quiz and all its questions atomically.
func (r *QuizRepository) Create(ctx context.Context, q *quiz.Quiz) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO quizzes (course_id, title, description, time_limit_minutes, is_active, starts_at, ends_at, author_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id, created_at`,
			q.CourseID, q.Title, q.Description, q.TimeLimitMinutes, q.Active, q.StartsAt, q.EndsAt, q.AuthorID,
		).Scan(&q.ID, &q.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"quiz_questions"},
			[]string{"quiz_id", "position", "prompt", "options", "correct_option", "points", "explanation"},
			pgx.CopyFromSlice(len(q.Questions), func(i int) ([]interface{}, error) {
				qs := q.Questions[i]
				return []interface{}{q.ID, qs.Position, qs.Prompt, qs.Options, qs.CorrectOption, qs.Points, qs.Explanation}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}

// GetByID loads a quiz with its questions ordered by position.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*quiz.Quiz, error) {
	q := &quiz.Quiz{}
	err := scanQuiz(r.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, id), q)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, quiz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT position, prompt, options, correct_option, points, explanation
		 FROM quiz_questions WHERE quiz_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	q.Questions = []quiz.Question{}
	for rows.Next() {
		var qs quiz.Question
		if err := rows.Scan(&qs.Position, &qs.Prompt, &qs.Options, &qs.CorrectOption, &qs.Points, &qs.Explanation); err != nil {
			return nil, err
		}
		q.Questions = append(q.Questions, qs)
	}
	return q, rows.Err()
}

// ListActive returns active quizzes with their questions, optionally
// restricted to one course.
func (r *QuizRepository) ListActive(ctx context.Context, courseID *uuid.UUID) ([]quiz.Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE is_active = TRUE`
	var args []interface{}
	if courseID != nil {
		query += ` AND course_id = $1`
		args = append(args, *courseID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quizzes := []quiz.Quiz{}
	index := map[uuid.UUID]int{}
	var ids []uuid.UUID
	for rows.Next() {
		var q quiz.Quiz
		if err := scanQuiz(rows, &q); err != nil {
			return nil, err
		}
		q.Questions = []quiz.Question{}
		index[q.ID] = len(quizzes)
		ids = append(ids, q.ID)
		quizzes = append(quizzes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return quizzes, nil
	}

	qrows, err := r.pool.Query(ctx,
		`SELECT quiz_id, position, prompt, options, correct_option, points, explanation
		 FROM quiz_questions WHERE quiz_id = ANY($1) ORDER BY quiz_id, position`, ids)
	if err != nil {
		return nil, err
	}
	defer qrows.Close()

	for qrows.Next() {
		var quizID uuid.UUID
		var qs quiz.Question
		if err := qrows.Scan(&quizID, &qs.Position, &qs.Prompt, &qs.Options, &qs.CorrectOption, &qs.Points, &qs.Explanation); err != nil {
			return nil, err
		}
		i := index[quizID]
		quizzes[i].Questions = append(quizzes[i].Questions, qs)
	}
	return quizzes, qrows.Err()
}

// SetActive toggles a quiz's availability.
func (r *QuizRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quizzes SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return quiz.ErrNotFound
	}
	return nil
}
