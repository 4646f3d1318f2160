// Package quiz implements the quiz lifecycle: definitions, timed attempts,
// answer tracking and scoring. It performs no I/O; persistence, identity and
// broadcast are supplied by the caller.
package quiz

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPoints is applied to questions submitted without a point value.
const DefaultPoints = 1

// Question is a single multiple-choice question.
type Question struct {
	Position      int      `json:"position"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Points        int      `json:"points"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Quiz is an ordered, scored set of questions with a time budget.
// Total points are always derived from the questions.
type Quiz struct {
	ID               uuid.UUID  `json:"id"`
	CourseID         *uuid.UUID `json:"course_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Questions        []Question `json:"questions"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	Active           bool       `json:"is_active"`
	StartsAt         *time.Time `json:"starts_at,omitempty"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	AuthorID         uuid.UUID  `json:"author_id"`
	CreatedAt        time.Time  `json:"created_at"`
}

// New normalizes and validates an author-submitted draft. Positions are
// reassigned from slice order and zero point values get DefaultPoints.
func New(draft Quiz) (*Quiz, error) {
	q := draft
	q.Title = strings.TrimSpace(q.Title)
	q.Questions = make([]Question, len(draft.Questions))
	for i, dq := range draft.Questions {
		dq.Position = i
		dq.Options = append([]string(nil), dq.Options...)
		if dq.Points == 0 {
			dq.Points = DefaultPoints
		}
		q.Questions[i] = dq
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// Validate checks the definition and returns a *ValidationError carrying
// every violation, or nil.
func (q *Quiz) Validate() error {
	var vs []Violation
	add := func(field, format string, args ...any) {
		vs = append(vs, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if q.Title == "" {
		add("title", "title is required")
	}
	if q.TimeLimitMinutes <= 0 {
		add("time_limit_minutes", "time limit must be greater than 0, got %d", q.TimeLimitMinutes)
	}
	if q.StartsAt != nil && q.EndsAt != nil && !q.EndsAt.After(*q.StartsAt) {
		add("ends_at", "end of validity window must be after its start")
	}

	for i, question := range q.Questions {
		prefix := fmt.Sprintf("questions[%d]", i)
		if strings.TrimSpace(question.Prompt) == "" {
			add(prefix+".prompt", "prompt is required")
		}
		if len(question.Options) < 2 {
			add(prefix+".options", "at least 2 options are required, got %d", len(question.Options))
		}
		if question.CorrectOption < 0 || question.CorrectOption >= len(question.Options) {
			add(prefix+".correct_option", "correct option %d is not a valid index into %d options",
				question.CorrectOption, len(question.Options))
		}
		if question.Points <= 0 {
			add(prefix+".points", "points must be positive, got %d", question.Points)
		}
	}

	if len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}
	return nil
}

// TotalPoints is the sum of every question's point value.
func (q *Quiz) TotalPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// TimeLimitSeconds is the countdown start for an attempt.
func (q *Quiz) TimeLimitSeconds() int {
	return q.TimeLimitMinutes * 60
}

// CheckAvailable reports whether test-takers may start the quiz at now.
func (q *Quiz) CheckAvailable(now time.Time) error {
	if !q.Active {
		return fmt.Errorf("%w: quiz is inactive", ErrNotAvailable)
	}
	if q.StartsAt != nil && now.Before(*q.StartsAt) {
		return fmt.Errorf("%w: opens at %s", ErrNotAvailable, q.StartsAt.Format(time.RFC3339))
	}
	if q.EndsAt != nil && now.After(*q.EndsAt) {
		return fmt.Errorf("%w: closed at %s", ErrNotAvailable, q.EndsAt.Format(time.RFC3339))
	}
	return nil
}

// QuestionForStudent is a question without its answer key.
type QuestionForStudent struct {
	Position int      `json:"position"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
	Points   int      `json:"points"`
}

// StudentView is the quiz as delivered to test-takers.
type StudentView struct {
	ID               uuid.UUID            `json:"id"`
	CourseID         *uuid.UUID           `json:"course_id,omitempty"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	TimeLimitMinutes int                  `json:"time_limit_minutes"`
	TotalPoints      int                  `json:"total_points"`
	StartsAt         *time.Time           `json:"starts_at,omitempty"`
	EndsAt           *time.Time           `json:"ends_at,omitempty"`
	Questions        []QuestionForStudent `json:"questions"`
}

// ForStudent strips correct options and explanations.
func (q *Quiz) ForStudent() StudentView {
	qs := make([]QuestionForStudent, len(q.Questions))
	for i, question := range q.Questions {
		qs[i] = QuestionForStudent{
			Position: question.Position,
			Prompt:   question.Prompt,
			Options:  question.Options,
			Points:   question.Points,
		}
	}
	return StudentView{
		ID:               q.ID,
		CourseID:         q.CourseID,
		Title:            q.Title,
		Description:      q.Description,
		TimeLimitMinutes: q.TimeLimitMinutes,
		TotalPoints:      q.TotalPoints(),
		StartsAt:         q.StartsAt,
		EndsAt:           q.EndsAt,
		Questions:        qs,
	}
}

// MarshalJSON adds the derived total_points and question_count.
func (q Quiz) MarshalJSON() ([]byte, error) {
	type plain Quiz
	return json.Marshal(struct {
		plain
		TotalPoints   int `json:"total_points"`
		QuestionCount int `json:"question_count"`
	}{
		plain:         plain(q),
		TotalPoints:   q.TotalPoints(),
		QuestionCount: len(q.Questions),
	})
}
