package model

import (
	"time"

	"github.com/google/uuid"
)

// CreateQuestionRequest is one question inside CreateQuizRequest.
// Structural rules (option count, answer index) are checked by quiz.New so
// every violation is reported together.
type CreateQuestionRequest struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Points        int      `json:"points"`
	Explanation   string   `json:"explanation"`
}

// CreateQuizRequest is the payload for authoring a quiz.
type CreateQuizRequest struct {
	Title            string                  `json:"title" binding:"max=255"`
	Description      string                  `json:"description" binding:"max=2000"`
	CourseID         *uuid.UUID              `json:"course_id"`
	TimeLimitMinutes *int                    `json:"time_limit_minutes"`
	Active           *bool                   `json:"is_active"`
	StartsAt         *time.Time              `json:"starts_at"`
	EndsAt           *time.Time              `json:"ends_at"`
	Questions        []CreateQuestionRequest `json:"questions" binding:"required"`
}

// SetQuizActiveRequest toggles a quiz's availability.
type SetQuizActiveRequest struct {
	Active *bool `json:"is_active" binding:"required"`
}

// SubmitQuizRequest is a one-shot submission: the full answer map and the
// elapsed time. Keys are question positions.
type SubmitQuizRequest struct {
	AttemptID      *uuid.UUID  `json:"attempt_id"`
	Answers        map[int]int `json:"answers"`
	ElapsedSeconds int         `json:"elapsed_seconds" binding:"min=0"`
}

// NavigateRequest moves the attempt cursor. A zero or missing delta
// returns the current question.
type NavigateRequest struct {
	Delta int `json:"delta"`
}

// AnswerRequest records the selected option at the path's position.
type AnswerRequest struct {
	Option *int `json:"option" binding:"required"`
}
