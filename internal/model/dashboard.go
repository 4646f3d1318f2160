package model

import (
	"time"

	"github.com/google/uuid"
)

// UserStats summarizes a student's learning progress.
type UserStats struct {
	EnrolledCourses  int `json:"enrolled_courses"`
	CompletedQuizzes int `json:"completed_quizzes"`
	AverageScore     int `json:"average_score"`
	BestScore        int `json:"best_score"`
	StudyTimeMinutes int `json:"study_time_minutes"`
}

// QuizHistoryEntry is one persisted result joined with its quiz title.
type QuizHistoryEntry struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	QuizID           uuid.UUID `json:"quiz_id"`
	Title            string    `json:"title"`
	AchievedPoints   int       `json:"score"`
	TotalPoints      int       `json:"total_points"`
	Percentage       int       `json:"percentage"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	Reason           string    `json:"reason"`
	CompletedAt      time.Time `json:"completed_at"`
}

// ActivityType classifies dashboard activity entries.
type ActivityType string

const (
	ActivityCourseEnrolled ActivityType = "course_enrolled"
	ActivityQuizCompleted  ActivityType = "quiz_completed"
)

// Activity is one entry in the recent-activity feed.
type Activity struct {
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	Timestamp   time.Time    `json:"timestamp"`
}
