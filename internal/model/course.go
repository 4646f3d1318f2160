package model

import (
	"time"

	"github.com/google/uuid"
)

// CourseLevel is the difficulty tier of a course.
type CourseLevel string

const (
	LevelBeginner     CourseLevel = "beginner"
	LevelIntermediate CourseLevel = "intermediate"
	LevelAdvanced     CourseLevel = "advanced"
)

// Lesson is one ordered unit of a course.
type Lesson struct {
	ID              uuid.UUID `json:"id"`
	CourseID        uuid.UUID `json:"course_id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	VideoURL        string    `json:"video_url,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	OrderNum        int       `json:"order_num"`
}

// Course is a published or draft course in the catalog.
type Course struct {
	ID             uuid.UUID   `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Thumbnail      string      `json:"thumbnail,omitempty"`
	Category       string      `json:"category"`
	Level          CourseLevel `json:"level"`
	PriceCents     int         `json:"price_cents"`
	Published      bool        `json:"is_published"`
	InstructorID   uuid.UUID   `json:"instructor_id"`
	InstructorName string      `json:"instructor_name,omitempty"`
	EnrolledCount  int         `json:"enrolled_count"`
	Lessons        []Lesson    `json:"lessons,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TotalDurationMinutes sums lesson durations.
func (c *Course) TotalDurationMinutes() int {
	total := 0
	for _, l := range c.Lessons {
		total += l.DurationMinutes
	}
	return total
}

// CourseFilter narrows the public catalog listing.
type CourseFilter struct {
	Category string
	Level    CourseLevel
}

// CreateLessonRequest is one lesson inside CreateCourseRequest.
type CreateLessonRequest struct {
	Title           string `json:"title" binding:"required,min=2,max=255"`
	Content         string `json:"content" binding:"required"`
	VideoURL        string `json:"video_url" binding:"omitempty,url"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=0,max=600"`
}

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	Title       string                `json:"title" binding:"required,min=3,max=255"`
	Description string                `json:"description" binding:"required"`
	Thumbnail   string                `json:"thumbnail" binding:"omitempty,url"`
	Category    string                `json:"category" binding:"required,max=100"`
	Level       CourseLevel           `json:"level" binding:"omitempty,oneof=beginner intermediate advanced"`
	PriceCents  int                   `json:"price_cents" binding:"omitempty,min=0"`
	Published   bool                  `json:"is_published"`
	Lessons     []CreateLessonRequest `json:"lessons" binding:"omitempty,dive"`
}

// Enrollment links a student to a course.
type Enrollment struct {
	CourseID   uuid.UUID `json:"course_id"`
	UserID     uuid.UUID `json:"user_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}
