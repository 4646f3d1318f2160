package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/repository"
	"github.com/stemsi/shikkha-backend/internal/response"
)

var ErrAlreadyEnrolled = errors.New("already enrolled in this course")

// CourseService handles the course catalog and enrollment.
type CourseService struct {
	courseRepo *repository.CourseRepository
	log        zerolog.Logger
}

// NewCourseService creates a new CourseService.
func NewCourseService(courseRepo *repository.CourseRepository, log zerolog.Logger) *CourseService {
	return &CourseService{
		courseRepo: courseRepo,
		log:        log.With().Str("component", "course_service").Logger(),
	}
}

// ListPublished returns one page of the public catalog.
func (s *CourseService) ListPublished(ctx context.Context, filter model.CourseFilter, page, perPage int) ([]model.Course, *response.Pagination, error) {
	page, perPage = response.NormalizePage(page, perPage)
	courses, total, err := s.courseRepo.ListPublished(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	return courses, response.NewPagination(page, perPage, total), nil
}

// GetByID returns a course with its lessons.
func (s *CourseService) GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	c, err := s.courseRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCourseNotFound
	}
	return c, err
}

// Create stores a course authored by instructorID.
func (s *CourseService) Create(ctx context.Context, instructorID uuid.UUID, req model.CreateCourseRequest) (*model.Course, error) {
	c := &model.Course{
		Title:        req.Title,
		Description:  req.Description,
		Thumbnail:    req.Thumbnail,
		Category:     req.Category,
		Level:        req.Level,
		PriceCents:   req.PriceCents,
		Published:    req.Published,
		InstructorID: instructorID,
		Lessons:      make([]model.Lesson, len(req.Lessons)),
	}
	if c.Level == "" {
		c.Level = model.LevelBeginner
	}
	for i, l := range req.Lessons {
		c.Lessons[i] = model.Lesson{
			Title:           l.Title,
			Content:         l.Content,
			VideoURL:        l.VideoURL,
			DurationMinutes: l.DurationMinutes,
		}
	}

	if err := s.courseRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info().Str("course_id", c.ID.String()).Int("lessons", len(c.Lessons)).Msg("Course created")
	return c, nil
}

// Enroll adds the user to a course. Enrolling twice is rejected.
func (s *CourseService) Enroll(ctx context.Context, courseID, userID uuid.UUID) (*model.Enrollment, error) {
	ok, err := s.courseRepo.Exists(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCourseNotFound
	}

	e, err := s.courseRepo.Enroll(ctx, courseID, userID)
	if errors.Is(err, repository.ErrAlreadyEnrolled) {
		return nil, ErrAlreadyEnrolled
	}
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("course_id", courseID.String()).Str("user_id", userID.String()).Msg("User enrolled")
	return e, nil
}
