package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/quiz"
)

var (
	ErrNotQuizAuthor  = errors.New("not the author of this quiz")
	ErrCourseNotFound = errors.New("course not found")
)

// DefaultTimeLimitMinutes applies when an author omits the time limit.
const DefaultTimeLimitMinutes = 30

// QuizStore persists quiz definitions.
type QuizStore interface {
	Create(ctx context.Context, q *quiz.Quiz) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// QuizCatalog is the cached read path for quiz definitions.
type QuizCatalog interface {
	quiz.Catalog
	Invalidate(ctx context.Context, id uuid.UUID) error
	Warm(ctx context.Context) (int, error)
}

// CourseChecker reports whether a course exists.
type CourseChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// QuizService handles quiz authoring and listing.
type QuizService struct {
	store   QuizStore
	catalog QuizCatalog
	courses CourseChecker
	now     func() time.Time
	log     zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(store QuizStore, catalog QuizCatalog, courses CourseChecker, log zerolog.Logger) *QuizService {
	return &QuizService{
		store:   store,
		catalog: catalog,
		courses: courses,
		now:     time.Now,
		log:     log.With().Str("component", "quiz_service").Logger(),
	}
}

// Preview normalizes and validates req without storing it.
func (s *QuizService) Preview(authorID uuid.UUID, role model.Role, req model.CreateQuizRequest) (*quiz.Quiz, error) {
	if !role.CanAuthor() {
		return nil, ErrNotQuizAuthor
	}

	draft := quiz.Quiz{
		Title:            req.Title,
		Description:      req.Description,
		CourseID:         req.CourseID,
		TimeLimitMinutes: DefaultTimeLimitMinutes,
		Active:           true,
		StartsAt:         req.StartsAt,
		EndsAt:           req.EndsAt,
		AuthorID:         authorID,
		Questions:        make([]quiz.Question, len(req.Questions)),
	}
	if req.TimeLimitMinutes != nil {
		draft.TimeLimitMinutes = *req.TimeLimitMinutes
	}
	if req.Active != nil {
		draft.Active = *req.Active
	}
	for i, qr := range req.Questions {
		draft.Questions[i] = quiz.Question{
			Prompt:        qr.Prompt,
			Options:       qr.Options,
			CorrectOption: qr.CorrectOption,
			Points:        qr.Points,
			Explanation:   qr.Explanation,
		}
	}

	return quiz.New(draft)
}

// Create validates the draft and stores it. Every structural violation is
// reported together through *quiz.ValidationError.
func (s *QuizService) Create(ctx context.Context, authorID uuid.UUID, role model.Role, req model.CreateQuizRequest) (*quiz.Quiz, error) {
	q, err := s.Preview(authorID, role, req)
	if err != nil {
		return nil, err
	}

	if q.CourseID != nil {
		ok, err := s.courses.Exists(ctx, *q.CourseID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCourseNotFound
		}
	}

	if err := s.store.Create(ctx, q); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("quiz_id", q.ID.String()).
		Str("author_id", authorID.String()).
		Int("questions", len(q.Questions)).
		Int("total_points", q.TotalPoints()).
		Msg("Quiz created")
	return q, nil
}

// Get returns the full definition including the answer key.
func (s *QuizService) Get(ctx context.Context, id uuid.UUID) (*quiz.Quiz, error) {
	return s.catalog.FetchQuiz(ctx, id)
}

// GetForStudent returns the quiz without its answer key, if it can be taken now.
func (s *QuizService) GetForStudent(ctx context.Context, id uuid.UUID) (*quiz.StudentView, error) {
	q, err := s.catalog.FetchQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := q.CheckAvailable(s.now()); err != nil {
		return nil, err
	}
	v := q.ForStudent()
	return &v, nil
}

// ListByCourse returns the active quizzes of a course.
func (s *QuizService) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]quiz.StudentView, error) {
	quizzes, err := s.catalog.ListActiveQuizzes(ctx, &courseID)
	if err != nil {
		return nil, err
	}
	return studentViews(quizzes, nil), nil
}

// ListAvailable returns quizzes that can be started right now.
func (s *QuizService) ListAvailable(ctx context.Context) ([]quiz.StudentView, error) {
	quizzes, err := s.catalog.ListActiveQuizzes(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return studentViews(quizzes, func(q *quiz.Quiz) bool {
		return q.CheckAvailable(now) == nil
	}), nil
}

// SetActive toggles availability. Only the quiz author or an admin may do so.
func (s *QuizService) SetActive(ctx context.Context, id, actorID uuid.UUID, role model.Role, active bool) error {
	q, err := s.catalog.FetchQuiz(ctx, id)
	if err != nil {
		return err
	}
	if role != model.RoleAdmin && q.AuthorID != actorID {
		return ErrNotQuizAuthor
	}

	if err := s.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	if err := s.catalog.Invalidate(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", id.String()).Msg("Cache invalidation failed")
	}

	s.log.Info().Str("quiz_id", id.String()).Bool("active", active).Msg("Quiz availability changed")
	return nil
}

// Warm preloads active quiz definitions into the cache.
func (s *QuizService) Warm(ctx context.Context) (int, error) {
	return s.catalog.Warm(ctx)
}

func studentViews(quizzes []quiz.Quiz, keep func(*quiz.Quiz) bool) []quiz.StudentView {
	views := make([]quiz.StudentView, 0, len(quizzes))
	for i := range quizzes {
		q := &quizzes[i]
		if keep != nil && !keep(q) {
			continue
		}
		views = append(views, q.ForStudent())
	}
	return views
}
