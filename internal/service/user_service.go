package service

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/repository"
	"github.com/stemsi/shikkha-backend/internal/response"
)

var ErrUserNotFound = errors.New("user not found")

// activityLimit caps each source of the recent-activity feed.
const activityLimit = 10

// UserService serves the student dashboard: profile, progress and history.
type UserService struct {
	userRepo   *repository.UserRepository
	courseRepo *repository.CourseRepository
	resultRepo *repository.ResultRepository
	log        zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo *repository.UserRepository,
	courseRepo *repository.CourseRepository,
	resultRepo *repository.ResultRepository,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		userRepo:   userRepo,
		courseRepo: courseRepo,
		resultRepo: resultRepo,
		log:        log.With().Str("component", "user_service").Logger(),
	}
}

// Profile returns the user's profile.
func (s *UserService) Profile(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateProfile changes name and avatar.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req model.UpdateProfileRequest) (*model.User, error) {
	u, err := s.userRepo.UpdateProfile(ctx, userID, req.Name, req.Avatar)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Stats aggregates enrollment and quiz progress.
func (s *UserService) Stats(ctx context.Context, userID uuid.UUID) (*model.UserStats, error) {
	return s.resultRepo.Stats(ctx, userID)
}

// Courses lists the courses the user is enrolled in.
func (s *UserService) Courses(ctx context.Context, userID uuid.UUID) ([]model.Course, error) {
	return s.courseRepo.ListEnrolled(ctx, userID)
}

// QuizHistory returns one page of persisted results, newest first.
func (s *UserService) QuizHistory(ctx context.Context, userID uuid.UUID, page, perPage int) ([]model.QuizHistoryEntry, *response.Pagination, error) {
	page, perPage = response.NormalizePage(page, perPage)
	entries, total, err := s.resultRepo.History(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	return entries, response.NewPagination(page, perPage, total), nil
}

// Activity merges recent enrollments and quiz completions, newest first.
func (s *UserService) Activity(ctx context.Context, userID uuid.UUID) ([]model.Activity, error) {
	enrolled, err := s.courseRepo.RecentEnrollments(ctx, userID, activityLimit)
	if err != nil {
		return nil, err
	}
	completed, err := s.resultRepo.RecentCompletions(ctx, userID, activityLimit)
	if err != nil {
		return nil, err
	}
	return mergeActivity(activityLimit, enrolled, completed), nil
}

func mergeActivity(limit int, feeds ...[]model.Activity) []model.Activity {
	out := []model.Activity{}
	for _, f := range feeds {
		out = append(out, f...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
