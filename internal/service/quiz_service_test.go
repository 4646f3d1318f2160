package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/quiz"
	"github.com/stemsi/shikkha-backend/internal/service"
)

// memQuizStore backs both QuizStore and QuizCatalog.
type memQuizStore struct {
	memCatalog
	invalidated []uuid.UUID
}

func (m *memQuizStore) Create(_ context.Context, q *quiz.Quiz) error {
	q.ID = uuid.New()
	m.memCatalog[q.ID] = q
	return nil
}

func (m *memQuizStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	q, ok := m.memCatalog[id]
	if !ok {
		return quiz.ErrNotFound
	}
	q.Active = active
	return nil
}

func (m *memQuizStore) Invalidate(_ context.Context, id uuid.UUID) error {
	m.invalidated = append(m.invalidated, id)
	return nil
}

func (m *memQuizStore) Warm(_ context.Context) (int, error) {
	return len(m.memCatalog), nil
}

type courseSet map[uuid.UUID]bool

func (c courseSet) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return c[id], nil
}

func intPtr(v int) *int { return &v }

func validQuizRequest() model.CreateQuizRequest {
	return model.CreateQuizRequest{
		Title: "Photosynthesis",
		Questions: []model.CreateQuestionRequest{
			{Prompt: "Main pigment?", Options: []string{"Chlorophyll", "Keratin"}, CorrectOption: 0},
			{Prompt: "Gas released?", Options: []string{"CO2", "O2", "N2"}, CorrectOption: 1, Points: 3},
		},
	}
}

func TestQuizServiceCreateDefaults(t *testing.T) {
	store := &memQuizStore{memCatalog: memCatalog{}}
	svc := service.NewQuizService(store, store, courseSet{}, zerolog.Nop())
	author := uuid.New()

	q, err := svc.Create(context.Background(), author, model.RoleTeacher, validQuizRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if q.TimeLimitMinutes != service.DefaultTimeLimitMinutes || !q.Active {
		t.Fatalf("defaults not applied: limit=%d active=%v", q.TimeLimitMinutes, q.Active)
	}
	if q.TotalPoints() != 4 {
		t.Fatalf("expected total 4 (1 default + 3), got %d", q.TotalPoints())
	}
	if q.AuthorID != author || q.Questions[1].Position != 1 {
		t.Fatalf("unexpected stored quiz %+v", q)
	}
}

func TestQuizServiceCreateRejects(t *testing.T) {
	store := &memQuizStore{memCatalog: memCatalog{}}
	known := uuid.New()
	svc := service.NewQuizService(store, store, courseSet{known: true}, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.Create(ctx, uuid.New(), model.RoleStudent, validQuizRequest()); !errors.Is(err, service.ErrNotQuizAuthor) {
		t.Fatalf("expected ErrNotQuizAuthor for student, got %v", err)
	}

	bad := validQuizRequest()
	bad.Title = "  "
	bad.TimeLimitMinutes = intPtr(0)
	bad.Questions[0].Options = []string{"only"}
	_, err := svc.Create(ctx, uuid.New(), model.RoleTeacher, bad)
	var verr *quiz.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := verr.Fields()
	for _, f := range []string{"title", "time_limit_minutes", "questions[0].options"} {
		if _, ok := fields[f]; !ok {
			t.Fatalf("missing violation for %s in %v", f, fields)
		}
	}

	unknown := uuid.New()
	req := validQuizRequest()
	req.CourseID = &unknown
	if _, err := svc.Create(ctx, uuid.New(), model.RoleTeacher, req); !errors.Is(err, service.ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
	req.CourseID = &known
	if _, err := svc.Create(ctx, uuid.New(), model.RoleAdmin, req); err != nil {
		t.Fatalf("create with known course: %v", err)
	}
	if len(store.memCatalog) != 1 {
		t.Fatalf("rejected drafts were stored: %d quizzes", len(store.memCatalog))
	}
}

func TestQuizServiceSetActive(t *testing.T) {
	store := &memQuizStore{memCatalog: memCatalog{}}
	svc := service.NewQuizService(store, store, courseSet{}, zerolog.Nop())
	ctx := context.Background()
	author := uuid.New()

	q, err := svc.Create(ctx, author, model.RoleTeacher, validQuizRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.SetActive(ctx, q.ID, uuid.New(), model.RoleTeacher, false); !errors.Is(err, service.ErrNotQuizAuthor) {
		t.Fatalf("expected ErrNotQuizAuthor for other teacher, got %v", err)
	}
	if err := svc.SetActive(ctx, q.ID, author, model.RoleTeacher, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if store.memCatalog[q.ID].Active {
		t.Fatal("quiz still active")
	}
	if len(store.invalidated) != 1 || store.invalidated[0] != q.ID {
		t.Fatalf("cache not invalidated: %v", store.invalidated)
	}
	if err := svc.SetActive(ctx, q.ID, uuid.New(), model.RoleAdmin, true); err != nil {
		t.Fatalf("admin set active: %v", err)
	}
	if err := svc.SetActive(ctx, uuid.New(), author, model.RoleAdmin, true); !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQuizServiceListsHideAnswerKey(t *testing.T) {
	now := time.Now()
	past := now.Add(-2 * time.Hour)
	ended := now.Add(-time.Hour)
	course := uuid.New()

	open := threeQuestionQuiz(t)
	open.CourseID = &course
	expired := threeQuestionQuiz(t)
	expired.StartsAt, expired.EndsAt = &past, &ended
	inactive := threeQuestionQuiz(t)
	inactive.Active = false

	store := &memQuizStore{memCatalog: memCatalog{open.ID: open, expired.ID: expired, inactive.ID: inactive}}
	svc := service.NewQuizService(store, store, courseSet{}, zerolog.Nop())

	avail, err := svc.ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(avail) != 1 || avail[0].ID != open.ID {
		t.Fatalf("expected only the open quiz, got %+v", avail)
	}
	if avail[0].TotalPoints != 4 || len(avail[0].Questions) != 3 {
		t.Fatalf("unexpected student view %+v", avail[0])
	}
}
