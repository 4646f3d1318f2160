package quiz_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/shikkha-backend/internal/quiz"
)

func sampleQuiz(t *testing.T) *quiz.Quiz {
	t.Helper()
	q, err := quiz.New(quiz.Quiz{
		ID:               uuid.New(),
		Title:            "  Fractions  ",
		TimeLimitMinutes: 1,
		Active:           true,
		Questions: []quiz.Question{
			{Prompt: "1/2 + 1/2", Options: []string{"1", "2"}, CorrectOption: 0, Points: 1},
			{Prompt: "1/4 + 1/4", Options: []string{"1/2", "1/8", "1"}, CorrectOption: 0, Points: 1},
			{Prompt: "2/3 of 3", Options: []string{"1", "2"}, CorrectOption: 1, Points: 2},
		},
	})
	if err != nil {
		t.Fatalf("new quiz: %v", err)
	}
	return q
}

func TestNewNormalizesDraft(t *testing.T) {
	q, err := quiz.New(quiz.Quiz{
		Title:            " Intro ",
		TimeLimitMinutes: 30,
		Questions: []quiz.Question{
			{Position: 7, Prompt: "a", Options: []string{"x", "y"}},
			{Position: 3, Prompt: "b", Options: []string{"x", "y"}, Points: 4},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if q.Title != "Intro" {
		t.Fatalf("expected trimmed title, got %q", q.Title)
	}
	for i, question := range q.Questions {
		if question.Position != i {
			t.Fatalf("question %d has position %d", i, question.Position)
		}
	}
	if q.Questions[0].Points != quiz.DefaultPoints {
		t.Fatalf("expected default points, got %d", q.Questions[0].Points)
	}
	if q.TotalPoints() != 5 {
		t.Fatalf("expected total 5, got %d", q.TotalPoints())
	}
}

func TestTotalPointsTracksQuestions(t *testing.T) {
	q := sampleQuiz(t)
	if q.TotalPoints() != 4 {
		t.Fatalf("expected 4, got %d", q.TotalPoints())
	}
	q.Questions = append(q.Questions, quiz.Question{Prompt: "x", Options: []string{"a", "b"}, Points: 3})
	if q.TotalPoints() != 7 {
		t.Fatalf("expected 7 after append, got %d", q.TotalPoints())
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	_, err := quiz.New(quiz.Quiz{
		Title:            "",
		TimeLimitMinutes: 0,
		Questions: []quiz.Question{
			{Prompt: "", Options: []string{"only"}, CorrectOption: 3, Points: -1},
		},
	})

	var verr *quiz.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := verr.Fields()
	for _, f := range []string{
		"title",
		"time_limit_minutes",
		"questions[0].prompt",
		"questions[0].options",
		"questions[0].correct_option",
		"questions[0].points",
	} {
		if _, ok := fields[f]; !ok {
			t.Errorf("missing violation for %s in %v", f, fields)
		}
	}
}

func TestValidateWindowOrder(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := quiz.New(quiz.Quiz{
		Title:            "t",
		TimeLimitMinutes: 5,
		StartsAt:         &start,
		EndsAt:           &end,
	})
	var verr *quiz.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields()["ends_at"]; !ok {
		t.Fatalf("expected ends_at violation, got %v", verr.Fields())
	}
}

func TestCheckAvailable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	cases := []struct {
		name    string
		q       quiz.Quiz
		wantErr bool
	}{
		{"active without window", quiz.Quiz{Active: true}, false},
		{"inactive", quiz.Quiz{Active: false}, true},
		{"not yet open", quiz.Quiz{Active: true, StartsAt: &after}, true},
		{"closed", quiz.Quiz{Active: true, EndsAt: &before}, true},
		{"inside window", quiz.Quiz{Active: true, StartsAt: &before, EndsAt: &after}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.CheckAvailable(now)
			if tc.wantErr && !errors.Is(err, quiz.ErrNotAvailable) {
				t.Fatalf("expected ErrNotAvailable, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestStudentViewHidesAnswerKey(t *testing.T) {
	q := sampleQuiz(t)
	q.Questions[0].Explanation = "halves"

	raw, err := json.Marshal(q.ForStudent())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	questions := generic["questions"].([]any)
	first := questions[0].(map[string]any)
	if _, ok := first["correct_option"]; ok {
		t.Fatal("student view leaked correct_option")
	}
	if _, ok := first["explanation"]; ok {
		t.Fatal("student view leaked explanation")
	}
	if generic["total_points"].(float64) != 4 {
		t.Fatalf("expected total_points 4, got %v", generic["total_points"])
	}
}

func TestQuizJSONCarriesDerivedTotals(t *testing.T) {
	q := sampleQuiz(t)
	raw, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		TotalPoints   int `json:"total_points"`
		QuestionCount int `json:"question_count"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.TotalPoints != 4 || out.QuestionCount != 3 {
		t.Fatalf("unexpected derived fields: %+v", out)
	}
}
