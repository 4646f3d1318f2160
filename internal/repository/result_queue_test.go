package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/shikkha-backend/internal/config"
	"github.com/stemsi/shikkha-backend/internal/quiz"
)

func TestResultQueueSave(t *testing.T) {
	mr, client := newTestRedis(t)
	q := NewResultQueue(client)
	ctx := context.Background()

	res := quiz.Result{
		AttemptID:      uuid.New(),
		QuizID:         uuid.New(),
		ActorID:        uuid.New(),
		AchievedPoints: 3,
		TotalPoints:    4,
		Percentage:     75,
		Reason:         quiz.ReasonExpired,
		SubmittedAt:    time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := q.Save(ctx, res); err != nil {
		t.Fatalf("save: %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 queued, got %d (%v)", n, err)
	}

	items, err := mr.List(config.WorkerKey.PersistResultsQueue)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got quiz.Result
	if err := json.Unmarshal([]byte(items[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.AttemptID != res.AttemptID || got.Percentage != 75 || got.Reason != quiz.ReasonExpired {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestResultQueueSaveFailsWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	q := NewResultQueue(client)
	mr.Close()

	if err := q.Save(context.Background(), quiz.Result{AttemptID: uuid.New()}); err == nil {
		t.Fatal("expected error with redis down")
	}
}
