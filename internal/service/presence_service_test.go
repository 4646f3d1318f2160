package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/service"
)

func TestPresencePublishesToQuizRoom(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	presence := service.NewPresenceService(rdb, zerolog.Nop())
	ctx := context.Background()
	quizID := uuid.New()

	sub := presence.Subscribe(ctx, quizID)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	answered := 2
	presence.Notify(ctx, service.PresenceEvent{
		Type:          service.EventAnswerSelected,
		QuizID:        quizID,
		AttemptID:     uuid.New(),
		ActorID:       uuid.New(),
		AnsweredCount: &answered,
		At:            time.Now(),
	})
	// Other rooms stay silent.
	presence.Notify(ctx, service.PresenceEvent{Type: service.EventAttemptStarted, QuizID: uuid.New()})

	select {
	case msg := <-sub.Channel():
		var ev service.PresenceEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Type != service.EventAnswerSelected || ev.QuizID != quizID {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.AnsweredCount == nil || *ev.AnsweredCount != 2 {
			t.Fatalf("answered count lost: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no presence event received")
	}

	select {
	case msg := <-sub.Channel():
		t.Fatalf("received event for another room: %s", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPresenceNotifySwallowsRedisFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	presence := service.NewPresenceService(rdb, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		presence.Notify(context.Background(), service.PresenceEvent{Type: service.EventAttemptStarted, QuizID: uuid.New()})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Notify blocked on an unreachable Redis")
	}
}
