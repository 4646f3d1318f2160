package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/config"
)

// PresenceEventType names an advisory room event.
type PresenceEventType string

const (
	EventAttemptStarted   PresenceEventType = "attempt_started"
	EventAnswerSelected   PresenceEventType = "answer_selected"
	EventAttemptSubmitted PresenceEventType = "attempt_submitted"
	EventAttemptAbandoned PresenceEventType = "attempt_abandoned"
)

// PresenceEvent is broadcast to everyone watching a quiz room. It never
// carries the selected option or the answer key.
type PresenceEvent struct {
	Type          PresenceEventType `json:"type"`
	QuizID        uuid.UUID         `json:"quiz_id"`
	AttemptID     uuid.UUID         `json:"attempt_id"`
	ActorID       uuid.UUID         `json:"actor_id"`
	Position      *int              `json:"position,omitempty"`
	AnsweredCount *int              `json:"answered_count,omitempty"`
	Percentage    *int              `json:"percentage,omitempty"`
	At            time.Time         `json:"at"`
}

// Notifier receives presence events. Implementations must not block the caller
// and must not report delivery failures.
type Notifier interface {
	Notify(ctx context.Context, ev PresenceEvent)
}

// PresenceService publishes presence events on Redis PubSub, one channel per quiz.
type PresenceService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewPresenceService creates a new PresenceService.
func NewPresenceService(rdb *redis.Client, log zerolog.Logger) *PresenceService {
	return &PresenceService{
		rdb: rdb,
		log: log.With().Str("component", "presence_service").Logger(),
	}
}

// Notify publishes ev at most once. Failures are logged and dropped.
func (s *PresenceService) Notify(ctx context.Context, ev PresenceEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn().Err(err).Msg("Marshal presence event")
		return
	}

	// Detached from the request so a cancelled client does not drop the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.rdb.Publish(pubCtx, config.CacheKey.QuizRoomChannel(ev.QuizID), payload).Err(); err != nil {
		s.log.Warn().Err(err).
			Str("quiz_id", ev.QuizID.String()).
			Str("event", string(ev.Type)).
			Msg("Publish presence event failed")
	}
}

// Subscribe opens a PubSub subscription on the quiz room. Caller closes it.
func (s *PresenceService) Subscribe(ctx context.Context, quizID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.QuizRoomChannel(quizID))
}
