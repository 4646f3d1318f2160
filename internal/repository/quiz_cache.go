package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/config"
	"github.com/stemsi/shikkha-backend/internal/quiz"
	"golang.org/x/sync/singleflight"
)

// QuizLoader is the durable source behind QuizCache.
type QuizLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*quiz.Quiz, error)
	ListActive(ctx context.Context, courseID *uuid.UUID) ([]quiz.Quiz, error)
}

// QuizCache serves quiz definitions from Redis and falls back to the loader
// on a miss. Concurrent misses for the same quiz share one load.
type QuizCache struct {
	rdb    *redis.Client
	loader QuizLoader
	ttl    time.Duration
	log    zerolog.Logger

	sf    singleflight.Group
	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewQuizCache creates a QuizCache. A non-positive ttl stores entries without expiry.
func NewQuizCache(rdb *redis.Client, loader QuizLoader, ttl time.Duration, log zerolog.Logger) *QuizCache {
	return &QuizCache{
		rdb:    rdb,
		loader: loader,
		ttl:    ttl,
		log:    log.With().Str("component", "quiz_cache").Logger(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchQuiz returns the quiz definition, loading and caching it on a miss.
// A Redis failure degrades to a direct load rather than an error.
func (c *QuizCache) FetchQuiz(ctx context.Context, id uuid.UUID) (*quiz.Quiz, error) {
	if q, ok := c.get(ctx, id); ok {
		return q, nil
	}

	v, err, _ := c.sf.Do(id.String(), func() (interface{}, error) {
		if q, ok := c.get(ctx, id); ok {
			return q, nil
		}
		q, err := c.loader.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		c.set(ctx, q)
		return q, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers may hold on to the quiz; hand each its own copy.
	shared := v.(*quiz.Quiz)
	cp := *shared
	cp.Questions = append([]quiz.Question(nil), shared.Questions...)
	return &cp, nil
}

// ListActiveQuizzes reads straight from the loader; listings are not cached.
func (c *QuizCache) ListActiveQuizzes(ctx context.Context, courseID *uuid.UUID) ([]quiz.Quiz, error) {
	return c.loader.ListActive(ctx, courseID)
}

// Invalidate drops a cached definition after it changes.
func (c *QuizCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.QuizDefinitionKey(id)).Err()
}

// Warm loads every active quiz into Redis. Used at startup before serving traffic.
func (c *QuizCache) Warm(ctx context.Context) (int, error) {
	quizzes, err := c.loader.ListActive(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("list active quizzes: %w", err)
	}
	for i := range quizzes {
		c.set(ctx, &quizzes[i])
	}
	return len(quizzes), nil
}

func (c *QuizCache) get(ctx context.Context, id uuid.UUID) (*quiz.Quiz, bool) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.QuizDefinitionKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("quiz_id", id.String()).Msg("Cache read failed")
		}
		return nil, false
	}
	var q quiz.Quiz
	if err := json.Unmarshal(raw, &q); err != nil {
		c.log.Warn().Err(err).Str("quiz_id", id.String()).Msg("Corrupt cache entry")
		return nil, false
	}
	return &q, true
}

func (c *QuizCache) set(ctx context.Context, q *quiz.Quiz) {
	raw, err := json.Marshal(q)
	if err != nil {
		c.log.Warn().Err(err).Str("quiz_id", q.ID.String()).Msg("Marshal quiz for cache")
		return
	}
	if err := c.rdb.Set(ctx, config.CacheKey.QuizDefinitionKey(q.ID), raw, c.ttlWithJitter()).Err(); err != nil {
		c.log.Warn().Err(err).Str("quiz_id", q.ID.String()).Msg("Cache write failed")
	}
}

// ttlWithJitter spreads expiries so a warm cache does not expire all at once.
func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
