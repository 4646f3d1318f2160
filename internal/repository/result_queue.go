package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/shikkha-backend/internal/config"
	"github.com/stemsi/shikkha-backend/internal/quiz"
)

// ResultQueue hands scored results to the persistence worker through a
// Redis list. A successful Save means the result is durable in Redis;
// the worker owns retries into PostgreSQL.
type ResultQueue struct {
	rdb *redis.Client
	key string
}

// NewResultQueue creates a queue on config.WorkerKey.PersistResultsQueue.
func NewResultQueue(rdb *redis.Client) *ResultQueue {
	return &ResultQueue{rdb: rdb, key: config.WorkerKey.PersistResultsQueue}
}

// Save enqueues the result.
func (q *ResultQueue) Save(ctx context.Context, res quiz.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("enqueue result: %w", err)
	}
	return nil
}

// Len reports the number of results waiting for the worker.
func (q *ResultQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
