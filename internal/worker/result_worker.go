package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/config"
	"github.com/stemsi/shikkha-backend/internal/metrics"
	"github.com/stemsi/shikkha-backend/internal/quiz"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultStore is the durable home of scored results.
type ResultStore interface {
	SaveBatch(ctx context.Context, results []*quiz.Result) error
	Save(ctx context.Context, res *quiz.Result) error
}

// ResultWorker drains the persist queue into PostgreSQL in batches.
type ResultWorker struct {
	store        ResultStore
	rdb          *redis.Client
	log          zerolog.Logger
	batchTimeout time.Duration
}

// ResultWorkerOption customizes a ResultWorker.
type ResultWorkerOption func(*ResultWorker)

// WithBatchTimeout overrides how long a partial batch may wait before flushing.
func WithBatchTimeout(d time.Duration) ResultWorkerOption {
	return func(w *ResultWorker) { w.batchTimeout = d }
}

func NewResultWorker(store ResultStore, rdb *redis.Client, log zerolog.Logger, opts ...ResultWorkerOption) *ResultWorker {
	w := &ResultWorker{
		store:        store,
		rdb:          rdb,
		log:          log.With().Str("component", "result_worker").Logger(),
		batchTimeout: ResultBatchTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ─── Worker loop with batching ─────────────────────────────────────────

// Start blocks until ctx is cancelled, then flushes what it holds.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*quiz.Result, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested, flushing remaining batch")
			w.flushSafe(context.Background(), batch)
			return
		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					// Back off so a dead Redis does not spin the loop.
					time.Sleep(ResultPollTimeout)
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var res quiz.Result
			if err := json.Unmarshal([]byte(item[1]), &res); err != nil {
				w.log.Error().Err(err).Msg("Invalid result payload dropped")
				continue
			}
			batch = append(batch, &res)
		}
	}
}

// ─── Flush with single-row fallback ────────────────────────────────────

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*quiz.Result) {
	if len(batch) == 0 {
		return
	}

	err := w.store.SaveBatch(ctx, batch)
	if err == nil {
		metrics.ResultsPersisted.WithLabelValues("batch").Add(float64(len(batch)))
		w.log.Debug().Int("count", len(batch)).Msg("Result batch persisted")
		return
	}

	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Batch insert failed, falling back to single rows")
	for _, res := range batch {
		if err := w.store.Save(ctx, res); err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", res.AttemptID.String()).
				Msg("Single insert failed, requeueing")
			w.requeue(ctx, res)
			continue
		}
		metrics.ResultsPersisted.WithLabelValues("single").Inc()
	}
}

func (w *ResultWorker) requeue(ctx context.Context, res *quiz.Result) {
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("attempt_id", res.AttemptID.String()).Msg("Requeue failed, result lost")
		return
	}
	metrics.ResultsPersisted.WithLabelValues("requeued").Inc()
}
