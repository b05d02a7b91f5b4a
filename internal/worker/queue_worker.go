package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis

	shutdownFlushTimeout = 5 * time.Second
	redisErrorBackoff    = 3 * time.Second
)

// Sink writes queue items to PostgreSQL. WriteBatch is the fast path; when it
// fails every item is retried through WriteOne.
type Sink[T any] interface {
	WriteBatch(ctx context.Context, items []T) error
	WriteOne(ctx context.Context, item T) error
}

// QueueWorker drains one Redis list into a Sink in batches of up to
// BatchSize items or BatchTimeout, whichever comes first. Items that cannot be
// written are pushed back to the queue.
type QueueWorker[T any] struct {
	rdb   *redis.Client
	queue string
	sink  Sink[T]
	log   zerolog.Logger

	// prepare runs before each flush, for example to collapse duplicates.
	prepare func(items []T) []T
	// afterFlush runs once a batch has been written.
	afterFlush func(ctx context.Context, items []T)

	requeueBackoff time.Duration
}

func newQueueWorker[T any](rdb *redis.Client, queue string, sink Sink[T], log zerolog.Logger, component string) *QueueWorker[T] {
	return &QueueWorker[T]{
		rdb:            rdb,
		queue:          queue,
		sink:           sink,
		log:            log.With().Str("component", component).Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

// Start runs the worker loop until ctx is cancelled, then flushes what is
// buffered. Call in a goroutine.
func (w *QueueWorker[T]) Start(ctx context.Context) {
	w.log.Info().Str("queue", w.queue).Msg("Worker started")

	buffer := make([]T, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, backing off")
			sleepCtx(ctx, redisErrorBackoff)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, item)
	}
}

// flushSafe tries the batch write, then row-by-row, then requeues what is left.
func (w *QueueWorker[T]) flushSafe(ctx context.Context, batch []T) {
	if w.prepare != nil {
		batch = w.prepare(batch)
	}
	if len(batch) == 0 {
		return
	}

	err := w.sink.WriteBatch(ctx, batch)
	if err == nil {
		if w.afterFlush != nil {
			w.afterFlush(ctx, batch)
		}
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Batch write failed, attempting row-by-row recovery")

	var (
		written []T
		failed  []T
	)
	for _, item := range batch {
		if err := w.sink.WriteOne(ctx, item); err != nil {
			w.log.Error().Err(err).Msg("Row write failed, requeueing")
			failed = append(failed, item)
			continue
		}
		written = append(written, item)
	}

	if len(written) > 0 && w.afterFlush != nil {
		w.afterFlush(ctx, written)
	}
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *QueueWorker[T]) requeue(ctx context.Context, items []T) {
	pipe := w.rdb.Pipeline()
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, w.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}

	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	sleepCtx(ctx, w.requeueBackoff)
}

func (w *QueueWorker[T]) shutdown(buffer []T) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(ctx, buffer)
	}
	w.log.Info().Msg("Worker stopped")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
