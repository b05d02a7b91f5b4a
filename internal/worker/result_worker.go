package worker

import (
	"context"

	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type resultStore interface {
	CompleteAttempts(ctx context.Context, events []model.ResultEvent) error
	CompleteAttempt(ctx context.Context, e model.ResultEvent) error
}

// NewResultWorker consumes persist_results_queue, finalizes exam_attempts rows
// and then drops the attempts' autosave hashes.
func NewResultWorker(store resultStore, rdb *redis.Client, log zerolog.Logger) *QueueWorker[model.ResultEvent] {
	w := newQueueWorker[model.ResultEvent](rdb, config.WorkerKey.PersistResultsQueue,
		sinkFuncs[model.ResultEvent]{batch: store.CompleteAttempts, one: store.CompleteAttempt},
		log, "result_worker")
	w.afterFlush = func(ctx context.Context, events []model.ResultEvent) {
		clearAutosavedAnswers(ctx, rdb, events)
	}
	return w
}

func clearAutosavedAnswers(ctx context.Context, rdb *redis.Client, events []model.ResultEvent) {
	pipe := rdb.Pipeline()
	for _, e := range events {
		pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(e.AttemptID.String()))
	}
	_, _ = pipe.Exec(ctx)
}
