package worker

import (
	"context"

	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type questionOrderStore interface {
	SetQuestionOrders(ctx context.Context, events []model.QuestionOrderEvent) error
	SetQuestionOrder(ctx context.Context, e model.QuestionOrderEvent) error
}

// NewQuestionOrderWorker consumes persist_question_order_queue and stores the
// presented order of retried attempts.
func NewQuestionOrderWorker(store questionOrderStore, rdb *redis.Client, log zerolog.Logger) *QueueWorker[model.QuestionOrderEvent] {
	return newQueueWorker[model.QuestionOrderEvent](rdb, config.WorkerKey.PersistQuestionOrderQueue,
		sinkFuncs[model.QuestionOrderEvent]{batch: store.SetQuestionOrders, one: store.SetQuestionOrder},
		log, "question_order_worker")
}
