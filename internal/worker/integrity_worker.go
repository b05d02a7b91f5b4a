package worker

import (
	"context"

	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type integrityStore interface {
	InsertIntegrityEvents(ctx context.Context, events []model.IntegrityEvent) error
	InsertIntegrityEvent(ctx context.Context, e model.IntegrityEvent) error
}

// NewIntegrityWorker consumes persist_integrity_queue and COPYs the events
// into attempt_integrity_events.
func NewIntegrityWorker(store integrityStore, rdb *redis.Client, log zerolog.Logger) *QueueWorker[model.IntegrityEvent] {
	return newQueueWorker[model.IntegrityEvent](rdb, config.WorkerKey.PersistIntegrityQueue,
		sinkFuncs[model.IntegrityEvent]{batch: store.InsertIntegrityEvents, one: store.InsertIntegrityEvent},
		log, "integrity_worker")
}
