package worker

import (
	"context"

	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type answerStore interface {
	UpsertAnswers(ctx context.Context, events []model.AnswerEvent) error
	UpsertAnswer(ctx context.Context, e model.AnswerEvent) error
}

// NewAnswerWorker consumes persist_answers_queue and upserts answers into attempt_answers.
func NewAnswerWorker(store answerStore, rdb *redis.Client, log zerolog.Logger) *QueueWorker[model.AnswerEvent] {
	w := newQueueWorker[model.AnswerEvent](rdb, config.WorkerKey.PersistAnswersQueue,
		sinkFuncs[model.AnswerEvent]{batch: store.UpsertAnswers, one: store.UpsertAnswer},
		log, "answer_worker")
	w.prepare = latestAnswers
	return w
}

type answerKey struct {
	attemptID  uuid.UUID
	questionID uuid.UUID
}

// latestAnswers keeps the newest answer per question so one batch never
// touches the same row twice. First-seen order is preserved.
func latestAnswers(events []model.AnswerEvent) []model.AnswerEvent {
	index := make(map[answerKey]int, len(events))
	out := make([]model.AnswerEvent, 0, len(events))
	for _, e := range events {
		k := answerKey{e.AttemptID, e.QuestionID}
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, e)
			continue
		}
		if !e.AnsweredAt.Before(out[i].AnsweredAt) {
			out[i] = e
		}
	}
	return out
}
