package assessment

import (
	"context"
	"math/rand/v2"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
)

// RetryDefinition derives the definition for a new attempt of the same exam:
// the questions are uniformly permuted, duration and passing score are kept.
// The source definition is not modified. A nil rng uses the global source.
func RetryDefinition(exam *model.ExamDefinition, rng *rand.Rand) *model.ExamDefinition {
	next := exam.Clone()
	shuffle(next.Questions, rng)
	return next
}

// shuffle is an in-place Fisher–Yates shuffle.
func shuffle[T any](items []T, rng *rand.Rand) {
	for i := len(items) - 1; i > 0; i-- {
		var j int
		if rng != nil {
			j = rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		items[i], items[j] = items[j], items[i]
	}
}

// Retry begins a new session over a shuffled copy of exam. Answers start empty.
// For persisted attempts the presented order is recorded when the data source
// supports it; a failure to record it does not prevent the retry.
func Retry(ctx context.Context, ds DataSource, exam *model.ExamDefinition, rng *rand.Rand, opts BeginOptions) (*Session, error) {
	opts.Exam = RetryDefinition(exam, rng)

	s, err := Begin(ctx, ds, exam.ID, opts)
	if err != nil {
		return nil, err
	}

	if s.mode.IsPersisted() {
		if rec, ok := ds.(QuestionOrderRecorder); ok {
			order := make([]uuid.UUID, len(s.exam.Questions))
			for i, q := range s.exam.Questions {
				order[i] = q.ID
			}
			if err := rec.RecordQuestionOrder(ctx, s.mode.AttemptID(), order); err != nil {
				s.log.Warn().Err(err).Msg("Failed to record retry question order")
			}
		}
	}
	return s, nil
}
