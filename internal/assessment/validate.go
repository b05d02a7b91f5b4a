package assessment

import (
	"fmt"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
)

// Validate checks the invariants a session relies on: a positive duration, a
// passing score within [0,100], unique question ids, and exactly one correct
// option per question. Definitions are validated once at load time.
func Validate(exam *model.ExamDefinition) error {
	if exam == nil {
		return fmt.Errorf("%w: missing", ErrInvalidExam)
	}
	if exam.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidExam, exam.DurationMinutes)
	}
	if exam.PassingScore < 0 || exam.PassingScore > 100 {
		return fmt.Errorf("%w: passing score %d outside [0,100]", ErrInvalidExam, exam.PassingScore)
	}

	seen := make(map[uuid.UUID]struct{}, len(exam.Questions))
	for _, q := range exam.Questions {
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question %s", ErrInvalidExam, q.ID)
		}
		seen[q.ID] = struct{}{}

		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: question %s has %d", ErrInvalidQuestion, q.ID, correct)
		}
	}
	return nil
}
