package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// The writes below are used by the persistence workers. Each batch write has a
// single-row twin the workers fall back to when the batch is rejected.

// UpsertAnswers writes a batch of answers. Events must be unique per
// (attempt, question); an older answer never overwrites a newer one.
func (r *AttemptRepository) UpsertAnswers(ctx context.Context, events []model.AnswerEvent) error {
	n := len(events)
	attemptIDs := make([]uuid.UUID, n)
	questionIDs := make([]uuid.UUID, n)
	options := make([]int32, n)
	answeredAt := make([]time.Time, n)
	for i, e := range events {
		attemptIDs[i] = e.AttemptID
		questionIDs[i] = e.QuestionID
		options[i] = int32(e.SelectedOption)
		answeredAt[i] = e.AnsweredAt
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, selected_option, updated_at)
		 SELECT * FROM UNNEST($1::uuid[], $2::uuid[], $3::int[], $4::timestamptz[])
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET selected_option = EXCLUDED.selected_option, updated_at = EXCLUDED.updated_at
		 WHERE attempt_answers.updated_at <= EXCLUDED.updated_at`,
		attemptIDs, questionIDs, options, answeredAt,
	)
	return err
}

// UpsertAnswer writes one answer.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, e model.AnswerEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, selected_option, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET selected_option = EXCLUDED.selected_option, updated_at = EXCLUDED.updated_at
		 WHERE attempt_answers.updated_at <= EXCLUDED.updated_at`,
		e.AttemptID, e.QuestionID, e.SelectedOption, e.AnsweredAt,
	)
	return err
}

// CompleteAttempts finalizes a batch of attempts with a single UNNEST update.
// Attempts that are already completed keep their first result.
func (r *AttemptRepository) CompleteAttempts(ctx context.Context, events []model.ResultEvent) error {
	n := len(events)
	ids := make([]uuid.UUID, n)
	scores := make([]int32, n)
	passed := make([]bool, n)
	reasons := make([]string, n)
	finishedAt := make([]time.Time, n)
	for i, e := range events {
		ids[i] = e.AttemptID
		scores[i] = int32(e.Score)
		passed[i] = e.IsPassed
		reasons[i] = string(e.SubmitReason)
		finishedAt[i] = e.FinishedAt
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE exam_attempts AS a
		SET status = 'COMPLETED',
		    score = t.score,
		    is_passed = t.is_passed,
		    submit_reason = t.submit_reason,
		    finished_at = t.finished_at
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::bool[],
			$4::text[],
			$5::timestamptz[]
		) AS t (id, score, is_passed, submit_reason, finished_at)
		WHERE a.id = t.id
		  AND a.status <> 'COMPLETED'`,
		ids, scores, passed, reasons, finishedAt,
	)
	return err
}

// CompleteAttempt finalizes one attempt.
func (r *AttemptRepository) CompleteAttempt(ctx context.Context, e model.ResultEvent) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = 'COMPLETED', score = $2, is_passed = $3, submit_reason = $4, finished_at = $5
		 WHERE id = $1 AND status <> 'COMPLETED'`,
		e.AttemptID, e.Score, e.IsPassed, string(e.SubmitReason), e.FinishedAt,
	)
	return err
}

// InsertIntegrityEvents bulk-loads integrity events with COPY.
func (r *AttemptRepository) InsertIntegrityEvents(ctx context.Context, events []model.IntegrityEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.AttemptID, e.LearnerID, string(e.Reason), e.RecordedAt})
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"attempt_integrity_events"},
		[]string{"attempt_id", "learner_id", "reason", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// InsertIntegrityEvent writes one integrity event.
func (r *AttemptRepository) InsertIntegrityEvent(ctx context.Context, e model.IntegrityEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_integrity_events (attempt_id, learner_id, reason, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		e.AttemptID, e.LearnerID, string(e.Reason), e.RecordedAt,
	)
	return err
}

// SetQuestionOrders stores the presented question order of several attempts.
func (r *AttemptRepository) SetQuestionOrders(ctx context.Context, events []model.QuestionOrderEvent) error {
	ids := make([]uuid.UUID, len(events))
	orders := make([]string, len(events))
	for i, e := range events {
		order, err := json.Marshal(e.Order)
		if err != nil {
			return err
		}
		ids[i] = e.AttemptID
		orders[i] = string(order)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE exam_attempts AS a
		SET question_order = t.qo
		FROM UNNEST($1::uuid[], $2::jsonb[]) AS t (id, qo)
		WHERE a.id = t.id`,
		ids, orders,
	)
	return err
}

// SetQuestionOrder stores one attempt's question order.
func (r *AttemptRepository) SetQuestionOrder(ctx context.Context, e model.QuestionOrderEvent) error {
	order, err := json.Marshal(e.Order)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE exam_attempts SET question_order = $2::jsonb WHERE id = $1`,
		e.AttemptID, string(order),
	)
	return err
}
