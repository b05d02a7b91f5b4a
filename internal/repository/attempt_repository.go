package repository

import (
	"context"
	"errors"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAttemptNotFound is returned when no attempt matches the requested id.
var ErrAttemptNotFound = errors.New("attempt not found")

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, learner_id, status, score, is_passed, submit_reason,
	question_order, started_at, finished_at`

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.LearnerID, &a.Status, &a.Score, &a.IsPassed,
		&a.SubmitReason, &a.QuestionOrder, &a.StartedAt, &a.FinishedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create registers a new in-progress attempt and fills in its id and start time.
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	a.Status = model.AttemptStatusInProgress
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (exam_id, learner_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, started_at`,
		a.ExamID, a.LearnerID, a.Status,
	).Scan(&a.ID, &a.StartedAt)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return a, nil
}

// ListByLearner returns a learner's attempts, newest first.
func (r *AttemptRepository) ListByLearner(ctx context.Context, learnerID int) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE learner_id = $1
		 ORDER BY started_at DESC`, learnerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]model.ExamAttempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// GetAnswers returns the persisted answers of an attempt (question id -> option index).
func (r *AttemptRepository) GetAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected_option FROM attempt_answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			qID uuid.UUID
			opt int
		)
		if err := rows.Scan(&qID, &opt); err != nil {
			return nil, err
		}
		answers[qID] = opt
	}
	return answers, rows.Err()
}
