package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrExamNotFound is returned when no exam matches the requested id.
var ErrExamNotFound = errors.New("exam not found")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam row by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, passing_score, status, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.PassingScore, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListPublished returns all published exams, newest first.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, duration_minutes, passing_score, status, created_at, updated_at
		 FROM exams
		 WHERE status = $1
		 ORDER BY created_at DESC`, model.ExamStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := make([]model.Exam, 0)
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.PassingScore, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// GetDefinition loads an exam with its questions and options in presentation order.
func (r *ExamRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, model.ExamStatus, error) {
	exam, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	def := &model.ExamDefinition{
		ID:              exam.ID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		PassingScore:    exam.PassingScore,
		Questions:       make([]model.Question, 0),
	}

	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.prompt, COALESCE(q.image_url, ''), o.text, o.is_correct
		 FROM questions q
		 JOIN answer_options o ON o.question_id = q.id
		 WHERE q.exam_id = $1
		 ORDER BY q.position, o.position`, id,
	)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			qID      uuid.UUID
			prompt   string
			imageURL string
			opt      model.AnswerOption
		)
		if err := rows.Scan(&qID, &prompt, &imageURL, &opt.Text, &opt.IsCorrect); err != nil {
			return nil, "", err
		}

		n := len(def.Questions)
		if n == 0 || def.Questions[n-1].ID != qID {
			def.Questions = append(def.Questions, model.Question{ID: qID, Prompt: prompt, ImageURL: imageURL})
			n++
		}
		def.Questions[n-1].Options = append(def.Questions[n-1].Options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	return def, exam.Status, nil
}

// SaveDefinition inserts an exam with its questions and options in one transaction.
// An existing exam with the same id is replaced.
func (r *ExamRepository) SaveDefinition(ctx context.Context, def *model.ExamDefinition, status model.ExamStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM exams WHERE id = $1`, def.ID); err != nil {
		return fmt.Errorf("delete previous exam: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO exams (id, title, duration_minutes, passing_score, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		def.ID, def.Title, def.DurationMinutes, def.PassingScore, status,
	)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	batch := &pgx.Batch{}
	for qi, q := range def.Questions {
		var imageURL *string
		if q.ImageURL != "" {
			imageURL = &q.ImageURL
		}
		batch.Queue(
			`INSERT INTO questions (id, exam_id, position, prompt, image_url) VALUES ($1, $2, $3, $4, $5)`,
			q.ID, def.ID, qi, q.Prompt, imageURL,
		)
		for oi, o := range q.Options {
			batch.Queue(
				`INSERT INTO answer_options (question_id, position, text, is_correct) VALUES ($1, $2, $3, $4)`,
				q.ID, oi, o.Text, o.IsCorrect,
			)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}
