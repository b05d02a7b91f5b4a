package assessment

import (
	"context"
	"time"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
)

// DataSource is the exam backend as the session sees it. It is satisfied by the
// in-process service adapter and by the REST client.
type DataSource interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
	StartAttempt(ctx context.Context, examID uuid.UUID) (uuid.UUID, error)
	SubmitAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selectedOption int) error
	CompleteAttempt(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason) (*model.AttemptResult, error)
	GetAttempt(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error)
}

// IntegrityReporter is implemented by data sources that record guard-triggered
// submissions.
type IntegrityReporter interface {
	ReportIntegrityEvent(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason, at time.Time) error
}

// QuestionOrderRecorder is implemented by data sources that store the order in
// which a retried attempt presented its questions.
type QuestionOrderRecorder interface {
	RecordQuestionOrder(ctx context.Context, attemptID uuid.UUID, order []uuid.UUID) error
}

// LocalStore is the ephemeral storage of local attempts.
type LocalStore interface {
	SaveAnswer(ctx context.Context, localID, questionID uuid.UUID, selectedOption int) error
	SaveResult(ctx context.Context, result *model.AttemptResult) error
}

// attemptBackend is the single interface the session writes through; both
// modes satisfy it so the session never branches on mode.
type attemptBackend interface {
	RecordAnswer(ctx context.Context, questionID uuid.UUID, selectedOption int) error
	Finish(ctx context.Context, result *model.AttemptResult) error
	ReportViolation(ctx context.Context, reason model.SubmitReason, at time.Time) error
}

type persistedBackend struct {
	ds        DataSource
	attemptID uuid.UUID
	onServer  func(local, server *model.AttemptResult)
}

func (b *persistedBackend) RecordAnswer(ctx context.Context, questionID uuid.UUID, selectedOption int) error {
	return b.ds.SubmitAnswer(ctx, b.attemptID, questionID, selectedOption)
}

func (b *persistedBackend) Finish(ctx context.Context, result *model.AttemptResult) error {
	server, err := b.ds.CompleteAttempt(ctx, b.attemptID, result.SubmitReason)
	if err != nil {
		return err
	}
	if b.onServer != nil && server != nil {
		b.onServer(result, server)
	}
	return nil
}

func (b *persistedBackend) ReportViolation(ctx context.Context, reason model.SubmitReason, at time.Time) error {
	if r, ok := b.ds.(IntegrityReporter); ok {
		return r.ReportIntegrityEvent(ctx, b.attemptID, reason, at)
	}
	return nil
}

// localBackend skips the backend entirely. A nil store keeps everything in memory.
type localBackend struct {
	store   LocalStore
	localID uuid.UUID
}

func (b *localBackend) RecordAnswer(ctx context.Context, questionID uuid.UUID, selectedOption int) error {
	if b.store == nil {
		return nil
	}
	return b.store.SaveAnswer(ctx, b.localID, questionID, selectedOption)
}

func (b *localBackend) Finish(ctx context.Context, result *model.AttemptResult) error {
	if b.store == nil {
		return nil
	}
	return b.store.SaveResult(ctx, result)
}

func (b *localBackend) ReportViolation(context.Context, model.SubmitReason, time.Time) error {
	return nil
}
