package service

import (
	"context"
	"time"

	"github.com/drivetheory/theory-backend/internal/assessment"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
)

// LearnerDataSource lets an Assessment Session running inside the server talk
// to the attempt services directly, on behalf of one learner. It implements
// assessment.DataSource, IntegrityReporter and QuestionOrderRecorder.
type LearnerDataSource struct {
	exams     *ExamService
	attempts  *AttemptService
	learnerID int
}

var (
	_ assessment.DataSource            = (*LearnerDataSource)(nil)
	_ assessment.IntegrityReporter     = (*LearnerDataSource)(nil)
	_ assessment.QuestionOrderRecorder = (*LearnerDataSource)(nil)
)

// NewLearnerDataSource creates a data source scoped to learnerID.
func NewLearnerDataSource(exams *ExamService, attempts *AttemptService, learnerID int) *LearnerDataSource {
	return &LearnerDataSource{exams: exams, attempts: attempts, learnerID: learnerID}
}

func (d *LearnerDataSource) GetExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	return d.exams.GetDefinition(ctx, examID)
}

func (d *LearnerDataSource) StartAttempt(ctx context.Context, examID uuid.UUID) (uuid.UUID, error) {
	return d.attempts.Start(ctx, d.learnerID, examID)
}

func (d *LearnerDataSource) SubmitAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selectedOption int) error {
	return d.attempts.SubmitAnswer(ctx, d.learnerID, attemptID, questionID, selectedOption)
}

func (d *LearnerDataSource) CompleteAttempt(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason) (*model.AttemptResult, error) {
	return d.attempts.Complete(ctx, d.learnerID, attemptID, reason)
}

func (d *LearnerDataSource) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	return d.attempts.Get(ctx, d.learnerID, attemptID)
}

func (d *LearnerDataSource) ReportIntegrityEvent(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason, at time.Time) error {
	return d.attempts.ReportIntegrityEvent(ctx, d.learnerID, attemptID, reason, at)
}

func (d *LearnerDataSource) RecordQuestionOrder(ctx context.Context, attemptID uuid.UUID, order []uuid.UUID) error {
	return d.attempts.RecordQuestionOrder(ctx, d.learnerID, attemptID, order)
}
