package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the server-side states of an exam attempt.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// AttemptMode tells whether an attempt is backed by a server-registered record.
type AttemptMode string

const (
	AttemptModePersisted AttemptMode = "PERSISTED"
	AttemptModeLocal     AttemptMode = "LOCAL"
)

// SubmitReason records what ended an attempt.
type SubmitReason string

const (
	SubmitReasonManual           SubmitReason = "manual"
	SubmitReasonTimeout          SubmitReason = "timeout"
	SubmitReasonFullscreenExit   SubmitReason = "fullscreen_exit"
	SubmitReasonVisibilityHidden SubmitReason = "visibility_hidden"
	SubmitReasonAbandoned        SubmitReason = "abandoned"
)

// IsIntegrityViolation reports whether the reason came from the fullscreen/visibility guard.
func (r SubmitReason) IsIntegrityViolation() bool {
	return r == SubmitReasonFullscreenExit || r == SubmitReasonVisibilityHidden
}

// ExamAttempt is the stored attempt row.
type ExamAttempt struct {
	ID            uuid.UUID     `json:"id"`
	ExamID        uuid.UUID     `json:"exam_id"`
	LearnerID     int           `json:"learner_id"`
	Status        AttemptStatus `json:"status"`
	Score         *int          `json:"score,omitempty"`
	IsPassed      *bool         `json:"is_passed,omitempty"`
	SubmitReason  *SubmitReason `json:"submit_reason,omitempty"`
	QuestionOrder []uuid.UUID   `json:"question_order,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// AnswerRecord is the graded outcome of one question.
type AnswerRecord struct {
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption *int      `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
}

// AttemptResult is the immutable outcome of a submitted attempt. Local and persisted
// attempts produce the same shape; AttemptID is the local id for local attempts.
type AttemptResult struct {
	AttemptID      uuid.UUID      `json:"attempt_id"`
	ExamID         uuid.UUID      `json:"exam_id"`
	Mode           AttemptMode    `json:"mode"`
	Score          int            `json:"score"`
	IsPassed       bool           `json:"is_passed"`
	PassingScore   int            `json:"passing_score"`
	CorrectCount   int            `json:"correct_count"`
	TotalQuestions int            `json:"total_questions"`
	Answers        []AnswerRecord `json:"answers"`
	SubmitReason   SubmitReason   `json:"submit_reason,omitempty"`
	SubmittedAt    time.Time      `json:"submitted_at"`
}

// StartAttemptRequest is the payload for registering a new attempt.
type StartAttemptRequest struct {
	ExamID uuid.UUID `json:"exam_id" binding:"required"`
}

// StartAttemptResponse carries the id of the registered attempt.
type StartAttemptResponse struct {
	AttemptID uuid.UUID `json:"attempt_id"`
}

// SubmitAnswerRequest is the payload for persisting one selected answer.
type SubmitAnswerRequest struct {
	AttemptID      uuid.UUID `json:"attempt_id" binding:"required"`
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	SelectedOption *int      `json:"selected_option" binding:"required,min=0"`
}

// CompleteAttemptRequest optionally tells the server why the attempt ended.
type CompleteAttemptRequest struct {
	Reason SubmitReason `json:"reason" binding:"omitempty,oneof=manual timeout fullscreen_exit visibility_hidden abandoned"`
}

// IntegrityEventRequest reports a guard-triggered submission.
type IntegrityEventRequest struct {
	Reason     SubmitReason `json:"reason" binding:"required,oneof=fullscreen_exit visibility_hidden"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// QuestionOrderRequest records the presented question order of an attempt.
type QuestionOrderRequest struct {
	QuestionIDs []uuid.UUID `json:"question_ids" binding:"required,min=1"`
}
