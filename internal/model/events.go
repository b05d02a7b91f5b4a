package model

import (
	"time"

	"github.com/google/uuid"
)

// The types below travel through the Redis persistence queues as JSON.

// AnswerEvent is one answer to upsert into attempt_answers.
type AnswerEvent struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption int       `json:"selected_option"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// ResultEvent finalizes an attempt row.
type ResultEvent struct {
	AttemptID    uuid.UUID    `json:"attempt_id"`
	Score        int          `json:"score"`
	IsPassed     bool         `json:"is_passed"`
	SubmitReason SubmitReason `json:"submit_reason"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// IntegrityEvent records a fullscreen exit or page hide that ended an attempt.
type IntegrityEvent struct {
	AttemptID  uuid.UUID    `json:"attempt_id"`
	LearnerID  int          `json:"learner_id"`
	Reason     SubmitReason `json:"reason"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// QuestionOrderEvent stores the order a retry presented its questions in.
type QuestionOrderEvent struct {
	AttemptID uuid.UUID   `json:"attempt_id"`
	Order     []uuid.UUID `json:"order"`
}
