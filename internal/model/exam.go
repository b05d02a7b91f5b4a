package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the stored exam row without its questions.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	PassingScore    int        `json:"passing_score"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ExamDefinition is a complete, read-only exam: settings plus the ordered question list.
// It is what learners are served and what the scorer grades against.
type ExamDefinition struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title" validate:"required,min=3,max=255"`
	DurationMinutes int        `json:"duration_minutes" validate:"required,min=1,max=480"`
	PassingScore    int        `json:"passing_score" validate:"min=0,max=100"`
	Questions       []Question `json:"questions" validate:"dive"`
}

// Question is a single multiple-choice question.
type Question struct {
	ID       uuid.UUID      `json:"id"`
	Prompt   string         `json:"prompt" validate:"required,max=2000"`
	ImageURL string         `json:"image_url,omitempty" validate:"omitempty,url"`
	Options  []AnswerOption `json:"options" validate:"required,min=2,dive"`
}

// AnswerOption is one selectable answer of a question.
type AnswerOption struct {
	Text      string `json:"text" validate:"required,max=1000"`
	IsCorrect bool   `json:"is_correct"`
}

// QuestionByID returns the question with the given id and its position.
func (e *ExamDefinition) QuestionByID(id uuid.UUID) (*Question, int, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], i, true
		}
	}
	return nil, -1, false
}

// Clone returns a deep copy so callers can reorder questions without touching the source.
func (e *ExamDefinition) Clone() *ExamDefinition {
	c := *e
	c.Questions = make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Options = append([]AnswerOption(nil), q.Options...)
		c.Questions[i] = q
	}
	return &c
}
