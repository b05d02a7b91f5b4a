package assessment

import (
	"math"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
)

// Score grades answers against the exam. Unanswered questions count as
// incorrect. The percentage is rounded to the nearest integer and is 0 for an
// exam without questions. Score has no side effects; identity fields of the
// result (attempt id, mode, reason, time) are left for the caller to fill.
func Score(exam *model.ExamDefinition, answers map[uuid.UUID]int) *model.AttemptResult {
	records := make([]model.AnswerRecord, 0, len(exam.Questions))
	correct := 0

	for _, q := range exam.Questions {
		rec := model.AnswerRecord{QuestionID: q.ID}
		if opt, ok := answers[q.ID]; ok {
			selected := opt
			rec.SelectedOption = &selected
			rec.IsCorrect = opt >= 0 && opt < len(q.Options) && q.Options[opt].IsCorrect
		}
		if rec.IsCorrect {
			correct++
		}
		records = append(records, rec)
	}

	total := len(exam.Questions)
	score := 0
	if total > 0 {
		score = int(math.Round(100 * float64(correct) / float64(total)))
	}

	return &model.AttemptResult{
		ExamID:         exam.ID,
		Score:          score,
		IsPassed:       score >= exam.PassingScore,
		PassingScore:   exam.PassingScore,
		CorrectCount:   correct,
		TotalQuestions: total,
		Answers:        records,
	}
}
