package assessment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
)

var errBackendDown = errors.New("backend down")

// fakeSource is an in-memory DataSource that counts calls and can be told to fail.
type fakeSource struct {
	mu sync.Mutex

	exam       *model.ExamDefinition
	attemptID  uuid.UUID
	failGet    bool
	failStart  bool
	failAnswer bool
	failFinish bool

	gets       int
	starts     int
	answers    []pendingAnswer
	completes  int
	reasons    []model.SubmitReason
	violations []model.SubmitReason
	orders     [][]uuid.UUID
}

func newFakeSource(exam *model.ExamDefinition) *fakeSource {
	return &fakeSource{exam: exam, attemptID: uuid.New()}
}

func (f *fakeSource) GetExam(_ context.Context, _ uuid.UUID) (*model.ExamDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failGet {
		return nil, errBackendDown
	}
	return f.exam, nil
}

func (f *fakeSource) StartAttempt(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.failStart {
		return uuid.Nil, errBackendDown
	}
	return f.attemptID, nil
}

func (f *fakeSource) SubmitAnswer(_ context.Context, _ uuid.UUID, questionID uuid.UUID, selected int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAnswer {
		return errBackendDown
	}
	f.answers = append(f.answers, pendingAnswer{questionID: questionID, option: selected})
	return nil
}

func (f *fakeSource) CompleteAttempt(_ context.Context, _ uuid.UUID, reason model.SubmitReason) (*model.AttemptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	f.reasons = append(f.reasons, reason)
	if f.failFinish {
		return nil, errBackendDown
	}
	return nil, nil
}

func (f *fakeSource) GetAttempt(_ context.Context, _ uuid.UUID) (*model.AttemptResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSource) ReportIntegrityEvent(_ context.Context, _ uuid.UUID, reason model.SubmitReason, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, reason)
	return nil
}

func (f *fakeSource) RecordQuestionOrder(_ context.Context, _ uuid.UUID, order []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	return nil
}

func (f *fakeSource) completeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completes
}

func (f *fakeSource) answerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.answers)
}

// manualTicks returns a tick source driven by the test.
func manualTicks() (TickSource, chan time.Time) {
	ch := make(chan time.Time)
	return func() (<-chan time.Time, func()) { return ch, func() {} }, ch
}

// twoQuestionExam is a one-minute exam with a passing score of 70:
// Q1 is correct at option B (1) and Q2 at option A (0).
func twoQuestionExam() *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:              uuid.New(),
		Title:           "Right of way",
		DurationMinutes: 1,
		PassingScore:    70,
		Questions: []model.Question{
			{
				ID:     uuid.New(),
				Prompt: "Who goes first at an unmarked junction?",
				Options: []model.AnswerOption{
					{Text: "The faster vehicle"},
					{Text: "Traffic from the right", IsCorrect: true},
					{Text: "Traffic from the left"},
				},
			},
			{
				ID:     uuid.New(),
				Prompt: "What does a red octagonal sign mean?",
				Options: []model.AnswerOption{
					{Text: "Stop", IsCorrect: true},
					{Text: "Give way"},
				},
			},
		},
	}
}

func questionExam(n int) *model.ExamDefinition {
	exam := &model.ExamDefinition{ID: uuid.New(), Title: "Generated", DurationMinutes: 5, PassingScore: 50}
	for i := 0; i < n; i++ {
		exam.Questions = append(exam.Questions, model.Question{
			ID:     uuid.New(),
			Prompt: "Question",
			Options: []model.AnswerOption{
				{Text: "Right", IsCorrect: true},
				{Text: "Wrong"},
			},
		})
	}
	return exam
}

type harness struct {
	session *Session
	source  *fakeSource
	relay   *SignalRelay
	ticks   chan time.Time

	mu       sync.Mutex
	results  []*model.AttemptResult
	notices  []string
	remained []int
}

func (h *harness) resultCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

func (h *harness) noticeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notices)
}

func newHarness(exam *model.ExamDefinition, local bool) (*harness, error) {
	source := newFakeSource(exam)
	ticks, ch := manualTicks()
	h := &harness{source: source, ticks: ch}
	h.relay = NewSignalRelay(func(context.Context) error { return nil })

	s, err := Begin(context.Background(), source, exam.ID, BeginOptions{
		Local:       local,
		Environment: h.relay,
		Options: Options{
			Ticks: ticks,
			Hooks: Hooks{
				OnResult: func(r *model.AttemptResult) {
					h.mu.Lock()
					h.results = append(h.results, r)
					h.mu.Unlock()
				},
				OnNotice: func(msg string) {
					h.mu.Lock()
					h.notices = append(h.notices, msg)
					h.mu.Unlock()
				},
				OnTick: func(remaining int) {
					h.mu.Lock()
					h.remained = append(h.remained, remaining)
					h.mu.Unlock()
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	h.session = s
	return h, nil
}
