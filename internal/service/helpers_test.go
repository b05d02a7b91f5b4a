package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/drivetheory/theory-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

// memExams is an in-memory examStore.
type memExams struct {
	mu     sync.Mutex
	defs   map[uuid.UUID]*model.ExamDefinition
	status map[uuid.UUID]model.ExamStatus
	loads  int
}

func newMemExams() *memExams {
	return &memExams{
		defs:   make(map[uuid.UUID]*model.ExamDefinition),
		status: make(map[uuid.UUID]model.ExamStatus),
	}
}

func (m *memExams) ListPublished(_ context.Context) ([]model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Exam
	for id, def := range m.defs {
		if m.status[id] == model.ExamStatusPublished {
			out = append(out, model.Exam{ID: id, Title: def.Title, Status: model.ExamStatusPublished})
		}
	}
	return out, nil
}

func (m *memExams) GetDefinition(_ context.Context, id uuid.UUID) (*model.ExamDefinition, model.ExamStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	def, ok := m.defs[id]
	if !ok {
		return nil, "", repository.ErrExamNotFound
	}
	return def.Clone(), m.status[id], nil
}

func (m *memExams) SaveDefinition(_ context.Context, def *model.ExamDefinition, status model.ExamStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.ID] = def.Clone()
	m.status[def.ID] = status
	return nil
}

func (m *memExams) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// memAttempts is an in-memory attemptStore.
type memAttempts struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.ExamAttempt
	answers  map[uuid.UUID]map[uuid.UUID]int
}

func newMemAttempts() *memAttempts {
	return &memAttempts{
		attempts: make(map[uuid.UUID]*model.ExamAttempt),
		answers:  make(map[uuid.UUID]map[uuid.UUID]int),
	}
}

func (m *memAttempts) Create(_ context.Context, a *model.ExamAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.Status = model.AttemptStatusInProgress
	a.StartedAt = time.Now()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, repository.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAttempts) ListByLearner(_ context.Context, learnerID int) ([]model.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExamAttempt
	for _, a := range m.attempts {
		if a.LearnerID == learnerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAttempts) GetAnswers(_ context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]int)
	for k, v := range m.answers[attemptID] {
		out[k] = v
	}
	return out, nil
}

// signsExam is a published two-question exam; both correct answers are option 0.
func signsExam() *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:              uuid.New(),
		Title:           "Road signs",
		DurationMinutes: 10,
		PassingScore:    60,
		Questions: []model.Question{
			{ID: uuid.New(), Prompt: "Red octagon", Options: []model.AnswerOption{{Text: "Stop", IsCorrect: true}, {Text: "Go"}}},
			{ID: uuid.New(), Prompt: "Blue circle", Options: []model.AnswerOption{{Text: "Mandatory", IsCorrect: true}, {Text: "Warning"}, {Text: "Prohibited"}}},
		},
	}
}

type fixture struct {
	rdb      *redis.Client
	mr       *miniredis.Miniredis
	examRepo *memExams
	attRepo  *memAttempts
	exams    *ExamService
	attempts *AttemptService
	exam     *model.ExamDefinition
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rdb, mr := newTestRedis(t)
	f := &fixture{rdb: rdb, mr: mr, examRepo: newMemExams(), attRepo: newMemAttempts(), exam: signsExam()}
	f.exams = NewExamService(f.examRepo, rdb, time.Hour, zerolog.Nop())
	f.attempts = NewAttemptService(f.attRepo, f.exams, rdb, zerolog.Nop())
	_ = f.examRepo.SaveDefinition(context.Background(), f.exam, model.ExamStatusPublished)
	return f
}
