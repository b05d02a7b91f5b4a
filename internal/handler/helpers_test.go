package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/drivetheory/theory-backend/internal/middleware"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/drivetheory/theory-backend/internal/repository"
	"github.com/drivetheory/theory-backend/internal/service"
	"github.com/drivetheory/theory-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type memExams struct {
	mu     sync.Mutex
	defs   map[uuid.UUID]*model.ExamDefinition
	status map[uuid.UUID]model.ExamStatus
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

type memAttempts struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.ExamAttempt
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

func (m *memAttempts) GetAnswers(context.Context, uuid.UUID) (map[uuid.UUID]int, error) {
	return map[uuid.UUID]int{}, nil
}

// roadExam has two questions; option 0 is correct in both.
func roadExam() *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:              uuid.New(),
		Title:           "Right of way",
		DurationMinutes: 5,
		PassingScore:    50,
		Questions: []model.Question{
			{ID: uuid.New(), Prompt: "Unmarked junction", Options: []model.AnswerOption{{Text: "Yield to the right", IsCorrect: true}, {Text: "Go first"}}},
			{ID: uuid.New(), Prompt: "Roundabout", Options: []model.AnswerOption{{Text: "Yield to traffic inside", IsCorrect: true}, {Text: "Enter at speed"}}},
		},
	}
}

type testEnv struct {
	rdb      *redis.Client
	mr       *miniredis.Miniredis
	exams    *service.ExamService
	attempts *service.AttemptService
	local    *repository.LocalAttemptStore
	exam     *model.ExamDefinition
	examRepo *memExams
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		rdb:      rdb,
		mr:       mr,
		exam:     roadExam(),
		examRepo: &memExams{defs: map[uuid.UUID]*model.ExamDefinition{}, status: map[uuid.UUID]model.ExamStatus{}},
	}
	env.exams = service.NewExamService(env.examRepo, rdb, time.Hour, zerolog.Nop())
	env.attempts = service.NewAttemptService(&memAttempts{attempts: map[uuid.UUID]*model.ExamAttempt{}}, env.exams, rdb, zerolog.Nop())
	env.local = repository.NewLocalAttemptStore(rdb, time.Hour)
	require.NoError(t, env.examRepo.SaveDefinition(context.Background(), env.exam, model.ExamStatusPublished))
	return env
}

// asLearner stands in for the JWT middleware.
func asLearner(id int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{LearnerID: id})
		c.Next()
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}
