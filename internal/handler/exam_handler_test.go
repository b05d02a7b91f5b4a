package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func examRouter(env *testEnv) *gin.Engine {
	h := NewExamHandler(env.exams)
	r := gin.New()
	r.GET("/api/v1/exams", h.ListExams)
	r.GET("/api/v1/exams/:id", h.GetExam)
	return r
}

func TestExamHandler_GetExam(t *testing.T) {
	env := newTestEnv(t)
	r := examRouter(env)

	code, resp := do(t, r, http.MethodGet, "/api/v1/exams/"+env.exam.ID.String(), "")
	require.Equal(t, http.StatusOK, code)
	var def model.ExamDefinition
	require.NoError(t, json.Unmarshal(resp.Data, &def))
	assert.Equal(t, env.exam.Title, def.Title)
	require.Len(t, def.Questions, 2)
	assert.True(t, def.Questions[0].Options[0].IsCorrect)

	code, resp = do(t, r, http.MethodGet, "/api/v1/exams/nope", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ID", resp.Error.Code)

	code, resp = do(t, r, http.MethodGet, "/api/v1/exams/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestExamHandler_RejectsUnpublishedAndInvalid(t *testing.T) {
	env := newTestEnv(t)
	r := examRouter(env)
	ctx := context.Background()

	draft := roadExam()
	require.NoError(t, env.examRepo.SaveDefinition(ctx, draft, model.ExamStatusDraft))
	code, resp := do(t, r, http.MethodGet, "/api/v1/exams/"+draft.ID.String(), "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "EXAM_NOT_AVAILABLE", resp.Error.Code)

	broken := roadExam()
	broken.Questions[1].Options[1].IsCorrect = true
	require.NoError(t, env.examRepo.SaveDefinition(ctx, broken, model.ExamStatusPublished))
	code, resp = do(t, r, http.MethodGet, "/api/v1/exams/"+broken.ID.String(), "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "EXAM_INVALID", resp.Error.Code)
}

func TestExamHandler_ListExams(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.examRepo.SaveDefinition(context.Background(), roadExam(), model.ExamStatusArchived))

	code, resp := do(t, examRouter(env), http.MethodGet, "/api/v1/exams", "")
	require.Equal(t, http.StatusOK, code)
	var body struct {
		Exams []model.Exam `json:"exams"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	require.Len(t, body.Exams, 1)
	assert.Equal(t, env.exam.ID, body.Exams[0].ID)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestSystemHandler_Health(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.rdb.RPush(context.Background(), config.WorkerKey.PersistAnswersQueue, "{}", "{}").Err())

	healthy := gin.New()
	healthy.GET("/health", NewSystemHandler(stubPinger{}, env.rdb, zerolog.Nop()).Health)
	code, resp := do(t, healthy, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	var report healthReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, "ok", report.Status)
	assert.EqualValues(t, 2, report.QueueAnswers)

	degraded := gin.New()
	degraded.GET("/health", NewSystemHandler(stubPinger{err: errors.New("refused")}, env.rdb, zerolog.Nop()).Health)
	code, resp = do(t, degraded, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, "unavailable", report.Postgres)
}
