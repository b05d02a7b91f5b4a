package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/handler"
	"github.com/drivetheory/theory-backend/internal/response"
	"github.com/drivetheory/theory-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{GinMode: gin.TestMode, JWTSecret: "router-secret", JWTExpiry: time.Hour, BcryptCost: 4}
	auth := service.NewAuthService(cfg, rdb, nil)
	log := zerolog.Nop()

	handlers := &Handlers{
		Auth:    handler.NewAuthHandler(auth),
		Exam:    handler.NewExamHandler(nil),
		Attempt: handler.NewAttemptHandler(nil, nil, log),
		WS:      handler.NewWSHandler(nil, nil, nil, log, nil),
		System:  handler.NewSystemHandler(okPinger{}, rdb, log),
	}
	return SetupRouter(ctx, auth, handlers, cfg, log)
}

func TestSetupRouter_RegistersLearnerRoutes(t *testing.T) {
	r := newTestRouter(t)

	registered := make(map[string]bool)
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"GET /health",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"GET /api/v1/auth/me",
		"GET /api/v1/exams",
		"GET /api/v1/exams/:id",
		"GET /api/v1/exam-attempts",
		"POST /api/v1/exam-attempts/start",
		"POST /api/v1/exam-attempts/submit-answer",
		"GET /api/v1/exam-attempts/:id",
		"PUT /api/v1/exam-attempts/:id/complete",
		"POST /api/v1/exam-attempts/:id/integrity-events",
		"PUT /api/v1/exam-attempts/:id/question-order",
		"GET /api/v1/local-attempts/:id",
		"GET /ws/v1/exams/:exam_id/session",
	} {
		assert.True(t, registered[want], want)
	}
}

func TestSetupRouter_ProtectsLearnerRoutes(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/api/v1/exams", "/api/v1/exam-attempts", "/ws/v1/exams/x/session"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code, path)

		var body response.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.NotNil(t, body.Error)
		assert.Equal(t, response.ErrTokenRequired, body.Error.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/exams", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetupRouter_HealthAndRequestID(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-17")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace-17", w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), `"request_id":"trace-17"`)
}
