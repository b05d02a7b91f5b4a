package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/drivetheory/theory-backend/internal/response"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response.Response{Data: data})
}

func writeError(w http.ResponseWriter, status int, code response.ErrCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response.Response{
		Error: &response.ErrorBody{Code: code, Message: response.GetMessage(code)},
	})
}

func TestClient_LoginSetsBearerToken(t *testing.T) {
	var seenAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "green-light" {
			writeError(w, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		writeEnvelope(w, http.StatusOK, model.LoginResponse{Token: "tok-1", Learner: model.Learner{ID: 3, Email: req.Email}})
	})
	mux.HandleFunc("GET /api/v1/exams", func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		writeEnvelope(w, http.StatusOK, map[string]any{"exams": []model.Exam{{Title: "Signs"}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL+"/api/v1/", "")
	ctx := context.Background()

	_, err := c.Login(ctx, "rin@example.com", "red-light")
	require.Error(t, err)
	assert.True(t, IsCode(err, response.ErrInvalidCredentials))

	login, err := c.Login(ctx, "rin@example.com", "green-light")
	require.NoError(t, err)
	assert.Equal(t, 3, login.Learner.ID)

	exams, err := c.ListExams(ctx)
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, "Signs", exams[0].Title)
	assert.Equal(t, "Bearer tok-1", seenAuth)
}

func TestClient_AttemptCalls(t *testing.T) {
	examID, attemptID, questionID := uuid.New(), uuid.New(), uuid.New()
	var (
		answered  model.SubmitAnswerRequest
		completed model.CompleteAttemptRequest
		integrity model.IntegrityEventRequest
		order     model.QuestionOrderRequest
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /exam-attempts/start", func(w http.ResponseWriter, r *http.Request) {
		var req model.StartAttemptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, examID, req.ExamID)
		writeEnvelope(w, http.StatusCreated, model.StartAttemptResponse{AttemptID: attemptID})
	})
	mux.HandleFunc("POST /exam-attempts/submit-answer", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&answered))
		writeEnvelope(w, http.StatusOK, map[string]bool{"saved": true})
	})
	mux.HandleFunc("PUT /exam-attempts/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&completed))
		writeEnvelope(w, http.StatusOK, model.AttemptResult{AttemptID: attemptID, Score: 100, IsPassed: true})
	})
	mux.HandleFunc("GET /exam-attempts/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, response.ErrAttemptNotFound)
	})
	mux.HandleFunc("POST /exam-attempts/{id}/integrity-events", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&integrity))
		writeEnvelope(w, http.StatusAccepted, nil)
	})
	mux.HandleFunc("PUT /exam-attempts/{id}/question-order", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		writeEnvelope(w, http.StatusAccepted, nil)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "tok")
	ctx := context.Background()

	id, err := c.StartAttempt(ctx, examID)
	require.NoError(t, err)
	assert.Equal(t, attemptID, id)

	require.NoError(t, c.SubmitAnswer(ctx, attemptID, questionID, 2))
	assert.Equal(t, questionID, answered.QuestionID)
	require.NotNil(t, answered.SelectedOption)
	assert.Equal(t, 2, *answered.SelectedOption)

	result, err := c.CompleteAttempt(ctx, attemptID, model.SubmitReasonTimeout)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, model.SubmitReasonTimeout, completed.Reason)

	_, err = c.GetAttempt(ctx, attemptID)
	assert.True(t, IsCode(err, response.ErrAttemptNotFound))

	at := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.ReportIntegrityEvent(ctx, attemptID, model.SubmitReasonVisibilityHidden, at))
	assert.Equal(t, model.SubmitReasonVisibilityHidden, integrity.Reason)
	assert.True(t, at.Equal(integrity.RecordedAt))

	q2 := uuid.New()
	require.NoError(t, c.RecordQuestionOrder(ctx, attemptID, []uuid.UUID{q2, questionID}))
	assert.Equal(t, []uuid.UUID{q2, questionID}, order.QuestionIDs)
}

func TestClient_DecodesBrotliBodies(t *testing.T) {
	examID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "br", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		_ = json.NewEncoder(bw).Encode(response.Response{Data: model.ExamDefinition{ID: examID, Title: "Roadside"}})
		_ = bw.Close()
	}))
	defer srv.Close()

	def, err := New(srv.URL, "").GetExam(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, examID, def.ID)
}

func TestClient_NonJSONErrorKeepsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").GetExam(context.Background(), uuid.New())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}
