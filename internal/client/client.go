// Package client talks to the theory backend's REST API. Client implements
// assessment.DataSource so a session can run outside the server process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/drivetheory/theory-backend/internal/assessment"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/drivetheory/theory-backend/internal/response"
	"github.com/google/uuid"
)

const defaultTimeout = 10 * time.Second

var (
	_ assessment.DataSource            = (*Client)(nil)
	_ assessment.IntegrityReporter     = (*Client)(nil)
	_ assessment.QuestionOrderRecorder = (*Client)(nil)
)

// APIError is a non-2xx reply from the backend.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code response.ErrCode) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client is a learner-authenticated REST client. It is safe for concurrent use
// once the token is set.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for baseURL (for example http://localhost:8080/api/v1).
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", model.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// ListExams returns the published exams.
func (c *Client) ListExams(ctx context.Context) ([]model.Exam, error) {
	var resp struct {
		Exams []model.Exam `json:"exams"`
	}
	if err := c.do(ctx, http.MethodGet, "/exams", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Exams, nil
}

func (c *Client) GetExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	var def model.ExamDefinition
	if err := c.do(ctx, http.MethodGet, "/exams/"+examID.String(), nil, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (c *Client) StartAttempt(ctx context.Context, examID uuid.UUID) (uuid.UUID, error) {
	var resp model.StartAttemptResponse
	if err := c.do(ctx, http.MethodPost, "/exam-attempts/start", model.StartAttemptRequest{ExamID: examID}, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.AttemptID, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selectedOption int) error {
	req := model.SubmitAnswerRequest{AttemptID: attemptID, QuestionID: questionID, SelectedOption: &selectedOption}
	return c.do(ctx, http.MethodPost, "/exam-attempts/submit-answer", req, nil)
}

func (c *Client) CompleteAttempt(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason) (*model.AttemptResult, error) {
	var result model.AttemptResult
	path := "/exam-attempts/" + attemptID.String() + "/complete"
	if err := c.do(ctx, http.MethodPut, path, model.CompleteAttemptRequest{Reason: reason}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	var result model.AttemptResult
	if err := c.do(ctx, http.MethodGet, "/exam-attempts/"+attemptID.String(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ReportIntegrityEvent(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason, at time.Time) error {
	path := "/exam-attempts/" + attemptID.String() + "/integrity-events"
	return c.do(ctx, http.MethodPost, path, model.IntegrityEventRequest{Reason: reason, RecordedAt: at}, nil)
}

func (c *Client) RecordQuestionOrder(ctx context.Context, attemptID uuid.UUID, order []uuid.UUID) error {
	path := "/exam-attempts/" + attemptID.String() + "/question-order"
	return c.do(ctx, http.MethodPut, path, model.QuestionOrderRequest{QuestionIDs: order}, nil)
}

// envelope mirrors response.Response with the payload left undecoded.
type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", "br")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var rc io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "br" {
		rc = brotli.NewReader(resp.Body)
	}

	var env envelope
	if err := json.NewDecoder(rc).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
