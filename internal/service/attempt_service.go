package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/drivetheory/theory-backend/internal/assessment"
	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/drivetheory/theory-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Attempt errors.
var (
	ErrAttemptNotFound   = repository.ErrAttemptNotFound
	ErrAttemptCompleted  = errors.New("attempt already completed")
	ErrAttemptInProgress = errors.New("attempt still in progress")
	ErrUnknownQuestion   = assessment.ErrUnknownQuestion
	ErrInvalidOption     = assessment.ErrInvalidOption
)

// attemptStateTTL bounds how long an attempt's Redis state outlives its exam.
const attemptStateTTL = 24 * time.Hour

// attemptStore is the slice of AttemptRepository the service depends on.
type attemptStore interface {
	Create(ctx context.Context, a *model.ExamAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	ListByLearner(ctx context.Context, learnerID int) ([]model.ExamAttempt, error)
	GetAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error)
}

// definitionSource resolves exam definitions; ExamService satisfies it.
type definitionSource interface {
	GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
}

// AttemptService is the server side of the attempt REST endpoints. Answers and
// results are buffered in Redis and persisted to PostgreSQL by the workers.
type AttemptService struct {
	attempts attemptStore
	exams    definitionSource
	rdb      *redis.Client
	log      zerolog.Logger
	now      func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts attemptStore, exams definitionSource, rdb *redis.Client, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		exams:    exams,
		rdb:      rdb,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}
}

type attemptMeta struct {
	learnerID int
	examID    uuid.UUID
	status    model.AttemptStatus
}

// Start registers a new in-progress attempt for a published exam.
func (s *AttemptService) Start(ctx context.Context, learnerID int, examID uuid.UUID) (uuid.UUID, error) {
	def, err := s.exams.GetDefinition(ctx, examID)
	if err != nil {
		return uuid.Nil, err
	}

	attempt := &model.ExamAttempt{ExamID: def.ID, LearnerID: learnerID}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return uuid.Nil, fmt.Errorf("create attempt: %w", err)
	}

	meta := attemptMeta{learnerID: learnerID, examID: def.ID, status: model.AttemptStatusInProgress}
	if err := s.cacheMeta(ctx, attempt.ID, meta); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache attempt state")
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", def.ID.String()).
		Int("learner_id", learnerID).
		Msg("Attempt started")
	return attempt.ID, nil
}

// SubmitAnswer records one answer in the autosave hash and queues it for PostgreSQL.
func (s *AttemptService) SubmitAnswer(ctx context.Context, learnerID int, attemptID, questionID uuid.UUID, option int) error {
	meta, err := s.ownedMeta(ctx, learnerID, attemptID)
	if err != nil {
		return err
	}
	if meta.status == model.AttemptStatusCompleted {
		return ErrAttemptCompleted
	}

	def, err := s.exams.GetDefinition(ctx, meta.examID)
	if err != nil {
		return err
	}
	q, _, ok := def.QuestionByID(questionID)
	if !ok {
		return ErrUnknownQuestion
	}
	if option < 0 || option >= len(q.Options) {
		return ErrInvalidOption
	}

	payload, err := json.Marshal(model.AnswerEvent{
		AttemptID:      attemptID,
		QuestionID:     questionID,
		SelectedOption: option,
		AnsweredAt:     s.now().UTC(),
	})
	if err != nil {
		return err
	}

	answersKey := config.CacheKey.AttemptAnswersKey(attemptID.String())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, answersKey, questionID.String(), option)
	pipe.Expire(ctx, answersKey, attemptStateTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("autosave answer: %w", err)
	}
	return nil
}

// Complete scores the attempt server-side and queues the result. Completing an
// already completed attempt returns the first result.
func (s *AttemptService) Complete(ctx context.Context, learnerID int, attemptID uuid.UUID, reason model.SubmitReason) (*model.AttemptResult, error) {
	meta, err := s.ownedMeta(ctx, learnerID, attemptID)
	if err != nil {
		return nil, err
	}
	if cached, err := s.cachedResult(ctx, attemptID); err != nil || cached != nil {
		return cached, err
	}
	if meta.status == model.AttemptStatusCompleted {
		return s.storedResult(ctx, attemptID)
	}

	def, err := s.exams.GetDefinition(ctx, meta.examID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = model.SubmitReasonManual
	}

	result := assessment.Score(def, answers)
	result.AttemptID = attemptID
	result.Mode = model.AttemptModePersisted
	result.SubmitReason = reason
	result.SubmittedAt = s.now().UTC()

	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	// SETNX decides between concurrent completions; the loser returns the winner's result.
	won, err := s.rdb.SetNX(ctx, config.CacheKey.AttemptResultKey(attemptID.String()), data, attemptStateTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	if !won {
		return s.cachedResult(ctx, attemptID)
	}

	event, err := json.Marshal(model.ResultEvent{
		AttemptID:    attemptID,
		Score:        result.Score,
		IsPassed:     result.IsPassed,
		SubmitReason: reason,
		FinishedAt:   result.SubmittedAt,
	})
	if err != nil {
		return nil, err
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, config.CacheKey.AttemptMetaKey(attemptID.String()), "status", string(model.AttemptStatusCompleted))
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, event)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue result: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("reason", string(reason)).
		Int("score", result.Score).
		Bool("passed", result.IsPassed).
		Msg("Attempt completed")
	return result, nil
}

// Get returns the result of a completed attempt owned by the learner.
func (s *AttemptService) Get(ctx context.Context, learnerID int, attemptID uuid.UUID) (*model.AttemptResult, error) {
	meta, err := s.ownedMeta(ctx, learnerID, attemptID)
	if err != nil {
		return nil, err
	}
	if cached, err := s.cachedResult(ctx, attemptID); err != nil || cached != nil {
		return cached, err
	}
	if meta.status != model.AttemptStatusCompleted {
		return nil, ErrAttemptInProgress
	}
	return s.storedResult(ctx, attemptID)
}

// ListByLearner returns the learner's attempt history.
func (s *AttemptService) ListByLearner(ctx context.Context, learnerID int) ([]model.ExamAttempt, error) {
	return s.attempts.ListByLearner(ctx, learnerID)
}

// ReportIntegrityEvent queues a guard-triggered submission for the audit table.
func (s *AttemptService) ReportIntegrityEvent(ctx context.Context, learnerID int, attemptID uuid.UUID, reason model.SubmitReason, at time.Time) error {
	if _, err := s.ownedMeta(ctx, learnerID, attemptID); err != nil {
		return err
	}
	if at.IsZero() {
		at = s.now()
	}
	return s.enqueue(ctx, config.WorkerKey.PersistIntegrityQueue, model.IntegrityEvent{
		AttemptID:  attemptID,
		LearnerID:  learnerID,
		Reason:     reason,
		RecordedAt: at.UTC(),
	})
}

// RecordQuestionOrder queues the presented question order of an attempt.
func (s *AttemptService) RecordQuestionOrder(ctx context.Context, learnerID int, attemptID uuid.UUID, order []uuid.UUID) error {
	if _, err := s.ownedMeta(ctx, learnerID, attemptID); err != nil {
		return err
	}
	return s.enqueue(ctx, config.WorkerKey.PersistQuestionOrderQueue, model.QuestionOrderEvent{
		AttemptID: attemptID,
		Order:     order,
	})
}

func (s *AttemptService) enqueue(ctx context.Context, queue string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, queue, data).Err()
}

// ownedMeta loads the attempt state and hides attempts of other learners.
func (s *AttemptService) ownedMeta(ctx context.Context, learnerID int, attemptID uuid.UUID) (*attemptMeta, error) {
	meta, err := s.meta(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if meta.learnerID != learnerID {
		return nil, ErrAttemptNotFound
	}
	return meta, nil
}

// meta reads the attempt state from Redis, falling back to PostgreSQL and
// healing the cache on a miss.
func (s *AttemptService) meta(ctx context.Context, attemptID uuid.UUID) (*attemptMeta, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptMetaKey(attemptID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get attempt state: %w", err)
	}

	if learner, ok := raw["learner_id"]; ok {
		learnerID, lerr := strconv.Atoi(learner)
		examID, eerr := uuid.Parse(raw["exam_id"])
		if lerr == nil && eerr == nil {
			return &attemptMeta{
				learnerID: learnerID,
				examID:    examID,
				status:    model.AttemptStatus(raw["status"]),
			}, nil
		}
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	meta := attemptMeta{learnerID: attempt.LearnerID, examID: attempt.ExamID, status: attempt.Status}
	if err := s.cacheMeta(ctx, attemptID, meta); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to self-heal attempt state")
	}
	return &meta, nil
}

func (s *AttemptService) cacheMeta(ctx context.Context, attemptID uuid.UUID, meta attemptMeta) error {
	key := config.CacheKey.AttemptMetaKey(attemptID.String())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"learner_id", meta.learnerID,
		"exam_id", meta.examID.String(),
		"status", string(meta.status),
	)
	pipe.Expire(ctx, key, attemptStateTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// answers merges persisted answers with the newer autosave buffer.
func (s *AttemptService) answers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error) {
	answers, err := s.attempts.GetAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get persisted answers: %w", err)
	}

	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}
	for k, v := range raw {
		qID, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		opt, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		answers[qID] = opt
	}
	return answers, nil
}

func (s *AttemptService) cachedResult(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.AttemptResultKey(attemptID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached result: %w", err)
	}
	var result model.AttemptResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &result, nil
}

// storedResult rebuilds a result from PostgreSQL once the cache has expired.
func (s *AttemptService) storedResult(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusCompleted {
		return nil, ErrAttemptInProgress
	}

	def, err := s.exams.GetDefinition(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	answers, err := s.attempts.GetAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get persisted answers: %w", err)
	}

	result := assessment.Score(def, answers)
	result.AttemptID = attemptID
	result.Mode = model.AttemptModePersisted
	if attempt.Score != nil {
		result.Score = *attempt.Score
	}
	if attempt.IsPassed != nil {
		result.IsPassed = *attempt.IsPassed
	}
	if attempt.SubmitReason != nil {
		result.SubmitReason = *attempt.SubmitReason
	}
	if attempt.FinishedAt != nil {
		result.SubmittedAt = *attempt.FinishedAt
	}
	return result, nil
}
