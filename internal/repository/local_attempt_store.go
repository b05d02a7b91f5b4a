package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocalAttemptNotFound is returned for unknown, expired or foreign local attempts.
var ErrLocalAttemptNotFound = errors.New("local attempt not found")

// LocalAttemptStore keeps local-mode attempts in Redis for a limited time. Local
// attempts are never written to PostgreSQL.
type LocalAttemptStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLocalAttemptStore creates a store whose entries expire after ttl.
func NewLocalAttemptStore(rdb *redis.Client, ttl time.Duration) *LocalAttemptStore {
	return &LocalAttemptStore{rdb: rdb, ttl: ttl}
}

type storedLocalResult struct {
	LearnerID int                  `json:"learner_id"`
	Result    *model.AttemptResult `json:"result"`
}

// ForLearner scopes the store to one learner; the result is the session's LocalStore.
func (s *LocalAttemptStore) ForLearner(learnerID int) *LearnerLocalStore {
	return &LearnerLocalStore{store: s, learnerID: learnerID}
}

// Answers returns the answers recorded for a local attempt.
func (s *LocalAttemptStore) Answers(ctx context.Context, localID uuid.UUID) (map[uuid.UUID]int, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.LocalAttemptAnswersKey(localID.String())).Result()
	if err != nil {
		return nil, err
	}
	answers := make(map[uuid.UUID]int, len(raw))
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

// GetResult returns a local attempt's result if it belongs to learnerID.
func (s *LocalAttemptStore) GetResult(ctx context.Context, learnerID int, localID uuid.UUID) (*model.AttemptResult, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.LocalAttemptResultKey(localID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLocalAttemptNotFound
		}
		return nil, err
	}

	var stored storedLocalResult
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode local result: %w", err)
	}
	if stored.LearnerID != learnerID || stored.Result == nil {
		return nil, ErrLocalAttemptNotFound
	}
	return stored.Result, nil
}

// LearnerLocalStore writes one learner's local attempts.
type LearnerLocalStore struct {
	store     *LocalAttemptStore
	learnerID int
}

// SaveAnswer records an answer and refreshes the attempt's expiry.
func (l *LearnerLocalStore) SaveAnswer(ctx context.Context, localID, questionID uuid.UUID, selectedOption int) error {
	key := config.CacheKey.LocalAttemptAnswersKey(localID.String())

	pipe := l.store.rdb.TxPipeline()
	pipe.HSet(ctx, key, questionID.String(), selectedOption)
	pipe.Expire(ctx, key, l.store.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SaveResult stores the final result under the attempt's local id.
func (l *LearnerLocalStore) SaveResult(ctx context.Context, result *model.AttemptResult) error {
	data, err := json.Marshal(storedLocalResult{LearnerID: l.learnerID, Result: result})
	if err != nil {
		return err
	}
	return l.store.rdb.Set(ctx, config.CacheKey.LocalAttemptResultKey(result.AttemptID.String()), data, l.store.ttl).Err()
}
