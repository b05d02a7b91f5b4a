package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*LocalAttemptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLocalAttemptStore(rdb, 10*time.Minute), mr
}

func TestLocalAttemptStore_AnswersAndResult(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	scoped := store.ForLearner(7)

	localID, q1, q2 := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, scoped.SaveAnswer(ctx, localID, q1, 2))
	require.NoError(t, scoped.SaveAnswer(ctx, localID, q2, 0))
	require.NoError(t, scoped.SaveAnswer(ctx, localID, q1, 1))

	answers, err := store.Answers(ctx, localID)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{q1: 1, q2: 0}, answers)
	assert.Equal(t, 10*time.Minute, mr.TTL(config.CacheKey.LocalAttemptAnswersKey(localID.String())))

	result := &model.AttemptResult{AttemptID: localID, Mode: model.AttemptModeLocal, Score: 50, TotalQuestions: 2}
	require.NoError(t, scoped.SaveResult(ctx, result))

	got, err := store.GetResult(ctx, 7, localID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Score)
	assert.Equal(t, model.AttemptModeLocal, got.Mode)

	_, err = store.GetResult(ctx, 8, localID)
	assert.ErrorIs(t, err, ErrLocalAttemptNotFound)
}

func TestLocalAttemptStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	localID := uuid.New()
	require.NoError(t, store.ForLearner(1).SaveResult(ctx, &model.AttemptResult{AttemptID: localID}))

	mr.FastForward(11 * time.Minute)

	_, err := store.GetResult(ctx, 1, localID)
	assert.ErrorIs(t, err, ErrLocalAttemptNotFound)
}
