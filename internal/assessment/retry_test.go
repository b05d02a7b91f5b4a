package assessment

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDefinition_IsPermutation(t *testing.T) {
	exam := questionExam(12)
	rng := rand.New(rand.NewPCG(1, 2))

	next := RetryDefinition(exam, rng)

	require.Len(t, next.Questions, len(exam.Questions))
	assert.Equal(t, exam.ID, next.ID)
	assert.Equal(t, exam.DurationMinutes, next.DurationMinutes)
	assert.Equal(t, exam.PassingScore, next.PassingScore)

	want := make(map[uuid.UUID]int)
	for _, q := range exam.Questions {
		want[q.ID]++
	}
	got := make(map[uuid.UUID]int)
	for _, q := range next.Questions {
		got[q.ID]++
	}
	assert.Equal(t, want, got)
}

func TestRetryDefinition_LeavesSourceUntouched(t *testing.T) {
	exam := questionExam(6)
	before := make([]uuid.UUID, len(exam.Questions))
	for i, q := range exam.Questions {
		before[i] = q.ID
	}

	next := RetryDefinition(exam, nil)
	next.Questions[0].Options[0].Text = "changed"

	for i, q := range exam.Questions {
		assert.Equal(t, before[i], q.ID)
		assert.Equal(t, "Right", q.Options[0].Text)
	}
}

func TestRetryDefinition_UniformPositions(t *testing.T) {
	const (
		n      = 4
		trials = 40000
	)
	exam := questionExam(n)
	index := make(map[uuid.UUID]int, n)
	for i, q := range exam.Questions {
		index[q.ID] = i
	}
	rng := rand.New(rand.NewPCG(42, 7))

	var counts [n][n]int
	for range trials {
		next := RetryDefinition(exam, rng)
		for pos, q := range next.Questions {
			counts[index[q.ID]][pos]++
		}
	}

	expected := float64(trials) / n
	for q := range n {
		for pos := range n {
			deviation := (float64(counts[q][pos]) - expected) / expected
			assert.InDelta(t, 0, deviation, 0.05, "question %d at position %d", q, pos)
		}
	}
}

func TestRetry_BeginsFreshSessionAndRecordsOrder(t *testing.T) {
	exam := questionExam(5)
	source := newFakeSource(exam)
	ticks, _ := manualTicks()

	s, err := Retry(context.Background(), source, exam, rand.New(rand.NewPCG(3, 4)), BeginOptions{
		Options: Options{Ticks: ticks},
	})
	require.NoError(t, err)

	assert.True(t, s.Mode().IsPersisted())
	assert.Equal(t, 0, source.gets, "retry reuses the definition in hand")
	assert.Equal(t, 1, source.starts)
	require.Len(t, source.orders, 1)
	for i, q := range s.Exam().Questions {
		assert.Equal(t, q.ID, source.orders[0][i])
	}

	snap := s.Snapshot()
	assert.Empty(t, snap.Answers)
	assert.False(t, snap.Started)
}
