package service

import (
	"context"
	"testing"
	"time"

	"github.com/drivetheory/theory-backend/internal/assessment"
	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noTicks() (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

func TestLearnerDataSource_DrivesPersistedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ds := NewLearnerDataSource(f.exams, f.attempts, 9)
	relay := assessment.NewSignalRelay(func(context.Context) error { return nil })

	serverResults := make(chan *model.AttemptResult, 1)
	s, err := assessment.Begin(ctx, ds, f.exam.ID, assessment.BeginOptions{
		Environment: relay,
		Options:     assessment.Options{Ticks: noTicks},
		OnServerResult: func(_, server *model.AttemptResult) {
			serverResults <- server
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.SelectAnswer(f.exam.Questions[0].ID, 0))
	relay.Publish(assessment.SignalFullscreenExited)

	var serverResult *model.AttemptResult
	select {
	case serverResult = <-serverResults:
	case <-time.After(2 * time.Second):
		t.Fatal("guard did not complete the attempt")
	}

	local := s.Result()
	assert.Equal(t, model.SubmitReasonFullscreenExit, local.SubmitReason)
	assert.Equal(t, local.Score, serverResult.Score)
	assert.Equal(t, 50, serverResult.Score)

	integrity, err := f.mr.List(config.WorkerKey.PersistIntegrityQueue)
	require.NoError(t, err)
	assert.Len(t, integrity, 1)

	stored, err := ds.GetAttempt(ctx, s.Mode().AttemptID())
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Score)
}
