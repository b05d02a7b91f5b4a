package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_SignalsBeforeStartAreIgnored(t *testing.T) {
	h, err := newHarness(twoQuestionExam(), false)
	require.NoError(t, err)

	h.relay.Publish(SignalFullscreenExited)
	h.relay.Publish(SignalPageHidden)
	require.NoError(t, h.session.Start(context.Background()))

	assert.Never(t, func() bool { return h.session.Snapshot().Submitted }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestGuard_NonLossSignalsDoNothing(t *testing.T) {
	h := startedHarness(t, twoQuestionExam(), false)

	h.relay.Publish(SignalFullscreenEntered)
	h.relay.Publish(SignalPageVisible)

	assert.Never(t, func() bool { return h.session.Snapshot().Submitted }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestGuard_FullscreenExitForcesSubmit(t *testing.T) {
	h := startedHarness(t, twoQuestionExam(), false)

	h.relay.Publish(SignalFullscreenEntered)
	h.relay.Publish(SignalFullscreenExited)
	h.relay.Publish(SignalPageHidden)

	require.Eventually(t, func() bool { return h.resultCount() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, model.SubmitReasonFullscreenExit, h.session.Result().SubmitReason)
	assert.Equal(t, 0, h.session.Result().Score)

	h.source.mu.Lock()
	defer h.source.mu.Unlock()
	assert.Equal(t, []model.SubmitReason{model.SubmitReasonFullscreenExit}, h.source.violations)
	assert.Equal(t, 1, h.source.completes)
}

func TestGuard_UnsubscribesWhenDone(t *testing.T) {
	h := startedHarness(t, twoQuestionExam(), false)
	_, performed := h.session.ForceSubmit(context.Background(), model.SubmitReasonManual)
	require.True(t, performed)

	require.Eventually(t, func() bool {
		h.relay.mu.Lock()
		defer h.relay.mu.Unlock()
		return len(h.relay.subs) == 0
	}, waitFor, 5*time.Millisecond)
}

func TestGuard_FullscreenFailureIsNotFatal(t *testing.T) {
	exam := twoQuestionExam()
	source := newFakeSource(exam)
	ticks, _ := manualTicks()
	relay := NewSignalRelay(nil)

	s, err := Begin(context.Background(), source, exam.ID, BeginOptions{
		Environment: relay,
		Options:     Options{Ticks: ticks},
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Snapshot().Started)

	relay.Publish(SignalPageHidden)
	require.Eventually(t, func() bool { return s.Result() != nil }, waitFor, 5*time.Millisecond)
	assert.Equal(t, model.SubmitReasonVisibilityHidden, s.Result().SubmitReason)
}

func TestParseSignal(t *testing.T) {
	sig, ok := ParseSignal("hidden")
	assert.True(t, ok)
	assert.Equal(t, SignalPageHidden, sig)

	_, ok = ParseSignal("blur")
	assert.False(t, ok)
}

func TestSignalRelay_PublishDoesNotBlock(t *testing.T) {
	relay := NewSignalRelay(nil)
	ch, unsubscribe := relay.Subscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		relay.Publish(SignalPageVisible)
	}
	assert.Len(t, ch, subscriberBuffer)

	unsubscribe()
	unsubscribe()
	relay.Publish(SignalPageHidden)
	assert.ErrorIs(t, relay.RequestFullscreen(context.Background()), ErrFullscreenUnsupported)
}
