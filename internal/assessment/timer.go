package assessment

import (
	"time"

	"github.com/drivetheory/theory-backend/internal/model"
)

// TickSource creates a tick channel and the function that stops it.
type TickSource func() (<-chan time.Time, func())

// SecondTicker ticks once per second.
func SecondTicker() TickSource {
	return func() (<-chan time.Time, func()) {
		t := time.NewTicker(time.Second)
		return t.C, t.Stop
	}
}

// timer counts the session down one second per tick and forces submission
// when the countdown reaches zero. It stops as soon as the session is done.
type timer struct {
	session *Session
	ticks   <-chan time.Time
	stop    func()
}

func newTimer(s *Session, source TickSource) *timer {
	ticks, stop := source()
	return &timer{session: s, ticks: ticks, stop: stop}
}

func (t *timer) run() {
	defer t.stop()

	for {
		select {
		case <-t.session.done:
			return
		case <-t.ticks:
			remaining, expired, ok := t.session.tick()
			if !ok {
				return
			}
			if t.session.hooks.OnTick != nil {
				t.session.hooks.OnTick(remaining)
			}
			if expired {
				t.session.ForceSubmit(t.session.lifetime(), model.SubmitReasonTimeout)
				return
			}
		}
	}
}
