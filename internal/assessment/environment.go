package assessment

import (
	"context"
	"errors"
	"sync"

	"github.com/drivetheory/theory-backend/internal/model"
)

// ErrFullscreenUnsupported is returned when the host cannot enter fullscreen.
var ErrFullscreenUnsupported = errors.New("fullscreen not supported")

// Signal is a fullscreen or visibility transition reported by the learner's environment.
type Signal string

const (
	SignalFullscreenEntered Signal = "fullscreen_entered"
	SignalFullscreenExited  Signal = "fullscreen_exited"
	SignalPageVisible       Signal = "visible"
	SignalPageHidden        Signal = "hidden"
)

// ParseSignal converts a wire name into a Signal.
func ParseSignal(name string) (Signal, bool) {
	switch s := Signal(name); s {
	case SignalFullscreenEntered, SignalFullscreenExited, SignalPageVisible, SignalPageHidden:
		return s, true
	}
	return "", false
}

// lossReason maps a signal to the submit reason it forces. Entering fullscreen
// or becoming visible again is not a loss.
func (s Signal) lossReason() (model.SubmitReason, bool) {
	switch s {
	case SignalFullscreenExited:
		return model.SubmitReasonFullscreenExit, true
	case SignalPageHidden:
		return model.SubmitReasonVisibilityHidden, true
	}
	return "", false
}

// Environment wraps the learner's browser or terminal. The guard only depends
// on this interface, so tests inject signals directly.
type Environment interface {
	RequestFullscreen(ctx context.Context) error
	Subscribe() (<-chan Signal, func())
}

// subscriberBuffer bounds pending signals per subscriber. Publish never blocks;
// signals beyond the buffer are dropped.
const subscriberBuffer = 16

// SignalRelay is an Environment fed by a host that receives signals from
// elsewhere (a WebSocket, OS signals). Fullscreen requests are delegated to the
// function given at construction.
type SignalRelay struct {
	mu      sync.Mutex
	subs    map[int]chan Signal
	nextID  int
	request func(ctx context.Context) error
}

// NewSignalRelay creates a relay. request may be nil when the host has no
// fullscreen support.
func NewSignalRelay(request func(ctx context.Context) error) *SignalRelay {
	return &SignalRelay{
		subs:    make(map[int]chan Signal),
		request: request,
	}
}

// RequestFullscreen asks the host to enter fullscreen.
func (r *SignalRelay) RequestFullscreen(ctx context.Context) error {
	if r.request == nil {
		return ErrFullscreenUnsupported
	}
	return r.request(ctx)
}

// Subscribe registers a listener. The returned function unsubscribes and closes
// the channel; calling it more than once is safe.
func (r *SignalRelay) Subscribe() (<-chan Signal, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	ch := make(chan Signal, subscriberBuffer)
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers a signal to every current subscriber.
func (r *SignalRelay) Publish(sig Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- sig:
		default:
		}
	}
}
