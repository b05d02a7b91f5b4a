package assessment

import (
	"context"
	"sync"
	"time"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	answerTimeout = 10 * time.Second
	finishTimeout = 15 * time.Second
)

// Hooks let the host observe a session. They run on session goroutines.
type Hooks struct {
	// OnTick receives the remaining seconds after every countdown tick.
	OnTick func(remaining int)
	// OnResult receives the result exactly once, after submission.
	OnResult func(result *model.AttemptResult)
	// OnNotice receives non-fatal problems worth showing to the learner.
	OnNotice func(message string)
}

// Options configure a session.
type Options struct {
	Hooks
	Ticks  TickSource
	Logger zerolog.Logger
	Now    func() time.Time
}

// NavState is the state of one navigation dot.
type NavState string

const (
	NavAnswered   NavState = "answered"
	NavUnanswered NavState = "unanswered"
	NavCurrent    NavState = "current"
)

// QuestionView is a question as shown to the learner, without correctness.
type QuestionView struct {
	ID       uuid.UUID `json:"id"`
	Prompt   string    `json:"prompt"`
	ImageURL string    `json:"image_url,omitempty"`
	Options  []string  `json:"options"`
	Selected *int      `json:"selected"`
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	ExamID           uuid.UUID         `json:"exam_id"`
	AttemptID        uuid.UUID         `json:"attempt_id"`
	Mode             model.AttemptMode `json:"mode"`
	Title            string            `json:"title"`
	QuestionCount    int               `json:"question_count"`
	CurrentIndex     int               `json:"current_index"`
	FurthestIndex    int               `json:"furthest_index"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Started          bool              `json:"started"`
	Submitted        bool              `json:"submitted"`
	Answers          map[uuid.UUID]int `json:"answers"`
	Navigation       []NavState        `json:"navigation"`
	Current          *QuestionView     `json:"current,omitempty"`
}

type pendingAnswer struct {
	questionID uuid.UUID
	option     int
}

// Session is one learner's run through an exam. It owns the progress, the
// answers, the remaining time and the lifecycle flags; the timer and guard only
// ever reach it through ForceSubmit. All methods are safe for concurrent use.
type Session struct {
	exam    *model.ExamDefinition
	mode    Mode
	backend attemptBackend
	env     Environment
	hooks   Hooks
	ticks   TickSource
	now     func() time.Time
	log     zerolog.Logger

	mu        sync.Mutex
	current   int
	furthest  int
	answers   map[uuid.UUID]int
	remaining int
	started   bool
	submitted bool
	result    *model.AttemptResult
	pending   []pendingAnswer
	baseCtx   context.Context

	wake    chan struct{}
	done    chan struct{}
	flushed chan struct{}
}

// NewSession builds an unstarted session. The definition must already satisfy
// Validate; Begin is the usual entry point.
func NewSession(exam *model.ExamDefinition, mode Mode, backend attemptBackend, env Environment, opts Options) (*Session, error) {
	if err := Validate(exam); err != nil {
		return nil, err
	}
	if opts.Ticks == nil {
		opts.Ticks = SecondTicker()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Session{
		exam:    exam,
		mode:    mode,
		backend: backend,
		env:     env,
		hooks:   opts.Hooks,
		ticks:   opts.Ticks,
		now:     opts.Now,
		log: opts.Logger.With().
			Str("exam_id", exam.ID.String()).
			Str("attempt_id", mode.AttemptID().String()).
			Str("mode", mode.String()).
			Logger(),
		answers: make(map[uuid.UUID]int),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}, nil
}

// Exam returns the definition the session presents, in presentation order.
func (s *Session) Exam() *model.ExamDefinition { return s.exam }

// Mode returns the resolved attempt mode.
func (s *Session) Mode() Mode { return s.mode }

// Done is closed once the session has been submitted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the attempt result, or nil before submission.
func (s *Session) Result() *model.AttemptResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Start begins the attempt: the countdown is set from the exam duration, the
// position and answers are reset, fullscreen is requested and the timer and
// guard are armed. A fullscreen failure is logged and the session proceeds.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.submitted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.current = 0
	s.furthest = 0
	s.answers = make(map[uuid.UUID]int)
	s.remaining = s.exam.DurationMinutes * 60
	s.baseCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	// Subscribe and create the tick channel before returning so that no signal
	// or tick published right after Start is missed.
	t := newTimer(s, s.ticks)
	var g *guard
	if s.env != nil {
		g = newGuard(s, s.env)
	}

	go s.runOutbox()
	go t.run()
	if g != nil {
		go g.run()
	}

	if s.env != nil {
		if err := s.env.RequestFullscreen(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Fullscreen request failed, continuing without it")
		}
	}

	s.log.Info().
		Int("questions", len(s.exam.Questions)).
		Int("duration_minutes", s.exam.DurationMinutes).
		Msg("Session started")
	return nil
}

// SelectAnswer records or overwrites the answer to a question without moving
// the position. Persisting the answer happens in the background; a failure is
// reported as a notice and the local answer is kept.
func (s *Session) SelectAnswer(questionID uuid.UUID, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return ErrNotActive
	}
	q, _, ok := s.exam.QuestionByID(questionID)
	if !ok {
		return ErrUnknownQuestion
	}
	if option < 0 || option >= len(q.Options) {
		return ErrInvalidOption
	}

	s.answers[questionID] = option
	s.pending = append(s.pending, pendingAnswer{questionID: questionID, option: option})

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// GoNext advances one question. It does nothing unless the current question is
// answered, and never moves past the last question. It reports whether the
// position changed.
func (s *Session) GoNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() || s.current >= len(s.exam.Questions)-1 {
		return false
	}
	if _, ok := s.answers[s.exam.Questions[s.current].ID]; !ok {
		return false
	}
	s.current++
	if s.current > s.furthest {
		s.furthest = s.current
	}
	return true
}

// GoPrevious moves back one question, stopping at the first.
func (s *Session) GoPrevious() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() || s.current == 0 {
		return false
	}
	s.current--
	return true
}

// JumpTo moves to a question that has already been reached.
func (s *Session) JumpTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return ErrNotActive
	}
	if index < 0 || index > s.furthest {
		return ErrNotReached
	}
	s.current = index
	return nil
}

// Submit is the learner's manual submission from the last question, which must
// be answered. A session that another path already submitted returns that result.
func (s *Session) Submit(ctx context.Context) (*model.AttemptResult, error) {
	result, _, err := s.submit(ctx, model.SubmitReasonManual, func() error {
		n := len(s.exam.Questions)
		if n == 0 {
			return nil
		}
		if s.current != n-1 {
			return ErrSubmitNotAllowed
		}
		if _, ok := s.answers[s.exam.Questions[s.current].ID]; !ok {
			return ErrSubmitNotAllowed
		}
		return nil
	})
	return result, err
}

// ForceSubmit ends the attempt without confirmation. It is safe to call any
// number of times from any goroutine: only the first call on a started session
// submits, and it reports performed=true. Calls before Start do nothing.
func (s *Session) ForceSubmit(ctx context.Context, reason model.SubmitReason) (result *model.AttemptResult, performed bool) {
	result, performed, _ = s.submit(ctx, reason, nil)
	return result, performed
}

// Abandon is called when the learner leaves while the attempt is running.
func (s *Session) Abandon(ctx context.Context) (*model.AttemptResult, bool) {
	return s.ForceSubmit(ctx, model.SubmitReasonAbandoned)
}

// submit is the only path that sets submitted. The check, the flag and the
// scoring happen under one lock; backend calls run after it is released and do
// not revisit the decision.
func (s *Session) submit(ctx context.Context, reason model.SubmitReason, allowed func() error) (*model.AttemptResult, bool, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, false, ErrNotActive
	}
	if s.submitted {
		result := s.result
		s.mu.Unlock()
		return result, false, nil
	}
	if allowed != nil {
		if err := allowed(); err != nil {
			s.mu.Unlock()
			return nil, false, err
		}
	}

	s.submitted = true
	result := Score(s.exam, s.answers)
	result.AttemptID = s.mode.AttemptID()
	result.Mode = s.mode.AttemptMode()
	result.SubmitReason = reason
	result.SubmittedAt = s.now().UTC()
	s.result = result
	close(s.done)
	s.mu.Unlock()

	s.log.Info().
		Str("reason", string(reason)).
		Int("score", result.Score).
		Bool("passed", result.IsPassed).
		Msg("Session submitted")

	// Pending answers go out before the attempt is completed.
	<-s.flushed

	ioCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if reason.IsIntegrityViolation() {
		if err := s.backend.ReportViolation(ioCtx, reason, result.SubmittedAt); err != nil {
			s.log.Warn().Err(err).Msg("Failed to report integrity event")
		}
	}
	if err := s.backend.Finish(ioCtx, result); err != nil {
		s.log.Warn().Err(err).Msg("Failed to finalize attempt, showing local result")
		s.notice("Your result could not be saved on the server.")
	}

	if s.hooks.OnResult != nil {
		s.hooks.OnResult(result)
	}
	return result, true, nil
}

// Preview is the state shown for exam before a session begins. No attempt
// exists yet, so AttemptID is nil.
func Preview(exam *model.ExamDefinition, local bool) Snapshot {
	mode := Mode{kind: ModePersisted}
	if local {
		mode.kind = ModeLocal
	}
	s := &Session{exam: exam, mode: mode, answers: make(map[uuid.UUID]int)}
	return s.Snapshot()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ExamID:           s.exam.ID,
		AttemptID:        s.mode.AttemptID(),
		Mode:             s.mode.AttemptMode(),
		Title:            s.exam.Title,
		QuestionCount:    len(s.exam.Questions),
		CurrentIndex:     s.current,
		FurthestIndex:    s.furthest,
		RemainingSeconds: s.remaining,
		Started:          s.started,
		Submitted:        s.submitted,
		Answers:          make(map[uuid.UUID]int, len(s.answers)),
		Navigation:       make([]NavState, len(s.exam.Questions)),
	}
	for id, opt := range s.answers {
		snap.Answers[id] = opt
	}
	for i, q := range s.exam.Questions {
		switch _, answered := s.answers[q.ID]; {
		case i == s.current:
			snap.Navigation[i] = NavCurrent
		case answered:
			snap.Navigation[i] = NavAnswered
		default:
			snap.Navigation[i] = NavUnanswered
		}
	}

	if s.started && len(s.exam.Questions) > 0 {
		q := s.exam.Questions[s.current]
		view := &QuestionView{
			ID:       q.ID,
			Prompt:   q.Prompt,
			ImageURL: q.ImageURL,
			Options:  make([]string, len(q.Options)),
		}
		for i, o := range q.Options {
			view.Options[i] = o.Text
		}
		if opt, ok := s.answers[q.ID]; ok {
			selected := opt
			view.Selected = &selected
		}
		snap.Current = view
	}
	return snap
}

// tick decrements the countdown by one second. expired is true when the
// countdown has reached zero; ok is false once the session is no longer active.
func (s *Session) tick() (remaining int, expired, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return s.remaining, false, false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return s.remaining, s.remaining == 0, true
}

// lifetime is the context background work derives from.
func (s *Session) lifetime() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// active must be called with mu held.
func (s *Session) active() bool {
	return s.started && !s.submitted
}

func (s *Session) notice(msg string) {
	if s.hooks.OnNotice != nil {
		s.hooks.OnNotice(msg)
	}
}

// runOutbox sends recorded answers to the backend in the order they were
// selected. It exits after the session is submitted and the queue is empty.
func (s *Session) runOutbox() {
	defer close(s.flushed)

	for {
		select {
		case <-s.wake:
		case <-s.done:
		}

		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		finished := s.submitted
		base := s.baseCtx
		s.mu.Unlock()

		for _, a := range batch {
			ctx, cancel := context.WithTimeout(base, answerTimeout)
			err := s.backend.RecordAnswer(ctx, a.questionID, a.option)
			cancel()
			if err != nil {
				s.log.Warn().Err(err).
					Str("question_id", a.questionID.String()).
					Msg("Failed to persist answer")
				s.notice("Your answer was kept but could not be saved on the server.")
			}
		}

		if finished && len(batch) == 0 {
			return
		}
	}
}
