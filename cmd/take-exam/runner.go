package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/drivetheory/theory-backend/internal/assessment"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const helpLine = "Commands: <number> answer | n next | p previous | j <k> jump | s submit | q quit"

// runner drives exam sessions from line-based terminal input.
type runner struct {
	ds    assessment.DataSource
	env   assessment.Environment
	local bool
	ticks assessment.TickSource
	rng   *rand.Rand
	log   zerolog.Logger

	// running is set while a session accepts answers.
	running atomic.Bool

	outMu sync.Mutex
	out   io.Writer
}

func (r *runner) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// options builds the session options. results receives the outcome once the
// backend has been told about it.
func (r *runner) options(results chan<- *model.AttemptResult) assessment.BeginOptions {
	return assessment.BeginOptions{
		Options: assessment.Options{
			Hooks: assessment.Hooks{
				OnResult: func(res *model.AttemptResult) { results <- res },
				OnTick: func(remaining int) {
					if remaining%60 == 0 || remaining <= 10 {
						r.printf("  [time left %s]\n", clock(remaining))
					}
				},
				OnNotice: func(msg string) { r.printf("  ! %s\n", msg) },
			},
			Ticks:  r.ticks,
			Logger: r.log,
		},
		Local:       r.local,
		Environment: r.env,
		OnServerResult: func(local, server *model.AttemptResult) {
			if local.Score != server.Score || local.IsPassed != server.IsPassed {
				r.log.Warn().
					Int("local_score", local.Score).
					Int("server_score", server.Score).
					Msg("Server result differs from local scoring")
			}
		},
	}
}

// run takes the exam until the learner quits or input ends. A running attempt
// is abandoned when input ends.
func (r *runner) run(ctx context.Context, examID uuid.UUID, in io.Reader) error {
	lines := readLines(in)

	results := make(chan *model.AttemptResult, 1)
	s, err := assessment.Begin(ctx, r.ds, examID, r.options(results))
	if err != nil {
		return err
	}

	for {
		if err := s.Start(ctx); err != nil {
			return err
		}
		r.printf("Started %q (%s attempt %s), %d minutes.\n%s\n",
			s.Exam().Title, s.Mode().AttemptMode(), s.Mode().AttemptID(), s.Exam().DurationMinutes, helpLine)
		r.render(s.Snapshot())

		r.running.Store(true)
		finished := r.answerLoop(ctx, s, lines)
		r.running.Store(false)

		if !finished {
			if _, performed := s.Abandon(ctx); performed {
				r.printf("Attempt abandoned.\n")
			}
			<-results
			return nil
		}

		r.printResult(<-results)

		if !r.askRetry(lines) {
			return nil
		}
		results = make(chan *model.AttemptResult, 1)
		s, err = assessment.Retry(ctx, r.ds, s.Exam(), r.rng, r.options(results))
		if err != nil {
			return err
		}
	}
}

// answerLoop handles commands until the session is submitted. It returns false
// when input ends or the learner quits first.
func (r *runner) answerLoop(ctx context.Context, s *assessment.Session, lines <-chan string) bool {
	for {
		// A submission wins over input that is already queued.
		select {
		case <-s.Done():
			return true
		default:
		}

		select {
		case <-s.Done():
			return true
		case line, ok := <-lines:
			if !ok {
				return false
			}
			if quit := r.handle(ctx, s, strings.TrimSpace(line)); quit {
				return false
			}
		}
	}
}

func (r *runner) handle(ctx context.Context, s *assessment.Session, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(line, " ")
	snap := s.Snapshot()

	switch cmd {
	case "":
		return false
	case "q":
		return true
	case "n":
		if !s.GoNext() {
			r.printf("  Answer this question first.\n")
			return false
		}
	case "p":
		s.GoPrevious()
	case "j":
		k, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			r.printf("  Usage: j <question number>\n")
			return false
		}
		if err := s.JumpTo(k - 1); err != nil {
			r.printf("  %v\n", err)
			return false
		}
	case "s":
		if _, err := s.Submit(ctx); err != nil {
			r.printf("  %v\n", err)
		}
		return false
	default:
		n, err := strconv.Atoi(cmd)
		if err != nil || snap.Current == nil {
			r.printf("  %s\n", helpLine)
			return false
		}
		if err := s.SelectAnswer(snap.Current.ID, n-1); err != nil {
			if errors.Is(err, assessment.ErrNotActive) {
				return false
			}
			r.printf("  %v\n", err)
			return false
		}
	}

	r.render(s.Snapshot())
	return false
}

func (r *runner) askRetry(lines <-chan string) bool {
	r.printf("Type r to retry with shuffled questions, anything else to quit.\n")
	line, ok := <-lines
	return ok && strings.TrimSpace(line) == "r"
}

func (r *runner) render(snap assessment.Snapshot) {
	if snap.Submitted || snap.Current == nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s  question %d/%d  time %s\n", snap.Title, snap.CurrentIndex+1, snap.QuestionCount, clock(snap.RemainingSeconds))
	for _, state := range snap.Navigation {
		switch state {
		case assessment.NavCurrent:
			b.WriteString("[*]")
		case assessment.NavAnswered:
			b.WriteString("[x]")
		default:
			b.WriteString("[ ]")
		}
	}
	fmt.Fprintf(&b, "\n%s\n", snap.Current.Prompt)
	if snap.Current.ImageURL != "" {
		fmt.Fprintf(&b, "(image: %s)\n", snap.Current.ImageURL)
	}
	for i, opt := range snap.Current.Options {
		marker := " "
		if snap.Current.Selected != nil && *snap.Current.Selected == i {
			marker = ">"
		}
		fmt.Fprintf(&b, " %s %d) %s\n", marker, i+1, opt)
	}
	r.printf("%s", b.String())
}

func (r *runner) printResult(res *model.AttemptResult) {
	if res == nil {
		return
	}
	verdict := "FAILED"
	if res.IsPassed {
		verdict = "PASSED"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s with %d%% (%d/%d correct, pass mark %d%%), ended by %s\n",
		verdict, res.Score, res.CorrectCount, res.TotalQuestions, res.PassingScore, res.SubmitReason)
	for i, a := range res.Answers {
		mark := "wrong"
		switch {
		case a.SelectedOption == nil:
			mark = "unanswered"
		case a.IsCorrect:
			mark = "correct"
		}
		fmt.Fprintf(&b, "  Q%d %s\n", i+1, mark)
	}
	r.printf("%s", b.String())
}

// readLines feeds input lines to a channel that is closed at end of input.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

func clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
