package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/drivetheory/theory-backend/internal/assessment"
	"github.com/drivetheory/theory-backend/internal/client"
	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/term"
)

// Alternate screen buffer: the terminal's closest thing to fullscreen.
const (
	enterAltScreen = "\x1b[?1049h"
	leaveAltScreen = "\x1b[?1049l"
)

func main() {
	cfg := config.Load()

	var (
		apiURL = flag.String("api", cfg.ExamAPIURL, "Backend API base URL")
		token  = flag.String("token", cfg.ExamAPIToken, "Learner token; prompts for a login when empty")
		email  = flag.String("email", "", "Learner email for the login prompt")
		examID = flag.String("exam", "", "Exam id; lists the published exams when empty")
		local  = flag.Bool("local", false, "Practice without registering the attempt")
	)
	flag.Parse()

	// Logs go to stderr so they never interleave with the exam screen.
	log := logger.New(os.Stderr, cfg.LogLevel, "pretty")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := client.New(*apiURL, *token)
	reader := bufio.NewReader(os.Stdin)

	if *token == "" {
		if err := login(ctx, api, reader, *email); err != nil {
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
			os.Exit(1)
		}
	}

	id, err := chooseExam(ctx, api, reader, *examID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	relay := newTerminalRelay()
	r := &runner{
		ds:    api,
		env:   relay,
		local: *local,
		ticks: assessment.SecondTicker(),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:   log,
		out:   os.Stdout,
	}

	stopSignals := relayOSSignals(relay, r.running.Load)
	defer stopSignals()

	err = r.run(ctx, id, reader)
	restoreScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Exam could not be taken: %v\n", err)
		os.Exit(1)
	}
}

// newTerminalRelay switches to the alternate screen when the session asks for
// fullscreen. Without a terminal the request fails and the session continues.
func newTerminalRelay() *assessment.SignalRelay {
	var relay *assessment.SignalRelay
	relay = assessment.NewSignalRelay(func(context.Context) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return assessment.ErrFullscreenUnsupported
		}
		fmt.Print(enterAltScreen)
		relay.Publish(assessment.SignalFullscreenEntered)
		return nil
	})
	return relay
}

func restoreScreen() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(leaveAltScreen)
	}
}

// relayOSSignals turns leaving a running exam into guard signals: Ctrl-C leaves
// the exam screen, a hang-up means the terminal is gone. Outside a running
// exam the signals end the program.
func relayOSSignals(relay *assessment.SignalRelay, running func() bool) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				if !running() {
					restoreScreen()
					os.Exit(130)
				}
				if sig == syscall.SIGHUP {
					relay.Publish(assessment.SignalPageHidden)
				} else {
					relay.Publish(assessment.SignalFullscreenExited)
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func login(ctx context.Context, api *client.Client, reader *bufio.Reader, email string) error {
	if email == "" {
		fmt.Print("Email: ")
		line, _ := reader.ReadString('\n')
		email = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after password input
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	resp, err := api.Login(ctx, email, string(password))
	if err != nil {
		return err
	}
	fmt.Printf("Welcome, %s.\n", resp.Learner.Name)
	return nil
}

func chooseExam(ctx context.Context, api *client.Client, reader *bufio.Reader, raw string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid exam id: %w", err)
		}
		return id, nil
	}

	exams, err := api.ListExams(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("list exams: %w", err)
	}
	if len(exams) == 0 {
		return uuid.Nil, errors.New("no published exams")
	}

	fmt.Println("Published exams:")
	for i, e := range exams {
		fmt.Printf("  %d) %s (%d min, pass %d%%)\n", i+1, e.Title, e.DurationMinutes, e.PassingScore)
	}
	fmt.Print("Choose an exam: ")
	line, _ := reader.ReadString('\n')

	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d", &n); err != nil || n < 1 || n > len(exams) {
		return uuid.Nil, fmt.Errorf("no exam number %q", strings.TrimSpace(line))
	}
	return exams[n-1].ID, nil
}
