package assessment

import (
	"context"
	"fmt"

	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
)

// BeginOptions select the mode and collaborators of a new session.
type BeginOptions struct {
	Options
	// Local runs the attempt without registering it with the backend.
	Local bool
	// Exam is a definition already in hand (for example a retry); when nil the
	// definition is fetched from the data source.
	Exam *model.ExamDefinition
	// Store keeps local attempts; nil keeps them in memory only.
	Store       LocalStore
	Environment Environment
	// OnServerResult is called when the backend returns its own result on completion.
	OnServerResult func(local, server *model.AttemptResult)
}

// Begin resolves the exam and the attempt mode and returns an unstarted
// session. Loading failures and, in persisted mode, failures to register the
// attempt abort the start: no session is returned.
func Begin(ctx context.Context, ds DataSource, examID uuid.UUID, opts BeginOptions) (*Session, error) {
	exam := opts.Exam
	if exam == nil {
		if ds == nil {
			return nil, ErrNoDataSource
		}
		loaded, err := ds.GetExam(ctx, examID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExamUnavailable, err)
		}
		exam = loaded
	}
	if err := Validate(exam); err != nil {
		return nil, err
	}

	var (
		mode    Mode
		backend attemptBackend
	)

	if opts.Local {
		localID := uuid.New()
		mode = Local(localID)
		backend = &localBackend{store: opts.Store, localID: localID}
	} else {
		if ds == nil {
			return nil, ErrNoDataSource
		}
		attemptID, err := ds.StartAttempt(ctx, exam.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
		}
		mode = Persisted(attemptID)
		backend = &persistedBackend{ds: ds, attemptID: attemptID, onServer: opts.OnServerResult}
	}

	return NewSession(exam, mode, backend, opts.Environment, opts.Options)
}
