package assessment

import "errors"

// Domain errors.
var (
	ErrInvalidExam      = errors.New("invalid exam definition")
	ErrInvalidQuestion  = errors.New("question must have exactly one correct option")
	ErrExamUnavailable  = errors.New("exam could not be loaded")
	ErrStartFailed      = errors.New("attempt could not be started")
	ErrAlreadyStarted   = errors.New("session already started")
	ErrNotActive        = errors.New("session is not active")
	ErrUnknownQuestion  = errors.New("question does not belong to this exam")
	ErrInvalidOption    = errors.New("option index out of range")
	ErrNotReached       = errors.New("question has not been reached yet")
	ErrSubmitNotAllowed = errors.New("answer the last question before submitting")
	ErrNoDataSource     = errors.New("persisted mode requires a data source")
)
