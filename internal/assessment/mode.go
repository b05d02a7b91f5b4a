package assessment

import (
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/google/uuid"
)

// ModeKind distinguishes attempts registered with the backend from local ones.
type ModeKind int

const (
	ModeLocal ModeKind = iota
	ModePersisted
)

// Mode is resolved once when a session begins. A persisted mode carries the
// server attempt id; a local mode carries a locally generated id that keys the
// ephemeral store.
type Mode struct {
	kind      ModeKind
	attemptID uuid.UUID
}

// Persisted returns the mode for an attempt registered with the backend.
func Persisted(attemptID uuid.UUID) Mode {
	return Mode{kind: ModePersisted, attemptID: attemptID}
}

// Local returns the mode for an attempt that never touches the backend.
func Local(localID uuid.UUID) Mode {
	return Mode{kind: ModeLocal, attemptID: localID}
}

func (m Mode) Kind() ModeKind { return m.kind }
func (m Mode) AttemptID() uuid.UUID { return m.attemptID }
func (m Mode) IsPersisted() bool { return m.kind == ModePersisted }
func (m Mode) AttemptMode() model.AttemptMode {
	if m.kind == ModePersisted {
		return model.AttemptModePersisted
	}
	return model.AttemptModeLocal
}

func (m Mode) String() string {
	return string(m.AttemptMode())
}
