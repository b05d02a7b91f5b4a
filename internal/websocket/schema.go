package websocket

import (
	"github.com/drivetheory/theory-backend/internal/assessment"
	"github.com/drivetheory/theory-backend/internal/model"
)

// Actions (client to server)

type Action string

const (
	ActionStart    Action = "start"
	ActionAnswer   Action = "answer"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionJump     Action = "jump"
	ActionSubmit   Action = "submit"
	ActionSignal   Action = "signal"
	ActionRetry    Action = "retry"
	ActionPing     Action = "ping"
)

// RequestPayload is every client message; fields not used by the action are ignored.
type RequestPayload struct {
	Action Action `json:"action"`
	// answer
	QID    string `json:"q_id,omitempty"`
	Option *int   `json:"option,omitempty"`
	// jump
	Index *int `json:"index,omitempty"`
	// signal: fullscreen_entered, fullscreen_exited, visible, hidden
	Name string `json:"name,omitempty"`
}

// Events (server to client)

type Event string

const (
	EventState             Event = "state"
	EventTick              Event = "tick"
	EventRequestFullscreen Event = "request_fullscreen"
	EventNotice            Event = "notice"
	EventResult            Event = "result"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

type StateResponse struct {
	Event Event               `json:"event"`
	State assessment.Snapshot `json:"state"`
}

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

type NoticeResponse struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}

type ResultResponse struct {
	Event  Event                `json:"event"`
	Result *model.AttemptResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// EventResponse carries events without a payload (pong, request_fullscreen).
type EventResponse struct {
	Event Event `json:"event"`
}
