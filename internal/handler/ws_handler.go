package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/drivetheory/theory-backend/internal/assessment"
	"github.com/drivetheory/theory-backend/internal/middleware"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/drivetheory/theory-backend/internal/repository"
	"github.com/drivetheory/theory-backend/internal/response"
	"github.com/drivetheory/theory-backend/internal/service"
	ws "github.com/drivetheory/theory-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs assessment sessions over a WebSocket.
type WSHandler struct {
	exams    *service.ExamService
	attempts *service.AttemptService
	local    *repository.LocalAttemptStore
	log      zerolog.Logger
	upgrader websocket.Upgrader
	ticks    assessment.TickSource
	pongWait time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(exams *service.ExamService, attempts *service.AttemptService, local *repository.LocalAttemptStore, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		exams:    exams,
		attempts: attempts,
		local:    local,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		pongWait: ws.DefaultPongWait,
	}
}

// ExamSessionStream godoc
// WS /ws/v1/exams/:exam_id/session?mode=persisted|local
// Loads the exam and drives a session from client actions. The attempt is
// registered when the learner sends start. The server pushes state, tick,
// notice and result events and pings the client to keep the stream open.
func (h *WSHandler) ExamSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var local bool
	switch c.DefaultQuery("mode", "persisted") {
	case "persisted":
	case "local":
		local = true
	default:
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw, h.pongWait)
	defer conn.Close()

	stopPings := make(chan struct{})
	defer close(stopPings)
	go conn.KeepAlive(stopPings)

	wsLog := h.log.With().
		Int("learner_id", claims.LearnerID).
		Str("exam_id", examID.String()).
		Bool("local", local).
		Logger()

	r := &sessionRunner{
		conn:  conn,
		log:   wsLog,
		ds:    service.NewLearnerDataSource(h.exams, h.attempts, claims.LearnerID),
		store: h.local.ForLearner(claims.LearnerID),
		local: local,
		ticks: h.ticks,
	}
	r.relay = assessment.NewSignalRelay(func(context.Context) error {
		return conn.WriteEvent(ws.EventRequestFullscreen)
	})

	// Detach from the request so the session outlives the upgrade handler's context.
	ctx := context.WithoutCancel(c.Request.Context())

	if err := r.load(ctx, examID); err != nil {
		wsLog.Warn().Err(err).Msg("Exam could not be loaded")
		r.fail(err)
		return
	}

	wsLog.Info().Msg("Learner connected")
	r.sendState()

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		r.dispatch(ctx, &msg)
	}

	// A learner who drops out of a running attempt has it submitted as abandoned.
	if s := r.current(); s != nil {
		if _, performed := s.Abandon(ctx); performed {
			wsLog.Info().Msg("Running attempt abandoned on disconnect")
		}
	}
}

// sessionRunner holds the per-connection state of ExamSessionStream. Between
// loading the exam (or asking for a retry) and the next start there is a
// pending definition and no session.
type sessionRunner struct {
	conn  *ws.Conn
	log   zerolog.Logger
	ds    *service.LearnerDataSource
	store *repository.LearnerLocalStore
	relay *assessment.SignalRelay
	local bool
	ticks assessment.TickSource

	mu      sync.Mutex
	session *assessment.Session
	pending *model.ExamDefinition
	retry   bool
}

func (r *sessionRunner) current() *assessment.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// load fetches and checks the definition the first start will use.
func (r *sessionRunner) load(ctx context.Context, examID uuid.UUID) error {
	exam, err := r.ds.GetExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("%w: %w", assessment.ErrExamUnavailable, err)
	}
	if err := assessment.Validate(exam); err != nil {
		return err
	}

	r.mu.Lock()
	r.pending = exam
	r.mu.Unlock()
	return nil
}

// begin turns the pending definition into a session, registering the attempt
// in persisted mode. A retry reshuffles the definition first.
func (r *sessionRunner) begin(ctx context.Context) (*assessment.Session, error) {
	r.mu.Lock()
	exam, retry := r.pending, r.retry
	r.mu.Unlock()

	opts := assessment.BeginOptions{
		Options: assessment.Options{
			Hooks: assessment.Hooks{
				OnTick: func(remaining int) {
					_ = r.conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, Remaining: remaining})
				},
				OnResult: func(result *model.AttemptResult) {
					_ = r.conn.WriteTyped(ws.ResultResponse{Event: ws.EventResult, Result: result})
				},
				OnNotice: func(message string) {
					_ = r.conn.WriteTyped(ws.NoticeResponse{Event: ws.EventNotice, Message: message})
				},
			},
			Ticks:  r.ticks,
			Logger: r.log,
		},
		Local:       r.local,
		Store:       r.store,
		Environment: r.relay,
		OnServerResult: func(local, server *model.AttemptResult) {
			if local.Score != server.Score || local.IsPassed != server.IsPassed {
				r.log.Warn().
					Int("local_score", local.Score).
					Int("server_score", server.Score).
					Msg("Server result differs from local result")
			}
		},
	}

	var (
		s   *assessment.Session
		err error
	)
	if retry {
		s, err = assessment.Retry(ctx, r.ds, exam, nil, opts)
	} else {
		opts.Exam = exam
		s, err = assessment.Begin(ctx, r.ds, exam.ID, opts)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.session, r.pending, r.retry = s, nil, false
	r.mu.Unlock()

	r.log.Info().Str("attempt_id", s.Mode().AttemptID().String()).Msg("Attempt begun")
	return s, nil
}

func (r *sessionRunner) dispatch(ctx context.Context, msg *ws.RequestPayload) {
	s := r.current()

	// Before the first start, and between a retry request and its start,
	// there is only the pending definition.
	if s == nil {
		switch msg.Action {
		case ws.ActionStart:
			var err error
			if s, err = r.begin(ctx); err != nil {
				r.log.Warn().Err(err).Msg("Attempt could not begin")
				r.fail(err)
				return
			}
		case ws.ActionAnswer, ws.ActionJump, ws.ActionSubmit:
			r.fail(assessment.ErrNotActive)
			return
		case ws.ActionNext, ws.ActionPrevious:
			r.sendState()
			return
		case ws.ActionRetry:
			_ = r.conn.WriteError("the current attempt has not been submitted")
			return
		}
	}

	switch msg.Action {
	case ws.ActionStart:
		if err := s.Start(ctx); err != nil {
			r.fail(err)
			return
		}

	case ws.ActionAnswer:
		qid, err := uuid.Parse(msg.QID)
		if err != nil {
			_ = r.conn.WriteError("invalid q_id format")
			return
		}
		if msg.Option == nil {
			_ = r.conn.WriteError("option is required")
			return
		}
		if err := s.SelectAnswer(qid, *msg.Option); err != nil {
			r.fail(err)
			return
		}

	case ws.ActionNext:
		s.GoNext()

	case ws.ActionPrevious:
		s.GoPrevious()

	case ws.ActionJump:
		if msg.Index == nil {
			_ = r.conn.WriteError("index is required")
			return
		}
		if err := s.JumpTo(*msg.Index); err != nil {
			r.fail(err)
			return
		}

	case ws.ActionSubmit:
		// The result itself is pushed by the OnResult hook.
		if _, err := s.Submit(ctx); err != nil {
			r.fail(err)
			return
		}

	case ws.ActionSignal:
		sig, ok := assessment.ParseSignal(msg.Name)
		if !ok {
			_ = r.conn.WriteError("unknown signal: " + msg.Name)
			return
		}
		r.relay.Publish(sig)
		return

	case ws.ActionRetry:
		if s.Result() == nil {
			_ = r.conn.WriteError("the current attempt has not been submitted")
			return
		}
		// The retry attempt is registered by the next start.
		r.mu.Lock()
		r.session, r.pending, r.retry = nil, s.Exam(), true
		r.mu.Unlock()

	case ws.ActionPing:
		_ = r.conn.WriteEvent(ws.EventPong)
		return

	default:
		r.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = r.conn.WriteError("unknown action: " + string(msg.Action))
		return
	}

	r.sendState()
}

func (r *sessionRunner) sendState() {
	r.mu.Lock()
	s, pending := r.session, r.pending
	r.mu.Unlock()

	var state assessment.Snapshot
	if s != nil {
		state = s.Snapshot()
	} else {
		state = assessment.Preview(pending, r.local)
	}
	_ = r.conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: state})
}

// fail reports a rejected action. Session errors are sentinel values whose
// text is safe to show to the learner.
func (r *sessionRunner) fail(err error) {
	for _, known := range []error{
		assessment.ErrAlreadyStarted,
		assessment.ErrNotActive,
		assessment.ErrUnknownQuestion,
		assessment.ErrInvalidOption,
		assessment.ErrNotReached,
		assessment.ErrSubmitNotAllowed,
		assessment.ErrExamUnavailable,
		assessment.ErrStartFailed,
		assessment.ErrInvalidExam,
		assessment.ErrInvalidQuestion,
	} {
		if errors.Is(err, known) {
			_ = r.conn.WriteError(known.Error())
			return
		}
	}
	r.log.Error().Err(err).Msg("Session action failed")
	_ = r.conn.WriteError("internal error")
}
