package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/middleware"
	"github.com/stemsi/shikkha-backend/internal/response"
	"github.com/stemsi/shikkha-backend/internal/service"
	ws "github.com/stemsi/shikkha-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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

// WSHandler serves the interactive attempt stream and the quiz room feed.
type WSHandler struct {
	attemptService  *service.AttemptService
	presenceService *service.PresenceService
	log             zerolog.Logger
	upgrader        websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attemptService *service.AttemptService,
	presenceService *service.PresenceService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		attemptService:  attemptService,
		presenceService: presenceService,
		log:             log.With().Str("component", "ws_handler").Logger(),
		upgrader:        buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream?token=
// Answers, navigation and submission for one attempt. A graded event is
// pushed when the attempt is submitted, including by timer expiry.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}
	actorID := claims.UserID

	// Ownership is checked before the upgrade so strangers get a plain 404.
	view, err := h.attemptService.Get(attemptID, actorID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	settled, err := h.attemptService.Done(attemptID, actorID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("attempt_id", attemptID.String()).
		Str("actor_id", actorID.String()).
		Logger()
	wsLog.Info().Msg("Attempt stream connected")

	if err := conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Attempt: view}); err != nil {
		return
	}

	closed := make(chan struct{})
	defer close(closed)
	go h.pushGraded(conn, wsLog, attemptID, actorID, settled, closed)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(c, conn, attemptID, actorID, data)
		case ws.ActionNavigate:
			h.handleNavigate(conn, attemptID, actorID, data)
		case ws.ActionSubmit:
			h.handleSubmit(c, conn, attemptID, actorID)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action")
		}
	}
}

func (h *WSHandler) handleAnswer(c *gin.Context, conn *ws.Conn, attemptID, actorID uuid.UUID, data []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed answer")
		return
	}

	view, err := h.attemptService.Answer(c.Request.Context(), attemptID, actorID, req.Position, req.Option)
	if err != nil {
		writeDomainError(conn, err)
		return
	}
	_ = conn.WriteTyped(ws.SavedResponse{
		Event:         ws.EventSaved,
		Position:      req.Position,
		Option:        req.Option,
		AnsweredCount: view.AnsweredCount,
	})
}

func (h *WSHandler) handleNavigate(conn *ws.Conn, attemptID, actorID uuid.UUID, data []byte) {
	var req ws.NavigateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed navigate")
		return
	}

	q, err := h.attemptService.Navigate(attemptID, actorID, req.Delta)
	if err != nil {
		writeDomainError(conn, err)
		return
	}
	_ = conn.WriteTyped(ws.QuestionResponse{Event: ws.EventQuestion, Question: q})
}

// handleSubmit only reports failures; the graded event comes from pushGraded.
func (h *WSHandler) handleSubmit(c *gin.Context, conn *ws.Conn, attemptID, actorID uuid.UUID) {
	_, err := h.attemptService.Submit(c.Request.Context(), attemptID, actorID)
	if err != nil && !errors.Is(err, service.ErrResultNotSaved) {
		writeDomainError(conn, err)
	}
}

// pushGraded waits for the attempt to settle and sends its result once.
func (h *WSHandler) pushGraded(conn *ws.Conn, log zerolog.Logger, attemptID, actorID uuid.UUID, settled <-chan struct{}, closed <-chan struct{}) {
	select {
	case <-closed:
		return
	case <-settled:
	}

	res, err := h.attemptService.Result(attemptID, actorID)
	if res == nil {
		log.Warn().Err(err).Msg("Settled attempt has no result")
		return
	}
	if err := conn.WriteTyped(ws.GradedResponse{Event: ws.EventGraded, Result: res, Saved: err == nil}); err != nil {
		log.Debug().Err(err).Msg("Graded push failed")
		return
	}
	log.Info().Str("reason", string(res.Reason)).Int("percentage", res.Percentage).Msg("Graded event pushed")
}

func writeDomainError(conn *ws.Conn, err error) {
	_, code := classify(err)
	_ = conn.WriteError(string(code), response.GetMessage(code))
}

// QuizRoom godoc
// WS /ws/v1/quizzes/:quiz_id/room?token=
// Read-only feed of presence events for one quiz. Events never include
// selected options or the answer key.
func (h *WSHandler) QuizRoom(c *gin.Context) {
	if middleware.GetClaims(c) == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	ctx := c.Request.Context()
	pubsub := h.presenceService.Subscribe(ctx, quizID)
	defer pubsub.Close()

	// Drain client frames so close and ping frames are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env ws.RequestEnvelope
			if json.Unmarshal(data, &env) == nil && env.Action == ws.ActionPing {
				_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
			}
		}
	}()

	h.log.Debug().Str("quiz_id", quizID.String()).Msg("Room observer connected")
	ch := pubsub.Channel()
	for {
		select {
		case <-gone:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteTyped(ws.PresenceResponse{
				Event:    ws.EventPresence,
				Presence: json.RawMessage(msg.Payload),
			}); err != nil {
				return
			}
		}
	}
}
