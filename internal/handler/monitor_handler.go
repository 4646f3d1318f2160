package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/middleware"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/response"
	"github.com/stemsi/shikkha-backend/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams a quiz room to its author over SSE.
type MonitorHandler struct {
	quizService     *service.QuizService
	attemptService  *service.AttemptService
	presenceService *service.PresenceService
	log             zerolog.Logger
}

func NewMonitorHandler(
	quizService *service.QuizService,
	attemptService *service.AttemptService,
	presenceService *service.PresenceService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		quizService:     quizService,
		attemptService:  attemptService,
		presenceService: presenceService,
		log:             log.With().Str("component", "monitor_handler").Logger(),
	}
}

type monitorSnapshot struct {
	Type           string    `json:"type"`
	QuizID         uuid.UUID `json:"quiz_id"`
	Title          string    `json:"title"`
	QuestionCount  int       `json:"question_count"`
	TotalPoints    int       `json:"total_points"`
	ActiveAttempts int       `json:"active_attempts"`
}

// MonitorQuizSSE godoc
// GET /api/v1/quizzes/:quiz_id/monitor
// Sends a snapshot, then relays room events as they happen.
func (h *MonitorHandler) MonitorQuizSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	q, err := h.quizService.Get(reqCtx, quizID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if claims.Role != model.RoleAdmin && q.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	snapshot, _ := json.Marshal(monitorSnapshot{
		Type:           "snapshot",
		QuizID:         quizID,
		Title:          q.Title,
		QuestionCount:  len(q.Questions),
		TotalPoints:    q.TotalPoints(),
		ActiveAttempts: h.attemptService.ActiveCount(quizID),
	})
	writeSSE(c, snapshot)

	pubsub := h.presenceService.Subscribe(reqCtx, quizID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("quiz_id", quizID.String()).Msg("Author attached to quiz monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("quiz_id", quizID.String()).Msg("Author detached from quiz monitor")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payload is already JSON.
			writeSSE(c, []byte(msg.Payload))
		case <-keepAlive.C:
			writeSSE(c, pingPayload)
		}
	}
}

func writeSSE(c *gin.Context, data []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
