package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/middleware"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/response"
	"github.com/stemsi/shikkha-backend/internal/service"
	"github.com/stemsi/shikkha-backend/internal/validator"
)

// AttemptHandler drives an interactive attempt over REST. Every route is
// scoped to the caller; other users' attempts are reported as not found.
type AttemptHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// attemptScope resolves the caller and the :attempt_id param.
func attemptScope(c *gin.Context) (attemptID, actorID uuid.UUID, ok bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, uuid.Nil, false
	}
	attemptID, ok = uuidParam(c, "attempt_id")
	return attemptID, claims.UserID, ok
}

// Get godoc
// GET /api/v1/attempts/:attempt_id
func (h *AttemptHandler) Get(c *gin.Context) {
	attemptID, actorID, ok := attemptScope(c)
	if !ok {
		return
	}

	view, err := h.attemptService.Get(attemptID, actorID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// Current godoc
// GET /api/v1/attempts/:attempt_id/question
func (h *AttemptHandler) Current(c *gin.Context) {
	attemptID, actorID, ok := attemptScope(c)
	if !ok {
		return
	}

	q, err := h.attemptService.Current(attemptID, actorID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// Navigate godoc
// POST /api/v1/attempts/:attempt_id/navigate
// Body: {"delta": -1|1|n}. The position is clamped to the question range.
func (h *AttemptHandler) Navigate(c *gin.Context) {
	attemptID, actorID, ok := attemptScope(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.attemptService.Navigate(attemptID, actorID, req.Delta)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// Answer godoc
// PUT /api/v1/attempts/:attempt_id/answers/:position
// Body: {"option": n}. Re-answering overwrites the previous choice.
func (h *AttemptHandler) Answer(c *gin.Context) {
	attemptID, actorID, ok := attemptScope(c)
	if !ok {
		return
	}
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.attemptService.Answer(c.Request.Context(), attemptID, actorID, position, *req.Option)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Unanswered questions are scored as such. Submitting again returns the
// stored result.
func (h *AttemptHandler) Submit(c *gin.Context) {
	attemptID, actorID, ok := attemptScope(c)
	if !ok {
		return
	}

	res, err := h.attemptService.Submit(c.Request.Context(), attemptID, actorID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// Abandon godoc
// DELETE /api/v1/attempts/:attempt_id
// Stops the timer without scoring.
func (h *AttemptHandler) Abandon(c *gin.Context) {
	attemptID, actorID, ok := attemptScope(c)
	if !ok {
		return
	}

	if err := h.attemptService.Abandon(c.Request.Context(), attemptID, actorID); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": attemptID, "abandoned": true})
}
