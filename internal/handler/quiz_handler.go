package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/middleware"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/response"
	"github.com/stemsi/shikkha-backend/internal/service"
	"github.com/stemsi/shikkha-backend/internal/validator"
)

// QuizHandler handles quiz authoring, listing and one-shot submission.
type QuizHandler struct {
	quizService    *service.QuizService
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(quizService *service.QuizService, attemptService *service.AttemptService, log zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		quizService:    quizService,
		attemptService: attemptService,
		log:            log.With().Str("component", "quiz_handler").Logger(),
	}
}

// Create godoc
// POST /api/v1/quizzes
// Every structural problem in the draft is reported in error.fields.
func (h *QuizHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.quizService.Create(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"quiz": q})
}

// ListAvailable godoc
// GET /api/v1/quizzes/available
func (h *QuizHandler) ListAvailable(c *gin.Context) {
	quizzes, err := h.quizService.ListAvailable(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, quizzes)
}

// ListByCourse godoc
// GET /api/v1/quizzes/course/:course_id
func (h *QuizHandler) ListByCourse(c *gin.Context) {
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}

	quizzes, err := h.quizService.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, quizzes)
}

// Get godoc
// GET /api/v1/quizzes/:quiz_id
// The author and admins receive the answer key; everyone else receives the
// student view, and only while the quiz is available.
func (h *QuizHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if claims.Role.CanAuthor() {
		q, err := h.quizService.Get(ctx, id)
		if err != nil {
			fail(c, h.log, err)
			return
		}
		if claims.Role == model.RoleAdmin || q.AuthorID == claims.UserID {
			response.Success(c, http.StatusOK, gin.H{"quiz": q})
			return
		}
	}

	view, err := h.quizService.GetForStudent(ctx, id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"quiz": view})
}

// SetActive godoc
// PATCH /api/v1/quizzes/:quiz_id/active
func (h *QuizHandler) SetActive(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	var req model.SetQuizActiveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.quizService.SetActive(c.Request.Context(), id, claims.UserID, claims.Role, *req.Active); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "is_active": *req.Active})
}

// Submit godoc
// POST /api/v1/quizzes/:quiz_id/submit
// Scores a whole attempt in one request. Sending the same attempt_id again
// does not create a second result.
func (h *QuizHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	var req model.SubmitQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attemptService.SubmitSnapshot(c.Request.Context(), quizID, claims.UserID,
		req.AttemptID, req.Answers, req.ElapsedSeconds)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// StartAttempt godoc
// POST /api/v1/quizzes/:quiz_id/attempts
// Starts the countdown. Returns the attempt already in progress, if any.
func (h *QuizHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	view, err := h.attemptService.Start(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"attempt": view})
}
