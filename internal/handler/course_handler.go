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

// CourseHandler handles the course catalog and enrollment.
type CourseHandler struct {
	courseService *service.CourseService
	log           zerolog.Logger
}

// NewCourseHandler creates a new CourseHandler.
func NewCourseHandler(courseService *service.CourseService, log zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		courseService: courseService,
		log:           log.With().Str("component", "course_handler").Logger(),
	}
}

type listCoursesQuery struct {
	Page     int               `form:"page" binding:"omitempty,min=1"`
	PerPage  int               `form:"per_page" binding:"omitempty,min=1,max=100"`
	Category string            `form:"category" binding:"omitempty,max=100"`
	Level    model.CourseLevel `form:"level" binding:"omitempty,oneof=beginner intermediate advanced"`
}

// List godoc
// GET /api/v1/courses?page=&per_page=&category=&level=
// Lists published courses.
func (h *CourseHandler) List(c *gin.Context) {
	var q listCoursesQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	courses, pagination, err := h.courseService.ListPublished(c.Request.Context(),
		model.CourseFilter{Category: q.Category, Level: q.Level}, q.Page, q.PerPage)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, courses, pagination)
}

// Get godoc
// GET /api/v1/courses/:course_id
func (h *CourseHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}

	course, err := h.courseService.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"course":                 course,
		"total_duration_minutes": course.TotalDurationMinutes(),
	})
}

// Create godoc
// POST /api/v1/courses
// Teachers and admins only.
func (h *CourseHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateCourseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	course, err := h.courseService.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"course": course})
}

// Enroll godoc
// POST /api/v1/courses/:course_id/enroll
func (h *CourseHandler) Enroll(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}

	enrollment, err := h.courseService.Enroll(c.Request.Context(), id, claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"enrollment": enrollment})
}
