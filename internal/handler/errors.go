package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/quiz"
	"github.com/stemsi/shikkha-backend/internal/repository"
	"github.com/stemsi/shikkha-backend/internal/response"
	"github.com/stemsi/shikkha-backend/internal/service"
)

// classify maps a domain error to its HTTP status and error code.
// Unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		return http.StatusNotFound, response.ErrQuizNotFound
	case errors.Is(err, quiz.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound
	case errors.Is(err, quiz.ErrNotAvailable):
		return http.StatusConflict, response.ErrQuizNotAvailable
	case errors.Is(err, quiz.ErrOutOfRange):
		return http.StatusBadRequest, response.ErrOutOfRange
	case errors.Is(err, quiz.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, quiz.ErrNotStarted):
		return http.StatusConflict, response.ErrNotStarted
	case errors.Is(err, service.ErrAttemptAbandoned):
		return http.StatusConflict, response.ErrAttemptAbandoned
	case errors.Is(err, service.ErrAttemptIDTaken):
		return http.StatusConflict, response.ErrAttemptIDTaken
	case errors.Is(err, service.ErrResultNotSaved):
		return http.StatusServiceUnavailable, response.ErrResultNotSaved

	case errors.Is(err, service.ErrNotQuizAuthor):
		return http.StatusForbidden, response.ErrNotQuizAuthor
	case errors.Is(err, service.ErrRoleNotAllowed):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrCourseNotFound):
		return http.StatusNotFound, response.ErrCourseNotFound
	case errors.Is(err, service.ErrAlreadyEnrolled):
		return http.StatusConflict, response.ErrAlreadyEnrolled
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound

	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, response.ErrEmailTaken
	case errors.Is(err, service.ErrSessionInvalidated):
		return http.StatusUnauthorized, response.ErrSessionInvalidated
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// fail writes the envelope for err. Quiz validation errors carry every
// violation as a field; internal errors are logged.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	var verr *quiz.ValidationError
	if errors.As(err, &verr) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, verr.Fields())
		return
	}

	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
