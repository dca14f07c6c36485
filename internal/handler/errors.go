package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// failWithError maps domain errors onto the response envelope.
func failWithError(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, proctor.ErrValidation):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"detail": err.Error()})
	case errors.Is(err, proctor.ErrUnknownQuestion):
		response.Fail(c, http.StatusNotFound, response.ErrUnknownQuestion)
	case errors.Is(err, proctor.ErrSessionNotFound),
		errors.Is(err, service.ErrExamNotFound),
		errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, proctor.ErrSessionNotActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
	case errors.Is(err, proctor.ErrAlreadyStarted):
		response.Fail(c, http.StatusConflict, response.ErrSessionAlreadyActive)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// parseID reads a UUID route param, answering 400 when malformed.
func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// authorizeSession restricts students to their own sessions for routes that
// carry the session id in the body.
func authorizeSession(c *gin.Context, log zerolog.Logger, proctorService *service.ProctorService, sessionID uuid.UUID) bool {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return false
	}
	if claims.Role == model.RoleExaminer {
		return true
	}

	owner, err := proctorService.Owner(c.Request.Context(), sessionID)
	if err != nil {
		failWithError(c, log, err)
		return false
	}
	if owner != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
		return false
	}
	return true
}
