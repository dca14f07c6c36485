package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler handles the exam session lifecycle endpoints.
type SessionHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(proctorService *service.ProctorService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/session/start
// Starts the single attempt of a student. Students start their own attempt;
// examiners must name the student.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	studentID := req.StudentID
	switch claims.Role {
	case model.RoleStudent:
		if studentID != uuid.Nil && studentID != claims.UserID {
			response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
			return
		}
		studentID = claims.UserID
	default:
		if studentID == uuid.Nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"studentId": "studentId is a required field"})
			return
		}
	}

	webcam := true
	if req.WebcamAvailable != nil {
		webcam = *req.WebcamAvailable
	}

	session, err := h.proctorService.StartSession(c.Request.Context(), req.ExamID, studentID, webcam)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// GetSession godoc
// GET /api/v1/session/:id
// Returns the session with score, remaining seconds and recording state.
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	detail, err := h.proctorService.Detail(c.Request.Context(), id)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

// UpdateSession godoc
// PUT /api/v1/session/:id
// Partial update: submit, terminate, webcam status. Students cannot terminate.
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if claims.Role == model.RoleStudent && req.Status != nil && *req.Status == model.SessionStatusTerminated {
		response.Fail(c, http.StatusForbidden, response.ErrExaminerAccessOnly)
		return
	}

	detail, err := h.proctorService.UpdateSession(c.Request.Context(), id, req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, detail)
}
