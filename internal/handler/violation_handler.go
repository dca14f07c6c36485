package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// ViolationHandler handles violation reports and their history.
type ViolationHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewViolationHandler creates a new ViolationHandler.
func NewViolationHandler(proctorService *service.ProctorService, log zerolog.Logger) *ViolationHandler {
	return &ViolationHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "violation_handler").Logger(),
	}
}

// ReportViolation godoc
// POST /api/v1/warning
// Counts one violation. The outcome tells whether it warned, terminated or
// was suppressed at the cap.
func (h *ViolationHandler) ReportViolation(c *gin.Context) {
	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if !authorizeSession(c, h.log, h.proctorService, req.SessionID) {
		return
	}

	result, err := h.proctorService.ReportViolation(c.Request.Context(), req.SessionID, req.Type, req.Description)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if result.Warning == nil {
		status = http.StatusOK
	}
	response.Success(c, status, result)
}

// ListWarnings godoc
// GET /api/v1/warnings/:sessionId
// Lists a session's warnings, newest first.
func (h *ViolationHandler) ListWarnings(c *gin.Context) {
	id, ok := parseID(c, "sessionId")
	if !ok {
		return
	}

	warnings, err := h.proctorService.Warnings(c.Request.Context(), id)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"warnings": warnings})
}
