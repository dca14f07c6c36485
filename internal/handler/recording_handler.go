package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// RecordingHandler handles examiner recording toggles.
type RecordingHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewRecordingHandler creates a new RecordingHandler.
func NewRecordingHandler(proctorService *service.ProctorService, log zerolog.Logger) *RecordingHandler {
	return &RecordingHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "recording_handler").Logger(),
	}
}

// ToggleRecording godoc
// POST /api/v1/recording
// Appends a recording segment. examinerId defaults to the caller.
func (h *RecordingHandler) ToggleRecording(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ToggleRecordingRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	examinerID := req.ExaminerID
	if examinerID == nil {
		id := claims.UserID
		examinerID = &id
	}

	seg, err := h.proctorService.ToggleRecording(c.Request.Context(), req.SessionID, examinerID, req.Status)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, seg)
}
