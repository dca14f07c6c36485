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

// AnswerHandler handles answer submission and the answer sheet.
type AnswerHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewAnswerHandler creates a new AnswerHandler.
func NewAnswerHandler(proctorService *service.ProctorService, log zerolog.Logger) *AnswerHandler {
	return &AnswerHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "answer_handler").Logger(),
	}
}

// SubmitAnswer godoc
// POST /api/v1/answer
// Grades the answer against the exam key. Client-sent isCorrect and marks are ignored.
func (h *AnswerHandler) SubmitAnswer(c *gin.Context) {
	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if !authorizeSession(c, h.log, h.proctorService, req.SessionID) {
		return
	}

	answer, err := h.proctorService.SubmitAnswer(c.Request.Context(), req.SessionID, req.QuestionID, req.AnswerText)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, answer)
}

// GetAnswers godoc
// GET /api/v1/answers/:sessionId
// Returns the current answers with score and correct/wrong counts.
func (h *AnswerHandler) GetAnswers(c *gin.Context) {
	id, ok := parseID(c, "sessionId")
	if !ok {
		return
	}

	sheet, err := h.proctorService.Answers(c.Request.Context(), id)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, sheet)
}
