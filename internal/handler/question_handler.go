package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// QuestionHandler serves exam questions.
type QuestionHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(examService *service.ExamService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		examService: examService,
		log:         log.With().Str("component", "question_handler").Logger(),
	}
}

// GetPaper godoc
// GET /api/v1/exams/:id/paper
// Returns the student-facing paper without correct answers.
func (h *QuestionHandler) GetPaper(c *gin.Context) {
	examID, ok := parseID(c, "id")
	if !ok {
		return
	}

	paper, err := h.examService.Paper(c.Request.Context(), examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// ListQuestions godoc
// GET /api/v1/exams/:id/questions
// Lists all questions of an exam with their answer key.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	examID, ok := parseID(c, "id")
	if !ok {
		return
	}

	questions, err := h.examService.Questions(c.Request.Context(), examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}
