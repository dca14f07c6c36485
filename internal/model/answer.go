package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is the current answer of one question within a session.
// IsCorrect and Marks are always computed server-side.
type Answer struct {
	SessionID    uuid.UUID `json:"sessionId"`
	QuestionID   uuid.UUID `json:"questionId"`
	QuestionText string    `json:"questionText"`
	AnswerText   string    `json:"answerText"`
	IsCorrect    bool      `json:"isCorrect"`
	Marks        int       `json:"marks"`
	Timestamp    time.Time `json:"timestamp"`
}

// SubmitAnswerRequest is the payload for POST /answer.
// QuestionText, IsCorrect and Marks are accepted for compatibility and ignored.
type SubmitAnswerRequest struct {
	SessionID    uuid.UUID `json:"sessionId" binding:"required"`
	QuestionID   uuid.UUID `json:"questionId" binding:"required"`
	QuestionText string    `json:"questionText" binding:"omitempty,max=2000"`
	AnswerText   string    `json:"answerText" binding:"required,max=500"`
	IsCorrect    *bool     `json:"isCorrect"`
	Marks        *int      `json:"marks"`
}

// AnswerSheet is a session's answer history with derived totals.
type AnswerSheet struct {
	SessionID uuid.UUID `json:"sessionId"`
	Answers   []Answer  `json:"answers"`
	Score     int       `json:"score"`
	Correct   int       `json:"correct"`
	Wrong     int       `json:"wrong"`
}

// NewAnswerSheet sums marks over the current answers.
func NewAnswerSheet(sessionID uuid.UUID, answers []Answer) AnswerSheet {
	sheet := AnswerSheet{SessionID: sessionID, Answers: answers}
	if sheet.Answers == nil {
		sheet.Answers = []Answer{}
	}
	for _, a := range answers {
		sheet.Score += a.Marks
		if a.IsCorrect {
			sheet.Correct++
		} else {
			sheet.Wrong++
		}
	}
	return sheet
}
