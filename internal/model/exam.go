package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam definition authored by an examiner.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	ExaminerID      uuid.UUID `json:"examinerId"`
	DurationSeconds int       `json:"durationSeconds"`
	MaxWarnings     int       `json:"maxWarnings"`
	QuestionCount   int       `json:"questionCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CreateExamRequest is the payload for creating a new exam.
// Zero DurationSeconds and MaxWarnings fall back to the server defaults.
type CreateExamRequest struct {
	Title           string                  `json:"title" binding:"required,min=3,max=255"`
	Description     string                  `json:"description" binding:"omitempty,max=2000"`
	DurationSeconds int                     `json:"durationSeconds" binding:"omitempty,min=1,max=86400"`
	MaxWarnings     int                     `json:"maxWarnings" binding:"omitempty,min=1,max=20"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"omitempty,dive"`
}

// ExamPaper is the Redis-cached payload sent to students (no correct answers).
type ExamPaper struct {
	ExamID          uuid.UUID            `json:"examId"`
	Title           string               `json:"title"`
	DurationSeconds int                  `json:"durationSeconds"`
	MaxWarnings     int                  `json:"maxWarnings"`
	Questions       []QuestionForStudent `json:"questions"`
}
