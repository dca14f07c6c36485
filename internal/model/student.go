package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the identity kind carried in access tokens.
type Role string

const (
	RoleStudent  Role = "student"
	RoleExaminer Role = "examiner"
)

// Student is the identity shown next to a session in the monitor view.
type Student struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Examiner authors exams and watches their sessions.
type Examiner struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
