package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// ProfileStore looks up the identity behind a token.
type ProfileStore interface {
	GetStudentByID(ctx context.Context, id uuid.UUID) (*model.Student, error)
	GetExaminerByID(ctx context.Context, id uuid.UUID) (*model.Examiner, error)
}

// AuthHandler handles identity endpoints. Tokens are issued out of band.
type AuthHandler struct {
	profiles ProfileStore
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(profiles ProfileStore) *AuthHandler {
	return &AuthHandler{profiles: profiles}
}

// Me godoc
// GET /api/v1/auth/me
// Returns the profile of the authenticated student or examiner.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctx := c.Request.Context()
	switch claims.Role {
	case model.RoleStudent:
		student, err := h.profiles.GetStudentByID(ctx, claims.UserID)
		if err != nil {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"role": claims.Role, "student": student})
	case model.RoleExaminer:
		examiner, err := h.profiles.GetExaminerByID(ctx, claims.UserID)
		if err != nil {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"role": claims.Role, "examiner": examiner})
	default:
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	}
}
