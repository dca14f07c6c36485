package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// SessionOwnerFunc returns the student an exam session belongs to.
type SessionOwnerFunc func(ctx context.Context, sessionID uuid.UUID) (uuid.UUID, error)

// RequireSessionOwner lets examiners through and restricts students to the
// session named by the route param.
func RequireSessionOwner(owner SessionOwnerFunc, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		sessionID, err := uuid.Parse(c.Param(param))
		if err != nil {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		if claims.Role == model.RoleExaminer {
			c.Next()
			return
		}

		studentID, err := owner(c.Request.Context(), sessionID)
		switch {
		case errors.Is(err, proctor.ErrSessionNotFound):
			response.AbortFail(c, http.StatusNotFound, response.ErrNotFound)
			return
		case err != nil:
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		case studentID != claims.UserID:
			response.AbortFail(c, http.StatusForbidden, response.ErrNotSessionOwner)
			return
		}

		c.Next()
	}
}
