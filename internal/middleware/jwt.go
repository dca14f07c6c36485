package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// ContextKeyClaims is the Gin context key holding *service.Claims.
const ContextKeyClaims = "claims"

// RequireJWT authenticates the caller from a bearer token. GET requests may
// pass ?token= instead, since EventSource and WebSocket clients cannot set
// headers.
func RequireJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(raw)
		if err != nil {
			code := response.ErrTokenInvalid
			if errors.Is(err, service.ErrTokenExpired) {
				code = response.ErrTokenExpired
			}
			response.AbortFail(c, http.StatusUnauthorized, code)
			return
		}

		trace.SpanFromContext(c.Request.Context()).SetAttributes(
			attribute.String("user.role", string(claims.Role)),
			attribute.String("user.id", claims.UserID.String()),
		)
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims returns the authenticated caller, or nil before RequireJWT.
func GetClaims(c *gin.Context) *service.Claims {
	claims, _ := c.Value(ContextKeyClaims).(*service.Claims)
	return claims
}

func bearerToken(c *gin.Context) string {
	scheme, tok, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(tok)
	}
	if c.Request.Method == http.MethodGet {
		return c.Query("token")
	}
	return ""
}
