package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func token(t *testing.T, auth *service.AuthService, role model.Role, id uuid.UUID) string {
	t.Helper()
	tok, err := auth.GenerateToken(role, id)
	require.NoError(t, err)
	return tok
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireJWTAndRole(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.GET("/monitor", RequireJWT(auth), RequireRole(model.RoleExaminer), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).UserID.String())
	})

	examiner := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/monitor", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/monitor", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/monitor", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth, model.RoleStudent, uuid.New()))
	w := serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "EXAMINER_ACCESS_ONLY")

	req = httptest.NewRequest(http.MethodGet, "/monitor?token="+token(t, auth, model.RoleExaminer, examiner), nil)
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, examiner.String(), w.Body.String())
}

func TestRequireSessionOwner(t *testing.T) {
	auth := newAuth()
	student := uuid.New()
	session := uuid.New()
	owner := func(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
		if id == session {
			return student, nil
		}
		return uuid.Nil, proctor.ErrSessionNotFound
	}

	r := gin.New()
	r.GET("/session/:id", RequireJWT(auth), RequireSessionOwner(owner, "id"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name string
		path string
		tok  string
		want int
	}{
		{"owner", "/session/" + session.String(), token(t, auth, model.RoleStudent, student), http.StatusOK},
		{"other student", "/session/" + session.String(), token(t, auth, model.RoleStudent, uuid.New()), http.StatusForbidden},
		{"examiner", "/session/" + session.String(), token(t, auth, model.RoleExaminer, uuid.New()), http.StatusOK},
		{"unknown", "/session/" + uuid.NewString(), token(t, auth, model.RoleStudent, student), http.StatusNotFound},
		{"bad id", "/session/nope", token(t, auth, model.RoleStudent, student), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+tc.tok)
			assert.Equal(t, tc.want, serve(r, req).Code)
		})
	}
}

func TestRateLimiterKeysByUser(t *testing.T) {
	auth := newAuth()
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/warning", RequireJWT(auth), rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	alice := token(t, auth, model.RoleStudent, uuid.New())
	bob := token(t, auth, model.RoleStudent, uuid.New())

	do := func(tok string) int {
		req := httptest.NewRequest(http.MethodPost, "/warning", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusOK, do(alice))
	assert.Equal(t, http.StatusOK, do(alice))
	assert.Equal(t, http.StatusTooManyRequests, do(alice))
	assert.Equal(t, http.StatusOK, do(bob))

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, do(alice))
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	r := gin.New()
	r.Use(Brotli(64))
	big := strings.Repeat("exam ", 100)
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := serve(r, req)
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(w.Body))
	require.NoError(t, err)
	assert.Equal(t, big, string(body))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestBrotliSkipsEventStreams(t *testing.T) {
	r := gin.New()
	r.Use(Brotli(1))
	r.GET("/stream", func(c *gin.Context) { c.String(http.StatusOK, "data: hi\n\n") })

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("Accept", "text/event-stream")
	w := serve(r, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "data: hi\n\n", w.Body.String())
}

func TestAccessLogRecordsStatusAndCaller(t *testing.T) {
	var buf strings.Builder
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	auth := newAuth()
	student := uuid.New()
	r := gin.New()
	r.Use(AccessLog(log))
	r.GET("/answers/:id", RequireJWT(auth), func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/answers/x", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth, model.RoleStudent, student))
	serve(r, req)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"status":404`)
	assert.Contains(t, out, `"route":"/answers/:id"`)
	assert.Contains(t, out, student.String())
}
