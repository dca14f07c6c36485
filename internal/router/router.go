package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Session   *handler.SessionHandler
	Violation *handler.ViolationHandler
	Answer    *handler.AnswerHandler
	Recording *handler.RecordingHandler
	Exam      *handler.ExamHandler
	Question  *handler.QuestionHandler
	Monitor   *handler.MonitorHandler
	Dashboard *handler.DashboardHandler
	WS        *handler.WSHandler
	System    *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter throttles violation reports; owner resolves session ownership.
func SetupRouter(
	authService *service.AuthService,
	limiter *middleware.RateLimiter,
	owner middleware.SessionOwnerFunc,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so every response, including errors, carries metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.AccessLog(log))
	router.Use(middleware.Brotli(cfg.CompressionMinBytes))

	router.GET("/health", middleware.NoStore(), handlers.System.Health)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(authService), middleware.NoStore())

	// ─── 1. Identity ───────────────────────────────────────────────────
	api.GET("/auth/me", handlers.Auth.Me)

	// ─── 2. Session lifecycle (students and examiners) ─────────────────
	api.POST("/session/start", handlers.Session.StartSession)
	api.GET("/session/:id", middleware.RequireSessionOwner(owner, "id"), handlers.Session.GetSession)
	api.PUT("/session/:id", middleware.RequireSessionOwner(owner, "id"), handlers.Session.UpdateSession)

	api.POST("/warning", limiter.Middleware(), handlers.Violation.ReportViolation)
	api.GET("/warnings/:sessionId", middleware.RequireSessionOwner(owner, "sessionId"), handlers.Violation.ListWarnings)

	api.POST("/answer", handlers.Answer.SubmitAnswer)
	api.GET("/answers/:sessionId", middleware.RequireSessionOwner(owner, "sessionId"), handlers.Answer.GetAnswers)

	api.GET("/exams", handlers.Exam.ListExams)
	api.GET("/exams/:id", handlers.Exam.GetExam)

	// Overrides NoStore: the paper does not change once the exam exists.
	api.GET("/exams/:id/paper", middleware.CacheControl(300), handlers.Question.GetPaper)

	// ─── 3. Examiner Group ─────────────────────────────────────────────
	examiner := api.Group("")
	examiner.Use(middleware.RequireRole(model.RoleExaminer))
	{
		examiner.POST("/exam", handlers.Exam.CreateExam)
		examiner.GET("/exams/:id/questions", handlers.Question.ListQuestions)

		examiner.POST("/recording", handlers.Recording.ToggleRecording)

		examiner.GET("/sessions/:examId", handlers.Monitor.ListSessions)
		examiner.GET("/sessions/:examId/stream", handlers.Monitor.StreamSessions)

		examiner.GET("/dashboard", handlers.Dashboard.Overview)
		examiner.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 4. WebSocket Group (token via query) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireJWT(authService), middleware.RequireRole(model.RoleStudent))
	{
		ws.GET("/session/:id/stream", handlers.WS.SessionStream)
	}

	return router
}
