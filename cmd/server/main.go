package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/broker"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/telemetry"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Int("max_warnings", cfg.MaxWarnings).
		Dur("exam_duration", cfg.ExamDuration).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Tracing ───────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool, rdb)
	identityRepo := repository.NewIdentityRepository(pool)
	dashboardRepo := repository.NewDashboardRepository(pool)

	// ─── Proctoring Engine ─────────────────────────────────────────────
	defaults := proctor.Settings{
		MaxWarnings:    cfg.MaxWarnings,
		Duration:       cfg.ExamDuration,
		TimerTick:      cfg.TimerTick,
		MotionInterval: cfg.MotionCheckInterval,
	}

	authService := service.NewAuthService(cfg)
	examService := service.NewExamService(examRepo, questionRepo, rdb, defaults, log)

	manager := proctor.NewManager(proctor.Deps{
		Bank:     examService,
		Camera:   broker.NewRedisCamera(rdb, 24*time.Hour+cfg.SessionRetention),
		Notifier: broker.NewRedisNotifier(rdb, cfg.PersistTimeout, log),
		Journal:  broker.NewRedisJournal(rdb, cfg.PersistTimeout),
		Motion:   proctor.NewRandomMotionDetector(cfg.MotionProbability, uint64(time.Now().UnixNano())),
		Log:      log,
	}, defaults, cfg.SessionRetention)

	proctorService := service.NewProctorService(manager, sessionRepo, historyRepo, examService, monitorRepo, log)
	dashboardService := service.NewDashboardService(dashboardRepo, monitorRepo, manager.Len)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(identityRepo),
		Session:   handler.NewSessionHandler(proctorService, log),
		Violation: handler.NewViolationHandler(proctorService, log),
		Answer:    handler.NewAnswerHandler(proctorService, log),
		Recording: handler.NewRecordingHandler(proctorService, log),
		Exam:      handler.NewExamHandler(examService, log),
		Question:  handler.NewQuestionHandler(examService, log),
		Monitor:   handler.NewMonitorHandler(rdb, examService, proctorService, cfg.MonitorRefreshInterval, log),
		Dashboard: handler.NewDashboardHandler(dashboardService, log),
		WS:        handler.NewWSHandler(rdb, proctorService, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(map[string]handler.Pinger{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, monitorRepo, manager.Len, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	run := func(start func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			start(workerCtx)
		}()
	}

	sessionWorker := worker.NewSessionWorker(pool, rdb, cfg.PersistMaxAttempts, log)
	warningWorker := worker.NewWarningWorker(pool, rdb, cfg.PersistMaxAttempts, log)
	answerWorker := worker.NewAnswerWorker(pool, rdb, cfg.PersistMaxAttempts, log)
	recordingWorker := worker.NewRecordingWorker(pool, rdb, cfg.PersistMaxAttempts, log)

	run(sessionWorker.Start)
	run(warningWorker.Start)
	run(answerWorker.Start)
	run(recordingWorker.Start)
	run(manager.Run)

	// Terminal statuses and warnings journaled before the last stop must reach
	// PostgreSQL before the ACTIVE rows are read back.
	if err := worker.WaitDrained(ctx, rdb, config.WorkerKey.Queues(), cfg.PersistDrainTimeout,
		sessionWorker, warningWorker, answerWorker, recordingWorker); err != nil {
		log.Warn().Err(err).Msg("Persistence queues not drained before resume")
	}

	// Attempts that were live when the server stopped resume their timers.
	resumed, err := proctorService.ResumeActive(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resume active sessions")
	}
	log.Info().Int("sessions", resumed).Msg("Active sessions resumed")

	limiter := middleware.NewRateLimiter(cfg.ViolationRateLimit, time.Minute)
	run(limiter.Run)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, limiter, proctorService.Owner, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop live timers without finalizing; persisted ACTIVE rows resume on boot.
	manager.Close()

	// 3. Stop background workers and wait for buffered writes to flush.
	workerCancel()
	workers.Wait()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Tracing shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
