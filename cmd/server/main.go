package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/config"
	"github.com/stemsi/shikkha-backend/internal/database"
	"github.com/stemsi/shikkha-backend/internal/handler"
	"github.com/stemsi/shikkha-backend/internal/logger"
	"github.com/stemsi/shikkha-backend/internal/metrics"
	"github.com/stemsi/shikkha-backend/internal/middleware"
	"github.com/stemsi/shikkha-backend/internal/quiz"
	"github.com/stemsi/shikkha-backend/internal/repository"
	"github.com/stemsi/shikkha-backend/internal/router"
	"github.com/stemsi/shikkha-backend/internal/service"
	"github.com/stemsi/shikkha-backend/internal/validator"
	"github.com/stemsi/shikkha-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Shikkha Backend")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	userRepo := repository.NewUserRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)
	quizRepo := repository.NewQuizRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	quizCache := repository.NewQuizCache(rdb, quizRepo, cfg.QuizCacheTTL, log)
	resultQueue := repository.NewResultQueue(rdb)
	dashboardRepo := repository.NewDashboardRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, userRepo)
	presenceService := service.NewPresenceService(rdb, log)
	delivery := quiz.NewDelivery(quizCache, time.Now)
	attemptService := service.NewAttemptService(delivery, resultQueue, presenceService, log,
		service.WithResultLookup(resultRepo),
	)
	quizService := service.NewQuizService(quizRepo, quizCache, courseRepo, log)
	courseService := service.NewCourseService(courseRepo, log)
	userService := service.NewUserService(userRepo, courseRepo, resultRepo, log)
	dashboardService := service.NewDashboardService(dashboardRepo, attemptService)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(authService, log),
		Course:    handler.NewCourseHandler(courseService, log),
		Quiz:      handler.NewQuizHandler(quizService, attemptService, log),
		Attempt:   handler.NewAttemptHandler(attemptService, log),
		User:      handler.NewUserHandler(userService, log),
		WS:        handler.NewWSHandler(attemptService, presenceService, log, cfg.AllowedOrigins),
		Monitor:   handler.NewMonitorHandler(quizService, attemptService, presenceService, log),
		System:    handler.NewSystemHandler(pool, rdb, resultQueue, attemptService, log),
		Dashboard: handler.NewDashboardHandler(dashboardService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	resultWorker := worker.NewResultWorker(resultRepo, rdb, log)
	sweeper, err := worker.NewAttemptSweeper(attemptService, cfg.SweepSchedule, cfg.AttemptRetention, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid attempt sweep schedule")
	}
	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute)

	workers.Add(2)
	go func() { defer workers.Done(); resultWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); sweeper.Start(workerCtx) }()
	go authLimiter.Run(workerCtx.Done())

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load active quizzes before accepting traffic so the first wave of
	// attempt starts does not stampede PostgreSQL.
	if n, err := quizService.Warm(ctx); err != nil {
		log.Warn().Err(err).Msg("Quiz cache prewarm failed")
	} else {
		log.Info().Int("quizzes", n).Msg("Quiz cache prewarmed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, authLimiter, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop attempt timers so no expiry fires into a closing queue.
	attemptService.Shutdown()

	// 3. Stop background workers; the result worker flushes its batch.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
