package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/shikkha-backend/internal/config"
	"github.com/stemsi/shikkha-backend/internal/handler"
	"github.com/stemsi/shikkha-backend/internal/metrics"
	"github.com/stemsi/shikkha-backend/internal/middleware"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/response"
	"github.com/stemsi/shikkha-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Course    *handler.CourseHandler
	Quiz      *handler.QuizHandler
	Attempt   *handler.AttemptHandler
	User      *handler.UserHandler
	WS        *handler.WSHandler
	Monitor   *handler.MonitorHandler
	System    *handler.SystemHandler
	Dashboard *handler.DashboardHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	authLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when set; allow all otherwise so dev
	// works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	authed := []gin.HandlerFunc{
		middleware.RequireAuth(authService),
		middleware.RequireActiveSession(authService),
	}
	authors := middleware.RequireRole(model.RoleTeacher, model.RoleAdmin)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", authLimiter.Middleware(), handlers.Auth.Register)
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)

		auth.GET("/me", append(authed, handlers.Auth.Me)...)
		auth.POST("/logout", append(authed, handlers.Auth.Logout)...)
	}

	// ─── 2. Course Catalog ─────────────────────────────────────────────
	courses := router.Group("/api/v1/courses")
	{
		courses.GET("", middleware.CacheControl(60), handlers.Course.List)
		courses.GET("/:course_id", middleware.CacheControl(60), handlers.Course.Get)

		courses.POST("", append(authed, authors, handlers.Course.Create)...)
		courses.POST("/:course_id/enroll", append(authed, handlers.Course.Enroll)...)
	}

	// ─── 3. Quizzes (JWT + Session) ────────────────────────────────────
	quizzes := router.Group("/api/v1/quizzes")
	quizzes.Use(authed...)
	quizzes.Use(middleware.NoStore())
	{
		quizzes.POST("", authors, handlers.Quiz.Create)
		quizzes.GET("/available", handlers.Quiz.ListAvailable)
		quizzes.GET("/course/:course_id", handlers.Quiz.ListByCourse)
		quizzes.GET("/:quiz_id", handlers.Quiz.Get)
		quizzes.PATCH("/:quiz_id/active", authors, handlers.Quiz.SetActive)
		quizzes.POST("/:quiz_id/submit", handlers.Quiz.Submit)
		quizzes.POST("/:quiz_id/attempts", handlers.Quiz.StartAttempt)
		quizzes.GET("/:quiz_id/monitor", authors, handlers.Monitor.MonitorQuizSSE)
	}

	// ─── 4. Attempts (owner only) ──────────────────────────────────────
	attempts := router.Group("/api/v1/attempts")
	attempts.Use(authed...)
	attempts.Use(middleware.NoStore())
	{
		attempts.GET("/:attempt_id", handlers.Attempt.Get)
		attempts.GET("/:attempt_id/question", handlers.Attempt.Current)
		attempts.POST("/:attempt_id/navigate", handlers.Attempt.Navigate)
		attempts.PUT("/:attempt_id/answers/:position", handlers.Attempt.Answer)
		attempts.POST("/:attempt_id/submit", handlers.Attempt.Submit)
		attempts.DELETE("/:attempt_id", handlers.Attempt.Abandon)
	}

	// ─── 5. Dashboard ──────────────────────────────────────────────────
	users := router.Group("/api/v1/users")
	users.Use(authed...)
	users.Use(middleware.NoStore())
	{
		users.GET("/profile", handlers.User.GetProfile)
		users.PUT("/profile", handlers.User.UpdateProfile)
		users.GET("/stats", handlers.User.Stats)
		users.GET("/courses", handlers.User.Courses)
		users.GET("/quiz-history", handlers.User.QuizHistory)
		users.GET("/activity", handlers.User.Activity)
	}

	// ─── 6. Admin ──────────────────────────────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(authed...)
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	{
		admin.GET("/dashboard", handlers.Dashboard.GetDashboardData)
		admin.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 7. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(authed...)
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
		ws.GET("/quizzes/:quiz_id/room", handlers.WS.QuizRoom)
	}

	return router
}
