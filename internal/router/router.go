package router

import (
	"context"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/handler"
	"github.com/drivetheory/theory-backend/internal/middleware"
	"github.com/drivetheory/theory-backend/internal/response"
	"github.com/drivetheory/theory-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	authRequestsPerMinute = 30
	apiRequestsPerMinute  = 300

	// Exam definitions change only on import; learners may reuse them briefly.
	examCacheSeconds = 60
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Exam    *handler.ExamHandler
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the background pruning of the rate limiters.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
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

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.AccessLog(log))
	router.Use(middleware.Brotli(brotli.DefaultCompression))

	router.GET("/health", handlers.System.Health)

	authLimiter := middleware.NewRateLimiter(ctx, authRequestsPerMinute, time.Minute)
	apiLimiter := middleware.NewRateLimiter(ctx, apiRequestsPerMinute, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)

		learnerOnly := []gin.HandlerFunc{
			middleware.RequireLearnerJWT(authService),
			middleware.RequireActiveSession(authService),
		}
		auth.POST("/logout", append(learnerOnly, handlers.Auth.Logout)...)
		auth.GET("/me", append(learnerOnly, handlers.Auth.Me)...)
	}

	// ─── 2. Learner Group (JWT + Single Device) ────────────────────────
	api := router.Group("/api/v1")
	api.Use(
		middleware.RequireLearnerJWT(authService),
		middleware.RequireActiveSession(authService),
		apiLimiter.Middleware(),
	)
	{
		api.GET("/exams", handlers.Exam.ListExams)
		api.GET("/exams/:id", middleware.PrivateCache(examCacheSeconds), handlers.Exam.GetExam)

		attempts := api.Group("/exam-attempts")
		attempts.Use(middleware.NoStore())
		{
			attempts.GET("", handlers.Attempt.ListAttempts)
			attempts.POST("/start", handlers.Attempt.StartAttempt)
			attempts.POST("/submit-answer", handlers.Attempt.SubmitAnswer)
			attempts.GET("/:id", handlers.Attempt.GetAttempt)
			attempts.PUT("/:id/complete", handlers.Attempt.CompleteAttempt)
			attempts.POST("/:id/integrity-events", handlers.Attempt.ReportIntegrityEvent)
			attempts.PUT("/:id/question-order", handlers.Attempt.RecordQuestionOrder)
		}

		api.GET("/local-attempts/:id", middleware.NoStore(), handlers.Attempt.GetLocalAttempt)
	}

	// ─── 3. WebSocket Group (Learner WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireLearnerWSAuth(authService),
		middleware.RequireActiveSession(authService),
	)
	{
		ws.GET("/exams/:exam_id/session", handlers.WS.ExamSessionStream)
	}

	return router
}
