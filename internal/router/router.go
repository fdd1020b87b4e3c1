package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/handler"
	"github.com/stemsi/exstem-attempts/internal/middleware"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt  *handler.AttemptHandler
	LateCode *handler.LateCodeHandler
	WS       *handler.WSHandler
	Monitor  *handler.MonitorHandler
	System   *handler.SystemHandler
}

// Limiters groups rate limiters that need a sweeper running alongside the
// server.
type Limiters struct {
	LateCodeCheck *middleware.RateLimiter
}

// NewLimiters builds the rate limiters from config.
func NewLimiters(cfg *config.Config) *Limiters {
	return &Limiters{
		LateCodeCheck: middleware.NewRateLimiter(cfg.LateCodeCheckRate, time.Minute, middleware.ByUserOrIP),
	}
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiters *Limiters,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.Use(middleware.Compress(cfg.CompressQuality, cfg.CompressMinLength))

	router.GET("/health", handlers.System.Health)

	// ─── 1. Student Group (Student JWT) ────────────────────────────────
	student := router.Group("/api/v1/student")
	student.Use(middleware.RequireStudentJWT(authService))
	{
		student.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)
		student.POST("/exams/:exam_id/late-codes/check",
			limiters.LateCodeCheck.Middleware(),
			handlers.LateCode.Check,
		)

		attempts := student.Group("/attempts/:attempt_id")
		{
			attempts.GET("", handlers.Attempt.GetAttempt)
			attempts.POST("/resume", handlers.Attempt.ResumeAttempt)
			attempts.PUT("/responses/:question_id", handlers.Attempt.SaveDraft)
			attempts.POST("/anticheat", handlers.Attempt.RecordAntiCheat)
			attempts.POST("/submit", handlers.Attempt.SubmitAttempt)
		}
	}

	// ─── 2. Staff Group (Staff JWT + RBAC) ─────────────────────────────
	staff := router.Group("/api/v1/staff")
	staff.Use(middleware.RequireStaffJWT(authService))
	{
		codes := staff.Group("")
		codes.Use(middleware.RequireAnyPermission(model.PermissionLateCodesIssue, model.PermissionLateCodesInspect))
		{
			codes.POST("/exams/:exam_id/late-codes", handlers.LateCode.Generate)
			codes.GET("/exams/:exam_id/late-codes", handlers.LateCode.List)
			codes.DELETE("/late-codes/:code_id", handlers.LateCode.Revoke)
		}

		staff.GET("/exams/:exam_id/monitor",
			middleware.RequireAnyPermission(model.PermissionExamsMonitor, model.PermissionLateCodesInspect),
			handlers.Monitor.MonitorExamSSE,
		)
		staff.GET("/system/metrics",
			middleware.RequireAnyPermission(model.PermissionLateCodesInspect),
			handlers.System.SystemMetricsSSE,
		)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
