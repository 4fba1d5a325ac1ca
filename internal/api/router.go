package api

import (
	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/claimdesk/internal/api/admin"
	"github.com/liliang-cn/claimdesk/internal/api/chat"
	"github.com/liliang-cn/claimdesk/internal/api/claims"
	"github.com/liliang-cn/claimdesk/internal/api/middleware"
	"github.com/liliang-cn/claimdesk/internal/api/notifications"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/realtime"
	"github.com/liliang-cn/claimdesk/internal/service"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	Auth           middleware.AuthConfig
	AllowOrigins   []string
	MaxUploadBytes int64
	// RateLimit is nil when rate limiting is disabled
	RateLimit *middleware.RateLimiter
}

// Services are the handlers' dependencies
type Services struct {
	Claims        *service.ClaimService
	Chat          *service.ChatService
	Admin         *service.AdminService
	Notifications *service.NotificationService
	// Ingest is nil when policy retrieval is disabled
	Ingest *service.IngestService
	Socket *realtime.Server
}

// SetupRouter sets up the Gin router
func SetupRouter(svc Services, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	auth := middleware.Auth(cfg.Auth)

	// Realtime socket; browsers pass the bearer token as ?token=
	r.GET("/ws", auth, func(c *gin.Context) {
		if err := svc.Socket.Serve(c.Writer, c.Request, middleware.Caller(c)); err != nil {
			logger.Debug("socket upgrade failed", zap.Error(err))
		}
	})

	apiGroup := r.Group("/api", auth)
	if cfg.RateLimit != nil {
		apiGroup.Use(cfg.RateLimit.Middleware())
	}

	claims.NewHandler(svc.Claims, cfg.MaxUploadBytes).RegisterRoutes(apiGroup.Group("/claims"))
	chat.NewHandler(svc.Chat, cfg.MaxUploadBytes).RegisterRoutes(apiGroup.Group("/chat"))
	notifications.NewHandler(svc.Notifications).RegisterRoutes(apiGroup.Group("/notifications"))

	// Admin API (agents and admins)
	adminGroup := apiGroup.Group("/admin", middleware.RequireRole(domain.RoleAgent, domain.RoleAdmin))
	admin.NewHandler(svc.Admin, svc.Ingest).RegisterRoutes(adminGroup)

	return r
}
