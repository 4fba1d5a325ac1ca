package notifications

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/claimdesk/internal/api/middleware"
	"github.com/liliang-cn/claimdesk/internal/api/respond"
	"github.com/liliang-cn/claimdesk/internal/service"
)

// Handler handles notification requests
type Handler struct {
	notificationService *service.NotificationService
}

// NewHandler creates a new notifications handler
func NewHandler(notificationService *service.NotificationService) *Handler {
	return &Handler{notificationService: notificationService}
}

// RegisterRoutes registers notification routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.List)
	r.POST("/:id/read", h.MarkRead)
}

func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	notes, err := h.notificationService.List(c.Request.Context(), middleware.Caller(c), limit)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notes})
}

func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.notificationService.MarkRead(c.Request.Context(), middleware.Caller(c), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "notification marked read"})
}
