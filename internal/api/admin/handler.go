package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/claimdesk/internal/api/middleware"
	"github.com/liliang-cn/claimdesk/internal/api/respond"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/service"
)

// Handler handles agent and admin requests
type Handler struct {
	adminService  *service.AdminService
	ingestService *service.IngestService
}

// NewHandler creates a new admin handler. ingestService may be nil when
// policy retrieval is disabled.
func NewHandler(adminService *service.AdminService, ingestService *service.IngestService) *Handler {
	return &Handler{
		adminService:  adminService,
		ingestService: ingestService,
	}
}

// RegisterRoutes registers admin routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	claims := r.Group("/claims")
	{
		claims.GET("", h.ListClaims)
		claims.GET("/:id", h.GetClaim)
		claims.POST("/:id/decision", h.Decide)
		claims.POST("/:id/assign", h.Assign)
	}

	r.GET("/policies", h.ListPolicies)
	r.GET("/metrics", h.GetMetrics)
}

// Claim handlers

func (h *Handler) ListClaims(c *gin.Context) {
	page, size := respond.Page(c)
	filter := domain.ClaimFilter{
		Status:   c.Query("status"),
		Page:     page,
		PageSize: size,
	}

	result, err := h.adminService.ListClaims(c.Request.Context(), middleware.Caller(c), filter)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetClaim(c *gin.Context) {
	detail, err := h.adminService.GetClaim(c.Request.Context(), middleware.Caller(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) Decide(c *gin.Context) {
	var req domain.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	detail, err := h.adminService.Decide(c.Request.Context(), middleware.Caller(c), c.Param("id"), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) Assign(c *gin.Context) {
	var req domain.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	claim, err := h.adminService.Assign(c.Request.Context(), middleware.Caller(c), c.Param("id"), req.AgentID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, claim)
}

// Policy handlers

func (h *Handler) ListPolicies(c *gin.Context) {
	if h.ingestService == nil {
		c.JSON(http.StatusOK, gin.H{"policies": []*domain.PolicyDocument{}})
		return
	}
	policies, err := h.ingestService.ListPolicies(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"policies": policies})
}

// Stats handler

func (h *Handler) GetMetrics(c *gin.Context) {
	stats, err := h.adminService.Metrics(c.Request.Context(), middleware.Caller(c))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
