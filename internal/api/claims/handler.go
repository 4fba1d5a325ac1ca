package claims

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/claimdesk/internal/api/middleware"
	"github.com/liliang-cn/claimdesk/internal/api/respond"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/service"
)

// Handler handles claimant claim requests
type Handler struct {
	claimService   *service.ClaimService
	maxUploadBytes int64
}

// NewHandler creates a new claims handler
func NewHandler(claimService *service.ClaimService, maxUploadBytes int64) *Handler {
	return &Handler{claimService: claimService, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes registers claim routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreateClaim)
	r.GET("", h.ListClaims)
	r.GET("/:id", h.GetClaim)
	r.GET("/:id/validation", h.GetValidation)
	r.GET("/:id/checklist", h.GetChecklist)
	r.POST("/:id/documents", h.UploadDocuments)
}

// CreateClaim opens a claim. Multipart requests may carry initial files.
func (h *Handler) CreateClaim(c *gin.Context) {
	var req domain.CreateClaimRequest
	if err := c.ShouldBind(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	var uploads []*domain.Upload
	if respond.IsMultipart(c) {
		var err error
		if uploads, err = respond.Uploads(c, "files", h.maxUploadBytes); err != nil {
			respond.Error(c, err)
			return
		}
	}

	detail, err := h.claimService.Create(c.Request.Context(), middleware.Caller(c), &req, uploads)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, detail)
}

func (h *Handler) ListClaims(c *gin.Context) {
	page, size := respond.Page(c)
	result, err := h.claimService.List(c.Request.Context(), middleware.Caller(c), page, size)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetClaim(c *gin.Context) {
	detail, err := h.claimService.Get(c.Request.Context(), middleware.Caller(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) GetValidation(c *gin.Context) {
	report, err := h.claimService.Validation(c.Request.Context(), middleware.Caller(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetChecklist(c *gin.Context) {
	items, err := h.claimService.Checklist(c.Request.Context(), middleware.Caller(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"checklist": items})
}

// UploadDocuments attaches files sent as "files" (or a single "file")
func (h *Handler) UploadDocuments(c *gin.Context) {
	uploads, err := respond.Uploads(c, "files", h.maxUploadBytes)
	if err == nil && len(uploads) == 0 {
		uploads, err = respond.Uploads(c, "file", h.maxUploadBytes)
	}
	if err != nil {
		respond.Error(c, err)
		return
	}

	result, err := h.claimService.UploadDocuments(c.Request.Context(), middleware.Caller(c), c.Param("id"), uploads)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}
