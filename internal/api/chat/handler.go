package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/claimdesk/internal/api/middleware"
	"github.com/liliang-cn/claimdesk/internal/api/respond"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/service"
)

// Handler handles claim conversation requests
type Handler struct {
	chatService    *service.ChatService
	maxUploadBytes int64
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService, maxUploadBytes int64) *Handler {
	return &Handler{chatService: chatService, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/:id/history", h.History)
	r.POST("/:id/messages", h.SendMessage)
	r.POST("/:id/escalate", h.Escalate)
}

func (h *Handler) History(c *gin.Context) {
	history, err := h.chatService.History(c.Request.Context(), middleware.Caller(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// SendMessage accepts a JSON body or a multipart form with message_text,
// an optional file and an optional document_type. The assistant's reply
// is delivered over the socket.
func (h *Handler) SendMessage(c *gin.Context) {
	var req domain.SendMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	var upload *domain.Upload
	if respond.IsMultipart(c) {
		uploads, err := respond.Uploads(c, "file", h.maxUploadBytes)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if len(uploads) > 1 {
			respond.BadRequest(c, "one file per message")
			return
		}
		if len(uploads) == 1 {
			upload = uploads[0]
			upload.DocumentType = req.DocumentType
		}
	}

	result, err := h.chatService.SubmitMessage(c.Request.Context(), middleware.Caller(c), c.Param("id"), req.MessageText, upload)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

func (h *Handler) Escalate(c *gin.Context) {
	msg, err := h.chatService.Escalate(c.Request.Context(), middleware.Caller(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}
