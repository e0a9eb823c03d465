package webhooks

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the configured subscriptions to operators.
type Handler struct {
	dispatcher *Dispatcher
	repo       *Repository // nil when deliveries are not stored
	logger     *zap.Logger
}

// NewHandler creates a Handler. repo may be nil.
func NewHandler(d *Dispatcher, repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{dispatcher: d, repo: repo, logger: logger}
}

// Register mounts the webhook routes on rg. Callers attach operator auth.
func (h *Handler) Register(rg *gin.RouterGroup) {
	wh := rg.Group("/webhooks")
	{
		wh.GET("", h.ListSubscriptions)
		wh.POST("/ping", h.Ping)
		wh.GET("/deliveries", h.ListDeliveries)
	}
}

// ListSubscriptions handles GET /webhooks.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs := h.dispatcher.Subscriptions()
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

// Ping handles POST /webhooks/ping: sends a signed ping to each subscription.
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"results": h.dispatcher.Ping(c.Request.Context())})
}

// ListDeliveries handles GET /webhooks/deliveries.
func (h *Handler) ListDeliveries(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "delivery history is not stored", "kind": "not_found"})
		return
	}
	deliveries, err := h.repo.Recent(c.Request.Context(), 100)
	if err != nil {
		h.logger.Error("list webhook deliveries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred. Please try again.", "kind": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}
