package handler

import (
	"net/http"

	"github.com/deathcert/registry/internal/auth"
	"github.com/deathcert/registry/internal/registry/model"
	"github.com/deathcert/registry/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PendingHandler serves the operator approval queue.
type PendingHandler struct {
	approvals *service.ApprovalService
	tokens    *auth.TokenIssuer // nil = open mode
	logger    *zap.Logger
}

// NewPendingHandler creates a PendingHandler. tokens may be nil.
func NewPendingHandler(approvals *service.ApprovalService, tokens *auth.TokenIssuer, logger *zap.Logger) *PendingHandler {
	return &PendingHandler{approvals: approvals, tokens: tokens, logger: logger}
}

// Register mounts the pending routes on rg behind operator auth.
func (h *PendingHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/pending", auth.RequireOperator(h.tokens))
	{
		p.GET("", h.List)
		p.POST("/:cid/approve", h.Approve)
		p.DELETE("/:cid", h.Delete)
	}
}

// List handles GET /pending.
func (h *PendingHandler) List(c *gin.Context) {
	views := h.approvals.List()
	c.JSON(http.StatusOK, gin.H{"pending": views, "count": len(views)})
}

// Approve handles POST /pending/:cid/approve. A declined signature is not
// an error: it answers 200 with status "declined".
func (h *PendingHandler) Approve(c *gin.Context) {
	res, err := h.approvals.Approve(c.Request.Context(), c.Param("cid"))
	if err != nil {
		RecordApproval(model.OutcomeFailed)
		respondError(c, h.logger, "approve certificate", err)
		return
	}
	RecordApproval(res.Outcome)
	c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /pending/:cid?confirm=true. It drops the local
// record only; nothing is sent to the ledger.
func (h *PendingHandler) Delete(c *gin.Context) {
	if c.Query("confirm") != "true" {
		badRequest(c, "deletion must be confirmed with ?confirm=true")
		return
	}
	cid := c.Param("cid")
	if h.approvals.Delete(c.Request.Context(), cid, auth.OperatorFromCtx(c)) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pending certificate not found", "kind": service.KindNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": cid})
}
