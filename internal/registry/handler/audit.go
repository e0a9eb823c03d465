package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/deathcert/registry/internal/auditlog"
	"github.com/deathcert/registry/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuditHandler exposes read-only HTTP endpoints for the audit log.
type AuditHandler struct {
	log    auditlog.Log
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(log auditlog.Log, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{log: log, logger: logger}
}

// Register mounts the audit routes on the given router group.
func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/audit")
	{
		a.GET("", h.Overview)
		a.GET("/verify", h.Verify)
		a.GET("/entries/:idx", h.GetEntry)
	}
}

// Overview handles GET /audit?from=&limit=: the chain length, root hash and
// a page of entries.
func (h *AuditHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	from, _ := strconv.Atoi(c.DefaultQuery("from", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if from < 0 {
		from = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	count, err := h.log.Len(ctx)
	if err != nil {
		h.internal(c, "audit Len", err)
		return
	}
	root, err := h.log.Root(ctx)
	if err != nil {
		h.internal(c, "audit Root", err)
		return
	}
	entries, err := h.log.Range(ctx, from, limit)
	if err != nil {
		h.internal(c, "audit Range", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   count,
		"root":    root,
		"entries": entries,
	})
}

// Verify handles GET /audit/verify: walks the full chain and reports integrity.
func (h *AuditHandler) Verify(c *gin.Context) {
	err := h.log.Verify(c.Request.Context())
	var broken *auditlog.BrokenChainError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"valid": true})
	case errors.As(err, &broken):
		h.logger.Warn("audit chain integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid":        false,
			"broken_index": broken.Index,
			"error":        broken.Reason,
		})
	default:
		h.internal(c, "audit Verify", err)
	}
}

// GetEntry handles GET /audit/entries/:idx.
func (h *AuditHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		badRequest(c, "idx must be a non-negative integer")
		return
	}

	entry, err := h.log.Get(c.Request.Context(), idx)
	if errors.Is(err, auditlog.ErrOutOfRange) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found", "kind": service.KindNotFound})
		return
	}
	if err != nil {
		h.internal(c, "audit Get", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *AuditHandler) internal(c *gin.Context, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "failed to query audit log",
		"kind":  service.KindInternal,
	})
}
