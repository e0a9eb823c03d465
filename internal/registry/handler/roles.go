package handler

import (
	"net/http"

	"github.com/deathcert/registry/internal/auth"
	"github.com/deathcert/registry/internal/chain"
	"github.com/deathcert/registry/internal/registry/model"
	"github.com/deathcert/registry/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RoleHandler serves role checks and role management.
type RoleHandler struct {
	roles  *service.RoleService
	tokens *auth.TokenIssuer // nil = open mode
	logger *zap.Logger
}

// NewRoleHandler creates a RoleHandler. tokens may be nil.
func NewRoleHandler(roles *service.RoleService, tokens *auth.TokenIssuer, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{roles: roles, tokens: tokens, logger: logger}
}

// Register mounts the role routes on rg.
func (h *RoleHandler) Register(rg *gin.RouterGroup) {
	r := rg.Group("/roles")
	{
		r.GET("/:address", h.Check)
		r.POST("/:action", auth.RequireOperator(h.tokens), h.Manage)
	}
}

// Check handles GET /roles/:address.
func (h *RoleHandler) Check(c *gin.Context) {
	roles, err := h.roles.Check(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, h.logger, "check roles", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": c.Param("address"), "roles": roles})
}

// Manage handles POST /roles/:action with body {"target": "0x..."}.
func (h *RoleHandler) Manage(c *gin.Context) {
	var req model.RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Please enter a valid Ethereum address")
		return
	}
	res, err := h.roles.Manage(c.Request.Context(), chain.RoleAction(c.Param("action")), req.Target)
	if err != nil {
		respondError(c, h.logger, "manage role", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
