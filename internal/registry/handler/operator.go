package handler

import (
	"net/http"

	"github.com/deathcert/registry/internal/auth"
	"github.com/deathcert/registry/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OperatorHandler exchanges the operator secret for a Bearer token.
type OperatorHandler struct {
	authn  *auth.Authenticator
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

// NewOperatorHandler creates an OperatorHandler.
func NewOperatorHandler(authn *auth.Authenticator, tokens *auth.TokenIssuer, logger *zap.Logger) *OperatorHandler {
	return &OperatorHandler{authn: authn, tokens: tokens, logger: logger}
}

type tokenRequest struct {
	Operator string `json:"operator"`
	Secret   string `json:"secret" binding:"required"`
}

// Register mounts POST /auth/token on rg.
func (h *OperatorHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.IssueToken)
}

// IssueToken handles POST /auth/token.
func (h *OperatorHandler) IssueToken(c *gin.Context) {
	if h.authn.Open() || h.tokens == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "operator authentication is disabled",
			"kind":  service.KindNotFound,
		})
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "secret is required")
		return
	}
	if err := h.authn.Check(req.Secret); err != nil {
		h.logger.Warn("operator token refused", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator secret", "kind": service.KindUnauthorized})
		return
	}

	operator := req.Operator
	if operator == "" {
		operator = auth.OpenModeOperator
	}
	token, expires, err := h.tokens.Issue(operator)
	if err != nil {
		respondError(c, h.logger, "issue operator token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expires,
		"expires_in": int(h.tokens.TTL().Seconds()),
	})
}
