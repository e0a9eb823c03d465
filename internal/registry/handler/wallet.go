package handler

import (
	"net/http"

	"github.com/deathcert/registry/internal/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WalletHandler reports the accounts of the connected wallet provider.
type WalletHandler struct {
	wallet wallet.Wallet
	logger *zap.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(w wallet.Wallet, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{wallet: w, logger: logger}
}

// Register mounts GET /wallet on rg.
func (h *WalletHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/wallet", h.Accounts)
}

// Accounts handles GET /wallet.
func (h *WalletHandler) Accounts(c *gin.Context) {
	accounts, err := h.wallet.RequestAccounts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "request accounts", err)
		return
	}
	if accounts == nil {
		accounts = []string{}
	}
	primary := ""
	if len(accounts) > 0 {
		primary = accounts[0]
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts, "primary": primary})
}
