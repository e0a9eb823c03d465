package handler

import (
	"net/http"

	"github.com/deathcert/registry/internal/health"
	"github.com/gin-gonic/gin"
)

// HealthHandler serves liveness and dependency status.
type HealthHandler struct {
	checker *health.HealthChecker // nil = no dependency probes
}

// NewHealthHandler creates a HealthHandler. checker may be nil.
func NewHealthHandler(checker *health.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Register mounts /healthz and /healthz/deps on r.
func (h *HealthHandler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Live)
	r.GET("/healthz/deps", h.Dependencies)
}

// Live handles GET /healthz.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Dependencies handles GET /healthz/deps. It answers 503 while any
// dependency is degraded.
func (h *HealthHandler) Dependencies(c *gin.Context) {
	if h.checker == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "dependencies": []health.DependencyStatus{}})
		return
	}
	status, code := "ok", http.StatusOK
	if !h.checker.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "dependencies": h.checker.Snapshot()})
}
