package handler

import (
	"net/http"

	"github.com/deathcert/registry/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var kindStatus = map[service.Kind]int{
	service.KindProviderAbsent: http.StatusServiceUnavailable,
	service.KindUnauthorized:   http.StatusForbidden,
	service.KindTransport:      http.StatusBadGateway,
	service.KindDeclined:       http.StatusOK,
	service.KindNotFound:       http.StatusNotFound,
	service.KindValidation:     http.StatusBadRequest,
	service.KindConflict:       http.StatusConflict,
	service.KindInternal:       http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind service.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes {"error","kind"} for err. Internal errors are logged
// and never shown to the caller.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	kind := service.Classify(err)
	status := StatusFor(kind)
	if kind == service.KindInternal || kind == service.KindTransport {
		logger.Error(op, zap.Error(err), zap.String("kind", string(kind)))
	} else {
		logger.Debug(op, zap.Error(err), zap.String("kind", string(kind)))
	}
	c.JSON(status, gin.H{"error": service.UserMessage(err), "kind": kind})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": service.KindValidation})
}
