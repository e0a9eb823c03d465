package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxOperator = "registry_operator"

// OpenModeOperator is the operator name recorded when auth is disabled.
const OpenModeOperator = "operator"

// RequireOperator returns a Gin middleware that enforces a valid operator
// Bearer token. With a nil issuer every request passes as OpenModeOperator.
func RequireOperator(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			c.Set(ctxOperator, OpenModeOperator)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "operator Bearer token required",
				"kind":  "unauthorized",
			})
			return
		}
		claims, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid operator token",
				"kind":  "unauthorized",
			})
			return
		}

		c.Set(ctxOperator, claims.Subject)
		c.Next()
	}
}

// OperatorFromCtx returns the operator injected by RequireOperator, or "".
func OperatorFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxOperator)
	s, _ := v.(string)
	return s
}
