package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler adapts Checker to a gin handler, generalized from the teacher's
// HealthHandler.HealthCheck (internal/http/handlers/health.go): 200 when
// every dependency reports ok, 503 when any is degraded.
func Handler(c *Checker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		status := c.Check(ctx.Request.Context())
		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		ctx.JSON(code, status)
	}
}
