package obs

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MountProbes registers /metrics and /healthz on r. A nil health func always reports healthy.
func MountProbes(r gin.IRouter, health func(context.Context) error) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
			defer cancel()
			if err := health(ctx); err != nil {
				c.String(http.StatusServiceUnavailable, "unhealthy")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})
}
