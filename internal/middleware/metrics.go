package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aiva-app/notify/pkg/metrics"
)

// Metrics records per-request latency and the in-flight request gauge.
//
// The path label uses the route template (e.g. /api/devices/:identifier) so
// every concrete identifier does not mint a fresh label value; unmatched
// requests are collapsed under a single bucket for the same reason.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.APIInFlight.Inc()

		c.Next()

		metrics.APIInFlight.Dec()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.APILatency.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
