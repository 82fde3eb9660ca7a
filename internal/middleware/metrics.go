package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

// MetricsMiddleware records http_requests_total and
// http_request_duration_seconds for every request.
//
// The path label is the matched Gin route template (for example
// /api/v1/organizations/:org_id/members), never the raw URL, so member and
// organization ids do not inflate label cardinality. Unmatched requests are
// labelled "<no-route>".
//
// Register it after gin.Recovery() and RequestIDMiddleware so the final
// response status is captured.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
