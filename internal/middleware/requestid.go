package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request identifier in both directions.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request identifier.
	RequestIDKey = "request_id"
)

// maxInboundRequestID bounds identifiers accepted from upstream proxies.
const maxInboundRequestID = 128

// RequestIDMiddleware tags every request with an identifier. An inbound
// X-Request-ID from a load balancer or caller is reused; otherwise a UUID v4
// is generated. The id is stored under RequestIDKey and echoed in the
// response so callers can correlate their request with server logs.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxInboundRequestID {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
