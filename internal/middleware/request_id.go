package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"

	// Client-supplied ids longer than this are replaced, not truncated;
	// they are almost certainly junk and would pollute the logs.
	maxRequestIDLen = 64
)

// RequestID tags each request with a correlation id, honoring a well-formed
// X-Request-Id from the client so ids survive proxy hops.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		c.Set(CtxRequestID, id)
		c.Writer.Header().Set(requestIDHeader, id)

		c.Next()
	}
}
