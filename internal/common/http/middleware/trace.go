package middleware

import (
	"context"
	"strings"

	"judgehub/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader = "X-Trace-Id"
	userIDHeader  = "X-User-Id"

	traceIDContextKey = "trace_id"
	userIDContextKey  = "user_id"
)

// TraceContext ensures every request carries a trace id, generating one
// when the caller did not send it, and mirrors it in the response.
// A user id header, when present, is propagated into the context so log
// lines downstream can be attributed.
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(traceIDHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDContextKey, traceID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(traceIDHeader, traceID)

		userID := strings.TrimSpace(c.GetHeader(userIDHeader))
		if userID != "" {
			c.Set(userIDContextKey, userID)
			ctx = context.WithValue(c.Request.Context(), contextkey.UserID, userID)
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()
	}
}
