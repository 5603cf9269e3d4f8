package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/cardwiz/ai-service/internal/pkg/errcode"
	"github.com/cardwiz/ai-service/internal/pkg/response"
	"github.com/cardwiz/ai-service/internal/ratelimit"
)

// RateLimit throttles one route using a fixed window per client. The
// actor key is the client IP plus the route path so heavy statement
// analysis cannot starve the cheap rank endpoint.
func RateLimit(limiter *ratelimit.Limiter, namespace string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		actor := fmt.Sprintf("%s:%s", c.ClientIP(), path)
		dec := limiter.Check(c.Request.Context(), namespace, actor, limit, window)
		c.Writer.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
		c.Writer.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
		if !dec.Allowed {
			logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
				zap.String("namespace", namespace),
				zap.String("actor", actor),
			)
			c.Writer.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfterSeconds))
			response.ErrorStatus(c, http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
