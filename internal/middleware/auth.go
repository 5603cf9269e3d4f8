package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cardwiz/ai-service/internal/pkg/errcode"
	"github.com/cardwiz/ai-service/internal/pkg/jwt"
	"github.com/cardwiz/ai-service/internal/pkg/response"
)

const ContextServiceKey = "service"

// ServiceAuth verifies the bearer token the upstream service attaches to
// internal calls. An empty secret disables verification, which is how
// local development runs.
func ServiceAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextServiceKey, claims.Service)
		c.Next()
	}
}
