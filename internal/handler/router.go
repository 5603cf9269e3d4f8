package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cardwiz/ai-service/internal/middleware"
	"github.com/cardwiz/ai-service/internal/ratelimit"
)

type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

type RouterDeps struct {
	Embeddings *EmbeddingHandler
	Recommend  *RecommendHandler
	Documents  *DocumentHandler

	Limiter        *ratelimit.Limiter
	RankLimit      RateLimitRule
	StatementLimit RateLimitRule
	ServiceSecret  []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authGroup := api.Group("")
	authGroup.Use(middleware.ServiceAuth(deps.ServiceSecret))

	authGroup.POST("/embeddings/sync", deps.Embeddings.Sync)
	authGroup.POST("/embeddings/coverage", deps.Embeddings.Coverage)
	authGroup.POST("/documents/analyze", deps.Documents.Analyze)

	recommendGroup := authGroup.Group("/recommend")
	recommendGroup.POST("/rank",
		middleware.RateLimit(deps.Limiter, "rank", deps.RankLimit.Limit, deps.RankLimit.Window),
		deps.Recommend.Rank)
	recommendGroup.POST("/statement-missed-savings",
		middleware.RateLimit(deps.Limiter, "statement", deps.StatementLimit.Limit, deps.StatementLimit.Window),
		deps.Recommend.StatementMissedSavings)
}
