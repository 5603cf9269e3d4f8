package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/cardwiz/ai-service/internal/ruleindex"
)

type EmbeddingHandler struct {
	index *ruleindex.Index
}

func NewEmbeddingHandler(index *ruleindex.Index) *EmbeddingHandler {
	return &EmbeddingHandler{index: index}
}

type embeddingSyncRequest struct {
	RuleID      int64  `json:"ruleId"`
	CardID      int64  `json:"cardId"`
	ContentText string `json:"contentText"`
}

func (h *EmbeddingHandler) Sync(c *gin.Context) {
	var req embeddingSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "invalid request")
		return
	}
	if req.RuleID <= 0 || req.CardID <= 0 || req.ContentText == "" {
		invalid(c, "ruleId, cardId and contentText are required")
		return
	}
	result, err := h.index.SyncRule(c.Request.Context(), req.RuleID, req.CardID, req.ContentText)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(200, result)
}

type embeddingCoverageRequest struct {
	CardIDs []int64 `json:"cardIds"`
}

func (h *EmbeddingHandler) Coverage(c *gin.Context) {
	var req embeddingCoverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "invalid request")
		return
	}
	covered, err := h.index.Coverage(c.Request.Context(), req.CardIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(200, gin.H{"coveredCardIds": covered})
}
