package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/cardwiz/ai-service/internal/docanalysis"
)

type DocumentHandler struct {
	analyzer *docanalysis.Analyzer
}

func NewDocumentHandler(analyzer *docanalysis.Analyzer) *DocumentHandler {
	return &DocumentHandler{analyzer: analyzer}
}

type analyzeDocumentRequest struct {
	DocID  int64  `json:"docId"`
	S3Key  string `json:"s3Key"`
	Bucket string `json:"bucket"`
}

func (h *DocumentHandler) Analyze(c *gin.Context) {
	var req analyzeDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "invalid request")
		return
	}
	if req.S3Key == "" {
		invalid(c, "s3Key is required")
		return
	}
	result, err := h.analyzer.AnalyzeDocument(c.Request.Context(), req.DocID, req.Bucket, req.S3Key)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(200, result)
}
