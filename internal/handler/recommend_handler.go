package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/cardwiz/ai-service/internal/auditor"
	"github.com/cardwiz/ai-service/internal/docanalysis"
	"github.com/cardwiz/ai-service/internal/engine"
)

type RecommendHandler struct {
	engine   *engine.Engine
	auditor  *auditor.Auditor
	analyzer *docanalysis.Analyzer
}

func NewRecommendHandler(eng *engine.Engine, aud *auditor.Auditor, analyzer *docanalysis.Analyzer) *RecommendHandler {
	return &RecommendHandler{engine: eng, auditor: aud, analyzer: analyzer}
}

type rankRequest struct {
	UserID            int64   `json:"userId"`
	MerchantName      string  `json:"merchantName"`
	Category          string  `json:"category"`
	TransactionAmount float64 `json:"transactionAmount"`
	Currency          string  `json:"currency"`
	ContextNotes      string  `json:"contextNotes"`
	AvailableCardIDs  []int64 `json:"availableCardIds"`
}

func (h *RecommendHandler) Rank(c *gin.Context) {
	var req rankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "invalid request")
		return
	}
	if req.MerchantName == "" {
		invalid(c, "merchantName is required")
		return
	}
	if len(req.AvailableCardIDs) == 0 {
		invalid(c, "availableCardIds must contain at least one card id")
		return
	}
	result, err := h.engine.Rank(c.Request.Context(), &engine.RankRequest{
		UserID:            req.UserID,
		MerchantName:      req.MerchantName,
		Category:          req.Category,
		TransactionAmount: req.TransactionAmount,
		Currency:          req.Currency,
		ContextNotes:      req.ContextNotes,
		AvailableCardIDs:  req.AvailableCardIDs,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(200, result)
}

type statementMissedSavingsRequest struct {
	UserID            int64   `json:"userId"`
	StatementKey      string  `json:"statementKey"`
	Bucket            string  `json:"bucket"`
	ActualCardID      int64   `json:"actualCardId"`
	AvailableCardIDs  []int64 `json:"availableCardIds"`
	Currency          string  `json:"currency"`
	LimitTransactions int     `json:"limitTransactions"`
}

func (h *RecommendHandler) StatementMissedSavings(c *gin.Context) {
	var req statementMissedSavingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "invalid request")
		return
	}
	if req.StatementKey == "" {
		invalid(c, "statementKey is required")
		return
	}
	if req.ActualCardID <= 0 {
		invalid(c, "actualCardId is required")
		return
	}
	if len(req.AvailableCardIDs) == 0 {
		invalid(c, "availableCardIds must contain at least one card id")
		return
	}
	ctx := c.Request.Context()
	extracted, err := h.analyzer.ExtractStatementTransactions(ctx, req.Bucket, req.StatementKey, req.LimitTransactions)
	if err != nil {
		handleError(c, err)
		return
	}
	txs := make([]auditor.Transaction, 0, len(extracted))
	for _, tx := range extracted {
		txs = append(txs, auditor.Transaction{
			MerchantName: tx.Merchant,
			Amount:       tx.Amount,
			Date:         tx.Date,
		})
	}
	report, err := h.auditor.Audit(ctx, &auditor.AuditRequest{
		UserID:           req.UserID,
		ActualCardID:     req.ActualCardID,
		AvailableCardIDs: req.AvailableCardIDs,
		Currency:         req.Currency,
		Transactions:     txs,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(200, report)
}
