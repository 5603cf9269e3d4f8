// Package auditor replays statement transactions through the decision
// engine to quantify rewards the user left on the table.
package auditor

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/cardwiz/ai-service/internal/engine"
	"github.com/cardwiz/ai-service/internal/rewardmath"
)

type Ranker interface {
	Rank(ctx context.Context, req *engine.RankRequest) (*engine.RecommendationResult, error)
}

type Transaction struct {
	MerchantName string  `json:"merchantName"`
	Category     string  `json:"category,omitempty"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date,omitempty"`
}

type TransactionAudit struct {
	MerchantName    string  `json:"merchantName"`
	Category        string  `json:"category,omitempty"`
	Date            string  `json:"date,omitempty"`
	Amount          float64 `json:"amount"`
	ActualCardID    int64   `json:"actualCardId"`
	ActualReward    float64 `json:"actualReward"`
	OptimalCardID   int64   `json:"optimalCardId"`
	OptimalCardName string  `json:"optimalCardName"`
	OptimalReward   float64 `json:"optimalReward"`
	MissedReward    float64 `json:"missedReward"`
}

type Summary struct {
	TransactionCount    int     `json:"transactionCount"`
	TotalSpend          float64 `json:"totalSpend"`
	TotalActualRewards  float64 `json:"totalActualRewards"`
	TotalOptimalRewards float64 `json:"totalOptimalRewards"`
	TotalMissedSavings  float64 `json:"totalMissedSavings"`
}

type Report struct {
	Summary      Summary            `json:"summary"`
	Transactions []TransactionAudit `json:"transactions"`
}

type Auditor struct {
	ranker Ranker
}

func New(ranker Ranker) *Auditor {
	return &Auditor{ranker: ranker}
}

type AuditRequest struct {
	UserID           int64
	ActualCardID     int64
	AvailableCardIDs []int64
	Currency         string
	Transactions     []Transaction
}

// Audit runs the engine twice per transaction with the bulk-evaluation
// flag set: once restricted to the card actually used, once across the
// whole pool. Both runs share the deterministic path, so per-row missed
// values and the aggregate difference agree by construction.
func (a *Auditor) Audit(ctx context.Context, req *AuditRequest) (*Report, error) {
	pool := poolWithActual(req.AvailableCardIDs, req.ActualCardID)
	report := &Report{Transactions: make([]TransactionAudit, 0, len(req.Transactions))}

	for _, tx := range req.Transactions {
		actual, err := a.rankOne(ctx, req, tx, []int64{req.ActualCardID})
		if err != nil {
			return nil, err
		}
		optimal, err := a.rankOne(ctx, req, tx, pool)
		if err != nil {
			return nil, err
		}
		actualValue := actual.Rewards.EstimatedValue
		optimalValue := optimal.Rewards.EstimatedValue
		missed := optimalValue - actualValue
		if missed < 0 {
			missed = 0
		}
		report.Transactions = append(report.Transactions, TransactionAudit{
			MerchantName:    tx.MerchantName,
			Category:        tx.Category,
			Date:            tx.Date,
			Amount:          rewardmath.Round2(tx.Amount),
			ActualCardID:    req.ActualCardID,
			ActualReward:    rewardmath.Round2(actualValue),
			OptimalCardID:   optimal.BestCardID,
			OptimalCardName: optimal.BestCardName,
			OptimalReward:   rewardmath.Round2(optimalValue),
			MissedReward:    rewardmath.Round2(missed),
		})
		report.Summary.TotalSpend += tx.Amount
		report.Summary.TotalActualRewards += actualValue
		report.Summary.TotalOptimalRewards += optimalValue
	}

	report.Summary.TransactionCount = len(report.Transactions)
	missedTotal := report.Summary.TotalOptimalRewards - report.Summary.TotalActualRewards
	if missedTotal < 0 {
		missedTotal = 0
	}
	report.Summary.TotalSpend = rewardmath.Round2(report.Summary.TotalSpend)
	report.Summary.TotalActualRewards = rewardmath.Round2(report.Summary.TotalActualRewards)
	report.Summary.TotalOptimalRewards = rewardmath.Round2(report.Summary.TotalOptimalRewards)
	report.Summary.TotalMissedSavings = rewardmath.Round2(missedTotal)

	logutil.GetLogger(ctx).Info("statement audit complete",
		zap.Int("transactions", report.Summary.TransactionCount),
		zap.Float64("missed_savings", report.Summary.TotalMissedSavings))
	return report, nil
}

func (a *Auditor) rankOne(ctx context.Context, req *AuditRequest, tx Transaction, cards []int64) (*engine.RecommendationResult, error) {
	return a.ranker.Rank(ctx, &engine.RankRequest{
		UserID:            req.UserID,
		MerchantName:      tx.MerchantName,
		Category:          tx.Category,
		TransactionAmount: tx.Amount,
		Currency:          req.Currency,
		AvailableCardIDs:  cards,
		BulkEvaluation:    true,
	})
}

func poolWithActual(pool []int64, actual int64) []int64 {
	for _, id := range pool {
		if id == actual {
			return append([]int64(nil), pool...)
		}
	}
	out := make([]int64, 0, len(pool)+1)
	out = append(out, pool...)
	return append(out, actual)
}
