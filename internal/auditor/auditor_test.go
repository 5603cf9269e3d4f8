package auditor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardwiz/ai-service/internal/engine"
)

// rateRanker answers every rank request deterministically: each card id
// yields cardID*0.1 percent of spend.
type rateRanker struct {
	requests []*engine.RankRequest
}

func (r *rateRanker) Rank(ctx context.Context, req *engine.RankRequest) (*engine.RecommendationResult, error) {
	r.requests = append(r.requests, req)
	best := req.AvailableCardIDs[0]
	for _, id := range req.AvailableCardIDs {
		if id > best {
			best = id
		}
	}
	return &engine.RecommendationResult{
		BestCardID:   best,
		BestCardName: "Card",
		Rewards: engine.Rewards{
			EstimatedValue:      req.TransactionAmount * float64(best) * 0.1 / 100,
			EffectivePercentage: float64(best) * 0.1,
		},
		HasSufficientData: true,
	}, nil
}

func TestAuditMissedSavings(t *testing.T) {
	ranker := &rateRanker{}
	a := New(ranker)
	report, err := a.Audit(context.Background(), &AuditRequest{
		UserID:           1,
		ActualCardID:     10,
		AvailableCardIDs: []int64{10, 30},
		Transactions: []Transaction{
			{MerchantName: "Amazon", Amount: 1000},
			{MerchantName: "Uber", Amount: 500},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Summary.TransactionCount)
	require.InDelta(t, 1500, report.Summary.TotalSpend, 1e-9)
	// actual card 10 -> 1%, optimal card 30 -> 3%
	require.InDelta(t, 15, report.Summary.TotalActualRewards, 1e-9)
	require.InDelta(t, 45, report.Summary.TotalOptimalRewards, 1e-9)
	require.InDelta(t, 30, report.Summary.TotalMissedSavings, 1e-9)

	first := report.Transactions[0]
	require.Equal(t, int64(10), first.ActualCardID)
	require.Equal(t, int64(30), first.OptimalCardID)
	require.InDelta(t, 10, first.ActualReward, 1e-9)
	require.InDelta(t, 30, first.OptimalReward, 1e-9)
	require.InDelta(t, 20, first.MissedReward, 1e-9)
}

func TestAuditRunsBulkRestrictedAndPool(t *testing.T) {
	ranker := &rateRanker{}
	a := New(ranker)
	_, err := a.Audit(context.Background(), &AuditRequest{
		UserID:           1,
		ActualCardID:     7,
		AvailableCardIDs: []int64{10, 30},
		Transactions:     []Transaction{{MerchantName: "Amazon", Amount: 100}},
	})
	require.NoError(t, err)
	require.Len(t, ranker.requests, 2)
	require.Equal(t, []int64{7}, ranker.requests[0].AvailableCardIDs)
	require.Equal(t, []int64{10, 30, 7}, ranker.requests[1].AvailableCardIDs)
	for _, req := range ranker.requests {
		require.True(t, req.BulkEvaluation)
	}
}

func TestAuditMissedNeverNegative(t *testing.T) {
	// Restricted run sees only card 50, pool run only lower cards, so the
	// actual card outperforms the pool optimum.
	ranker := &rateRanker{}
	a := New(ranker)
	report, err := a.Audit(context.Background(), &AuditRequest{
		UserID:           1,
		ActualCardID:     50,
		AvailableCardIDs: []int64{50, 10},
		Transactions:     []Transaction{{MerchantName: "Amazon", Amount: 1000}},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, report.Summary.TotalMissedSavings, 0.0)
	require.GreaterOrEqual(t, report.Transactions[0].MissedReward, 0.0)
	require.InDelta(t, 0, report.Summary.TotalMissedSavings, 1e-9)
}

func TestAuditEmptyTransactions(t *testing.T) {
	a := New(&rateRanker{})
	report, err := a.Audit(context.Background(), &AuditRequest{
		UserID:           1,
		ActualCardID:     10,
		AvailableCardIDs: []int64{10},
	})
	require.NoError(t, err)
	require.Equal(t, 0, report.Summary.TransactionCount)
	require.InDelta(t, 0, report.Summary.TotalMissedSavings, 1e-9)
	require.Empty(t, report.Transactions)
}
