package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardwiz/ai-service/internal/model"
	"github.com/cardwiz/ai-service/internal/routing"
)

type fakeSearcher struct {
	rows []model.RetrievalCandidate
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, queryText string, k int) ([]model.RetrievalCandidate, error) {
	return f.rows, f.err
}

type fakeGenerator struct {
	replies []string
	calls   int
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.calls >= len(f.replies) {
		return "", fmt.Errorf("no scripted reply left")
	}
	reply := f.replies[f.calls]
	f.calls++
	return reply, nil
}

func candidate(ruleID, cardID int64, pct float64) model.RetrievalCandidate {
	return model.RetrievalCandidate{
		RuleID: ruleID,
		CardID: cardID,
		ContentText: fmt.Sprintf(
			"card_name=Card %d; category=dining; reward_type=CASHBACK; reward_rate=%v; conditions=null", cardID, pct),
		FinalScore: pct,
	}
}

func rankRequest(cards ...int64) *RankRequest {
	return &RankRequest{
		UserID:            7,
		MerchantName:      "Starbucks",
		Category:          "Coffee Shop",
		TransactionAmount: 1000,
		AvailableCardIDs:  cards,
	}
}

func TestRankNoEligibleCards(t *testing.T) {
	e := New(&fakeSearcher{}, nil, nil, Config{AgentEnabled: true})
	res, err := e.Rank(context.Background(), rankRequest())
	require.NoError(t, err)
	require.False(t, res.HasSufficientData)
	require.Equal(t, "NO_ELIGIBLE_CARDS", res.RoutingReason)
	require.Equal(t, string(routing.ModeNone), res.RoutingMode)
}

func TestRankNoSurvivorsLowConfidence(t *testing.T) {
	search := &fakeSearcher{rows: []model.RetrievalCandidate{candidate(1, 99, 5)}}
	e := New(search, nil, nil, Config{AgentEnabled: true})
	res, err := e.Rank(context.Background(), rankRequest(10, 11))
	require.NoError(t, err)
	require.False(t, res.HasSufficientData)
	require.Equal(t, int64(10), res.BestCardID)
	require.Equal(t, "NO_MATCHING_RULES", res.RoutingReason)
	require.InDelta(t, 0.35, res.ConfidenceScore, 1e-9)
	require.Equal(t, []int64{10, 11}, res.UncoveredCardIDs)
}

func TestRankFallbackTotality(t *testing.T) {
	search := &fakeSearcher{rows: []model.RetrievalCandidate{
		candidate(1, 10, 5),
		candidate(2, 11, 3),
	}}
	e := New(search, nil, nil, Config{AgentEnabled: true, ComplexSpendThreshold: 500})
	e.agentFn = func(ctx context.Context, req *RankRequest, survivors []survivor) *Decision {
		return nil
	}
	e.rerankFn = func(ctx context.Context, req *RankRequest, survivors []survivor) (*Decision, error) {
		return nil, fmt.Errorf("model down")
	}
	res, err := e.Rank(context.Background(), rankRequest(10, 11))
	require.NoError(t, err)
	require.True(t, res.HasSufficientData)
	require.Equal(t, string(routing.ModeDeterministic), res.RoutingMode)
	require.Equal(t, "HIGH_SPEND_COMPLEX|AGENT_FAILED|RERANK_FAILED", res.RoutingReason)
	require.Equal(t, int64(10), res.BestCardID)
}

func TestRankWinnerAlwaysInSurvivors(t *testing.T) {
	search := &fakeSearcher{rows: []model.RetrievalCandidate{
		candidate(1, 10, 5),
		candidate(2, 11, 3),
	}}
	e := New(search, nil, nil, Config{AgentEnabled: false})
	e.rerankFn = func(ctx context.Context, req *RankRequest, survivors []survivor) (*Decision, error) {
		return &Decision{
			WinnerCardID:   777,
			WinnerCardName: "Phantom Card",
			Rewards:        Rewards{EstimatedValue: 9999, EffectivePercentage: 99},
		}, nil
	}
	res, err := e.Rank(context.Background(), rankRequest(10, 11))
	require.NoError(t, err)
	require.Equal(t, int64(10), res.BestCardID)
	require.NotEmpty(t, res.Warning)
	for _, row := range res.Comparison {
		require.Contains(t, []int64{10, 11}, row.CardID)
	}
}

func TestRankDeterministicPicksHighestEffective(t *testing.T) {
	search := &fakeSearcher{rows: []model.RetrievalCandidate{
		candidate(1, 10, 1.5),
		candidate(2, 11, 4),
		candidate(3, 12, 4), // tie loses to first seen
		candidate(4, 13, 2),
	}}
	e := New(search, nil, nil, Config{AgentEnabled: true})
	req := rankRequest(10, 11, 12, 13)
	req.BulkEvaluation = true
	res, err := e.Rank(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, string(routing.ModeDeterministic), res.RoutingMode)
	require.Equal(t, "BULK_EVAL_MODE", res.RoutingReason)
	require.Equal(t, int64(11), res.BestCardID)
	require.InDelta(t, 40.0, res.Rewards.EstimatedValue, 1e-9)
	require.LessOrEqual(t, len(res.Comparison), 3)
	require.Equal(t, int64(12), res.Comparison[0].CardID)
}

func TestRankCapsStrategyComparisonAndBullets(t *testing.T) {
	search := &fakeSearcher{rows: []model.RetrievalCandidate{
		candidate(1, 10, 5),
		candidate(2, 11, 4),
		candidate(3, 12, 3),
		candidate(4, 13, 2),
		candidate(5, 14, 1),
	}}
	e := New(search, nil, nil, Config{AgentEnabled: false})
	e.rerankFn = func(ctx context.Context, req *RankRequest, survivors []survivor) (*Decision, error) {
		// all rows reference real survivors, so no row gets rejected
		rows := make([]ComparisonRow, 0, 4)
		for _, id := range []int64{11, 12, 13, 14} {
			rows = append(rows, ComparisonRow{CardID: id, CardName: fmt.Sprintf("Card %d", id)})
		}
		return &Decision{
			WinnerCardID:   10,
			WinnerCardName: "Card 10",
			Rewards:        Rewards{EstimatedValue: 50, EffectivePercentage: 5, RewardType: "CASHBACK"},
			ReasoningBullets: []string{
				"first", "second", "third", "fourth", "fifth",
			},
			Comparison: rows,
		}, nil
	}
	res, err := e.Rank(context.Background(), rankRequest(10, 11, 12, 13, 14))
	require.NoError(t, err)
	require.Equal(t, int64(10), res.BestCardID)
	require.Len(t, res.Comparison, 3)
	require.Len(t, res.ReasoningBullets, 3)
	require.Equal(t, []string{"first", "second", "third"}, res.ReasoningBullets)
}

func TestRankRerankSuccess(t *testing.T) {
	search := &fakeSearcher{rows: []model.RetrievalCandidate{
		candidate(1, 10, 5),
		candidate(2, 11, 3),
	}}
	gen := &fakeGenerator{replies: []string{
		"```json\n{\"best_card_id\": 11, \"best_card_name\": \"Card 11\", " +
			"\"rewards\": {\"estimated_value\": 30, \"effective_percentage\": 3, \"reward_type\": \"CASHBACK\"}, " +
			"\"calculation_logic\": \"3% of 1000\", \"reasoning_bullets\": [\"flat cashback\"]}\n```",
	}}
	e := New(search, gen, nil, Config{AgentEnabled: false})
	res, err := e.Rank(context.Background(), rankRequest(10, 11))
	require.NoError(t, err)
	require.Equal(t, string(routing.ModeLLMRerank), res.RoutingMode)
	require.Equal(t, "AGENT_DISABLED", res.RoutingReason)
	require.Equal(t, int64(11), res.BestCardID)
	require.InDelta(t, 30.0, res.Rewards.EstimatedValue, 1e-9)
	require.True(t, res.HasSufficientData)
}

func TestRankRerankRepairRound(t *testing.T) {
	search := &fakeSearcher{rows: []model.RetrievalCandidate{
		candidate(1, 10, 5),
		candidate(2, 11, 3),
	}}
	gen := &fakeGenerator{replies: []string{
		"{broken json",
		"{\"best_card_id\": 10, \"best_card_name\": \"Card 10\", " +
			"\"rewards\": {\"estimated_value\": 50, \"effective_percentage\": 5, \"reward_type\": \"CASHBACK\"}, " +
			"\"calculation_logic\": \"repaired\"}",
	}}
	e := New(search, gen, nil, Config{AgentEnabled: false})
	res, err := e.Rank(context.Background(), rankRequest(10, 11))
	require.NoError(t, err)
	require.Equal(t, 2, gen.calls)
	require.Equal(t, string(routing.ModeLLMRerank), res.RoutingMode)
	require.Equal(t, int64(10), res.BestCardID)
}

func TestRankRepairFailureFallsBackDeterministic(t *testing.T) {
	search := &fakeSearcher{rows: []model.RetrievalCandidate{
		candidate(1, 10, 5),
		candidate(2, 11, 3),
	}}
	gen := &fakeGenerator{replies: []string{"{broken", "still broken"}}
	e := New(search, gen, nil, Config{AgentEnabled: false})
	res, err := e.Rank(context.Background(), rankRequest(10, 11))
	require.NoError(t, err)
	require.Equal(t, string(routing.ModeDeterministic), res.RoutingMode)
	require.Equal(t, "AGENT_DISABLED|RERANK_FAILED", res.RoutingReason)
	require.Equal(t, int64(10), res.BestCardID)
}

func TestExtractJSONPayload(t *testing.T) {
	require.Equal(t, `{"a":1}`, extractJSONPayload("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, extractJSONPayload("here you go: {\"a\":1} done"))
	require.Equal(t, `{"a":1}`, extractJSONPayload(`{"a":1}`))
	require.Equal(t, "no json here", extractJSONPayload("no json here"))
}

func TestCoverageMetadata(t *testing.T) {
	search := &fakeSearcher{rows: []model.RetrievalCandidate{candidate(1, 10, 5)}}
	e := New(search, nil, nil, Config{AgentEnabled: true})
	req := rankRequest(10, 11)
	req.BulkEvaluation = true
	res, err := e.Rank(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []int64{10}, res.CoveredCardIDs)
	require.Equal(t, []int64{11}, res.UncoveredCardIDs)
}
