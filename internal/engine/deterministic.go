package engine

import (
	"fmt"

	"github.com/cardwiz/ai-service/internal/rewardmath"
)

// deterministicDecision is the always-succeeding safety net. It makes no
// external call: the winner is the survivor with the highest effective
// percentage, ties broken by first-seen order.
func deterministicDecision(req *RankRequest, survivors []survivor) *Decision {
	best := survivors[0]
	for _, s := range survivors[1:] {
		if s.Metrics.EffectivePercentage > best.Metrics.EffectivePercentage {
			best = s
		}
	}
	spend := req.TransactionAmount
	logic := fmt.Sprintf(
		"Selected %s with the highest effective reward of %s%% among %d matched rules; estimated value for a spend of %.2f %s is %.2f.",
		best.Metrics.CardName,
		trimFloat(best.Metrics.EffectivePercentage),
		len(survivors),
		spend,
		currencyOf(req),
		rewardmath.Round2(best.Metrics.EstimatedValue(spend)),
	)
	return &Decision{
		WinnerCardID:     best.Candidate.CardID,
		WinnerCardName:   best.Metrics.CardName,
		Rewards:          rewardsFor(best.Metrics, spend),
		CalculationLogic: logic,
		ReasoningBullets: []string{
			fmt.Sprintf("%s returns %s%% effectively on this purchase", best.Metrics.CardName, trimFloat(best.Metrics.EffectivePercentage)),
			"ranked purely by normalized effective percentage",
		},
		Comparison: synthesizeComparison(best.Candidate.CardID, survivors, spend),
	}
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
