package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	apperr "github.com/cardwiz/ai-service/internal/pkg/errors"
	"github.com/cardwiz/ai-service/internal/rewardmath"
)

const decisionSchemaJSON = `{
  "best_card_id": int,
  "best_card_name": "string",
  "rewards": {
    "estimated_value": float,
    "effective_percentage": float,
    "reward_type": "string",
    "raw_points_earned": float
  },
  "calculation_logic": "string",
  "reasoning_bullets": ["string", "string"],
  "warning": "string",
  "comparison_table": [
    {
      "card_id": int,
      "card_name": "string",
      "effective_percentage": float,
      "estimated_value": float,
      "verdict": "string"
    }
  ]
}`

// runRerank issues one generation over the pre-computed candidate table.
// Malformed output gets exactly one repair round-trip; a second failure
// propagates so the deterministic tier takes over.
func (e *Engine) runRerank(ctx context.Context, req *RankRequest, survivors []survivor) (*Decision, error) {
	if e.gen == nil {
		return nil, apperr.ErrAnalysisFailed
	}
	prompt := buildRerankPrompt(req, survivors)
	raw, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	decision, parseErr := parseWireDecision(raw)
	if parseErr == nil {
		return decision, nil
	}
	logutil.GetLogger(ctx).Warn("rerank output malformed, requesting repair", zap.Error(parseErr))

	repaired, err := e.gen.Generate(ctx, buildRepairPrompt(raw))
	if err != nil {
		return nil, err
	}
	decision, parseErr = parseWireDecision(repaired)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformedModelOutput, parseErr)
	}
	return decision, nil
}

func buildRerankPrompt(req *RankRequest, survivors []survivor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a credit-card reward analyst. Pick the single best card for this purchase.\n\n")
	fmt.Fprintf(&sb, "Purchase: merchant=%s category=%s amount=%.2f currency=%s notes=%s\n\n",
		req.MerchantName, req.Category, req.TransactionAmount, currencyOf(req), req.ContextNotes)
	sb.WriteString("Candidate cards (pre-computed, do not invent cards outside this list):\n")
	for _, s := range survivors {
		fmt.Fprintf(&sb, "- card_id=%d card_name=%s reward_type=%s effective_percentage=%.4f estimated_value=%.4f\n",
			s.Candidate.CardID,
			s.Metrics.CardName,
			s.Metrics.RewardType,
			s.Metrics.EffectivePercentage,
			s.Metrics.EstimatedValue(req.TransactionAmount),
		)
	}
	fmt.Fprintf(&sb, "\nReturn STRICT JSON only, no prose, matching this schema:\n%s\n", decisionSchemaJSON)
	fmt.Fprintf(&sb, "\nEstimated values are in %s, rounded to 2 decimals. Point value defaults to %v per point.\n",
		currencyOf(req), rewardmath.DefaultPointValue)
	return sb.String()
}

func buildRepairPrompt(broken string) string {
	return fmt.Sprintf(
		"The following output was supposed to be a single valid JSON object but failed to parse. "+
			"Return only the corrected JSON object, nothing else.\n\n%s", broken)
}
