package engine

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cardwiz/ai-service/internal/ai"
	"github.com/cardwiz/ai-service/internal/rewardmath"
)

const (
	toolSearchCardRules = "search_card_rules"
	toolCalculateReward = "calculate_reward"
)

func agentToolSpecs() []ai.ToolSpec {
	return []ai.ToolSpec{
		{
			Name:        toolSearchCardRules,
			Description: "Find candidate reward rules for merchant/category from indexed cards. Always call this first.",
			Params: []ai.ToolParam{
				{Name: "merchant", Type: "string", Description: "merchant name", Required: true},
				{Name: "category", Type: "string", Description: "spend category"},
			},
		},
		{
			Name:        toolCalculateReward,
			Description: "Calculate reward value in INR. Use reward_mode=PERCENTAGE with effective_reward_percentage from search results.",
			Params: []ai.ToolParam{
				{Name: "spend_amount", Type: "number", Description: "amount spent", Required: true},
				{Name: "reward_rate", Type: "number", Description: "percentage or points per rupee", Required: true},
				{Name: "point_value", Type: "number", Description: "rupee value of one point"},
				{Name: "reward_mode", Type: "string", Description: "PERCENTAGE or POINTS_PER_RUPEE"},
			},
		},
	}
}

// runSearchCardRules re-runs hybrid retrieval on the agent's own query and
// filters to the caller's eligible cards, so the model can never surface a
// rule the user cannot act on.
func (e *Engine) runSearchCardRules(ctx context.Context, req *RankRequest, input map[string]interface{}) (map[string]interface{}, error) {
	merchant := stringArg(input, "merchant", req.MerchantName)
	category := stringArg(input, "category", req.Category)
	rows, err := e.searcher.Search(ctx, strings.TrimSpace(merchant+" "+category), e.cfg.SearchTopK)
	if err != nil {
		return nil, err
	}
	eligible := make(map[int64]struct{}, len(req.AvailableCardIDs))
	for _, id := range req.AvailableCardIDs {
		eligible[id] = struct{}{}
	}
	result := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		if _, ok := eligible[row.CardID]; !ok {
			continue
		}
		s := newSurvivor(row)
		result = append(result, map[string]interface{}{
			"rule_id":                     s.Candidate.RuleID,
			"card_id":                     s.Candidate.CardID,
			"card_name":                   s.Metrics.CardName,
			"reward_type":                 s.Metrics.RewardType,
			"effective_reward_percentage": s.Metrics.EffectivePercentage,
			"point_value":                 s.Metrics.PointValue,
			"vector_score":                s.Candidate.VectorScore,
			"text_score":                  s.Candidate.TextScore,
			"final_score":                 s.Candidate.FinalScore,
		})
	}
	return map[string]interface{}{"result": result}, nil
}

func runCalculateReward(req *RankRequest, input map[string]interface{}) map[string]interface{} {
	value := rewardmath.CalculateReward(
		floatArg(input, "spend_amount", req.TransactionAmount),
		floatArg(input, "reward_rate", 0),
		floatArg(input, "point_value", rewardmath.DefaultPointValue),
		stringArg(input, "reward_mode", rewardmath.ModePercentage),
	)
	return map[string]interface{}{"result": value}
}

func stringArg(input map[string]interface{}, key, fallback string) string {
	if v, ok := input[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatArg(input map[string]interface{}, key string, fallback float64) float64 {
	switch v := input[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}

// wireDecision is the strict JSON schema both model strategies must emit.
type wireDecision struct {
	BestCardID       int64           `json:"best_card_id"`
	BestCardName     string          `json:"best_card_name"`
	Rewards          wireRewards     `json:"rewards"`
	CalculationLogic string          `json:"calculation_logic"`
	ReasoningBullets []string        `json:"reasoning_bullets"`
	Warning          string          `json:"warning"`
	ComparisonTable  []ComparisonRow `json:"comparison_table"`
}

type wireRewards struct {
	EstimatedValue      float64  `json:"estimated_value"`
	EffectivePercentage float64  `json:"effective_percentage"`
	RewardType          string   `json:"reward_type"`
	RawPointsEarned     *float64 `json:"raw_points_earned"`
}

func (w *wireDecision) toDecision() *Decision {
	return &Decision{
		WinnerCardID:   w.BestCardID,
		WinnerCardName: w.BestCardName,
		Rewards: Rewards{
			EstimatedValue:      w.Rewards.EstimatedValue,
			EffectivePercentage: w.Rewards.EffectivePercentage,
			RewardType:          strings.ToUpper(w.Rewards.RewardType),
			RawPointsEarned:     w.Rewards.RawPointsEarned,
		},
		CalculationLogic: w.CalculationLogic,
		ReasoningBullets: w.ReasoningBullets,
		Warning:          w.Warning,
		Comparison:       w.ComparisonTable,
	}
}

var reFencedJSON = regexp.MustCompile("(?is)```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// extractJSONPayload pulls the JSON object out of a model reply that may
// wrap it in a code fence or surround it with prose.
func extractJSONPayload(text string) string {
	text = strings.TrimSpace(text)
	if m := reFencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

func parseWireDecision(text string) (*Decision, error) {
	var wire wireDecision
	if err := json.Unmarshal([]byte(extractJSONPayload(text)), &wire); err != nil {
		return nil, err
	}
	return wire.toDecision(), nil
}
