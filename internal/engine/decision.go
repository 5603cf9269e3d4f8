package engine

import (
	"fmt"

	"github.com/cardwiz/ai-service/internal/model"
	"github.com/cardwiz/ai-service/internal/rewardmath"
)

// Rewards is the monetary outcome of putting the spend on one card.
// EstimatedValue is rounded to two decimals at assembly time only;
// intermediate math keeps full precision.
type Rewards struct {
	EstimatedValue      float64  `json:"estimated_value"`
	ValueUnit           string   `json:"value_unit"`
	EffectivePercentage float64  `json:"effective_percentage"`
	RewardType          string   `json:"reward_type"`
	RawPointsEarned     *float64 `json:"raw_points_earned,omitempty"`
}

type ComparisonRow struct {
	CardID              int64   `json:"card_id"`
	CardName            string  `json:"card_name"`
	EffectivePercentage float64 `json:"effective_percentage"`
	EstimatedValue      float64 `json:"estimated_value"`
	Verdict             string  `json:"verdict"`
}

// Decision is the common shape every strategy resolves to, whether it
// came from the agent loop, the single-shot rerank or the local math.
type Decision struct {
	Mode             string
	WinnerCardID     int64
	WinnerCardName   string
	Rewards          Rewards
	CalculationLogic string
	ReasoningBullets []string
	Warning          string
	Comparison       []ComparisonRow
}

type RankRequest struct {
	UserID            int64
	MerchantName      string
	Category          string
	TransactionAmount float64
	Currency          string
	ContextNotes      string
	AvailableCardIDs  []int64
	BulkEvaluation    bool
}

type RecommendationResult struct {
	BestCardID        int64           `json:"bestCardId"`
	BestCardName      string          `json:"bestCardName"`
	Rewards           Rewards         `json:"rewards"`
	CalculationLogic  string          `json:"calculationLogic"`
	ReasoningBullets  []string        `json:"reasoningBullets,omitempty"`
	Warning           string          `json:"warning,omitempty"`
	Comparison        []ComparisonRow `json:"comparisonTable"`
	RoutingMode       string          `json:"routingMode"`
	RoutingReason     string          `json:"routingReason"`
	ConfidenceScore   float64         `json:"confidenceScore"`
	HasSufficientData bool            `json:"hasSufficientData"`
	CoveredCardIDs    []int64         `json:"coveredCardIds"`
	UncoveredCardIDs  []int64         `json:"uncoveredCardIds"`
	SemanticContext   string          `json:"semanticContext,omitempty"`
}

// survivor pairs a retrieval hit with its parsed metrics so strategies
// never re-parse the content text.
type survivor struct {
	Candidate model.RetrievalCandidate
	Metrics   rewardmath.RuleMetrics
}

func newSurvivor(c model.RetrievalCandidate) survivor {
	return survivor{
		Candidate: c,
		Metrics:   rewardmath.ParseContentText(c.ContentText, fmt.Sprintf("Card %d", c.CardID)),
	}
}
