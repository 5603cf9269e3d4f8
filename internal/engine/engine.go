// Package engine resolves a rank request into one recommended card. It
// retrieves candidate rules, routes to a decision strategy and always
// resolves through the fallback chain agent -> rerank -> deterministic.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/cardwiz/ai-service/internal/ai"
	"github.com/cardwiz/ai-service/internal/model"
	"github.com/cardwiz/ai-service/internal/rewardmath"
	"github.com/cardwiz/ai-service/internal/routing"
)

const (
	reasonNoEligibleCards = "NO_ELIGIBLE_CARDS"
	reasonNoMatchingRules = "NO_MATCHING_RULES"

	tagAgentFailed  = "AGENT_FAILED"
	tagRerankFailed = "RERANK_FAILED"

	defaultCurrency     = "INR"
	confidenceResolved  = 0.86
	confidenceReranked  = 0.8
	confidenceLow       = 0.35
	maxComparisonRows   = 3
	maxReasoningBullets = 3
)

type RuleSearcher interface {
	Search(ctx context.Context, queryText string, k int) ([]model.RetrievalCandidate, error)
}

type Config struct {
	AgentEnabled          bool
	MaxToolIterations     int
	ComplexSpendThreshold float64
	SearchTopK            int
}

type Engine struct {
	searcher RuleSearcher
	gen      ai.IGenerator
	chatter  ai.IChatter
	cfg      Config

	// strategy hooks, replaced in tests to force tier failures
	agentFn  func(ctx context.Context, req *RankRequest, survivors []survivor) *Decision
	rerankFn func(ctx context.Context, req *RankRequest, survivors []survivor) (*Decision, error)
}

func New(searcher RuleSearcher, gen ai.IGenerator, chatter ai.IChatter, cfg Config) *Engine {
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = 6
	}
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = 10
	}
	e := &Engine{searcher: searcher, gen: gen, chatter: chatter, cfg: cfg}
	e.agentFn = e.runAgent
	e.rerankFn = e.runRerank
	return e
}

func (e *Engine) Rank(ctx context.Context, req *RankRequest) (*RecommendationResult, error) {
	logger := logutil.GetLogger(ctx).With(
		zap.Int64("user_id", req.UserID),
		zap.String("merchant", req.MerchantName),
	)
	if len(req.AvailableCardIDs) == 0 {
		return &RecommendationResult{
			RoutingMode:       string(routing.ModeNone),
			RoutingReason:     reasonNoEligibleCards,
			ConfidenceScore:   0,
			HasSufficientData: false,
			Warning:           "no eligible cards supplied",
			Comparison:        []ComparisonRow{},
			CoveredCardIDs:    []int64{},
			UncoveredCardIDs:  []int64{},
		}, nil
	}

	survivors, err := e.retrieveSurvivors(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(survivors) == 0 {
		return e.noMatchResult(req), nil
	}

	route := routing.Decide(routing.Input{
		AgentEnabled:       e.cfg.AgentEnabled,
		BulkEvaluation:     req.BulkEvaluation,
		AvailableCardCount: len(req.AvailableCardIDs),
		TransactionAmount:  req.TransactionAmount,
		FreeText:           req.MerchantName + " " + req.Category + " " + req.ContextNotes,
		HighSpendThreshold: e.cfg.ComplexSpendThreshold,
	})
	logger.Info("routed rank request", zap.String("mode", string(route.Mode)), zap.String("reason", route.Reason))

	mode := route.Mode
	reason := route.Reason
	var decision *Decision

	if mode == routing.ModeAgent {
		if d := e.agentFn(ctx, req, survivors); d != nil {
			decision = d
		} else {
			logger.Warn("agent strategy yielded no decision, falling back")
			reason = reason + "|" + tagAgentFailed
			mode = routing.ModeLLMRerank
		}
	}
	if decision == nil && mode == routing.ModeLLMRerank {
		d, err := e.rerankFn(ctx, req, survivors)
		if err != nil || d == nil {
			logger.Warn("rerank strategy failed, using deterministic tier", zap.Error(err))
			reason = reason + "|" + tagRerankFailed
			mode = routing.ModeDeterministic
		} else {
			decision = d
		}
	}
	if decision == nil {
		decision = deterministicDecision(req, survivors)
		mode = routing.ModeDeterministic
	}
	decision.Mode = string(mode)

	return e.assemble(req, decision, survivors, reason), nil
}

func (e *Engine) retrieveSurvivors(ctx context.Context, req *RankRequest) ([]survivor, error) {
	rows, err := e.searcher.Search(ctx, composeQuery(req), e.cfg.SearchTopK)
	if err != nil {
		return nil, err
	}
	eligible := make(map[int64]struct{}, len(req.AvailableCardIDs))
	for _, id := range req.AvailableCardIDs {
		eligible[id] = struct{}{}
	}
	survivors := make([]survivor, 0, len(rows))
	for _, row := range rows {
		if _, ok := eligible[row.CardID]; ok {
			survivors = append(survivors, newSurvivor(row))
		}
	}
	return survivors, nil
}

func composeQuery(req *RankRequest) string {
	category := req.Category
	if category == "" {
		category = "general purchases"
	}
	parts := []string{req.MerchantName, category, currencyOf(req), req.ContextNotes}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func currencyOf(req *RankRequest) string {
	if req.Currency == "" {
		return defaultCurrency
	}
	return strings.ToUpper(req.Currency)
}

func (e *Engine) noMatchResult(req *RankRequest) *RecommendationResult {
	first := req.AvailableCardIDs[0]
	return &RecommendationResult{
		BestCardID:        first,
		BestCardName:      fmt.Sprintf("Card %d", first),
		Rewards:           Rewards{ValueUnit: currencyOf(req), RewardType: rewardmath.RewardTypeUnknown},
		CalculationLogic:  "No indexed reward rule matched the eligible cards; defaulting to the first eligible card.",
		RoutingMode:       string(routing.ModeNone),
		RoutingReason:     reasonNoMatchingRules,
		ConfidenceScore:   confidenceLow,
		HasSufficientData: false,
		Comparison:        []ComparisonRow{},
		CoveredCardIDs:    []int64{},
		UncoveredCardIDs:  append([]int64(nil), req.AvailableCardIDs...),
		SemanticContext:   composeQuery(req),
	}
}

// assemble enforces the winner-in-survivors invariant and fills in the
// coverage metadata before the result crosses the API boundary.
func (e *Engine) assemble(req *RankRequest, d *Decision, survivors []survivor, reason string) *RecommendationResult {
	if !inSurvivors(d.WinnerCardID, survivors) {
		top := survivors[0]
		spend := req.TransactionAmount
		d.WinnerCardID = top.Candidate.CardID
		d.WinnerCardName = top.Metrics.CardName
		d.Rewards = rewardsFor(top.Metrics, spend)
		if d.Warning == "" {
			d.Warning = "strategy named a card outside the eligible set; substituted the top retrieved card"
		}
	}
	if len(d.Comparison) == 0 || !validComparison(d.Comparison, survivors) {
		d.Comparison = synthesizeComparison(d.WinnerCardID, survivors, req.TransactionAmount)
	}
	if len(d.Comparison) > maxComparisonRows {
		d.Comparison = d.Comparison[:maxComparisonRows]
	}
	if len(d.ReasoningBullets) > maxReasoningBullets {
		d.ReasoningBullets = d.ReasoningBullets[:maxReasoningBullets]
	}
	d.Rewards.EstimatedValue = rewardmath.Round2(d.Rewards.EstimatedValue)
	d.Rewards.EffectivePercentage = rewardmath.Round2(d.Rewards.EffectivePercentage)
	if d.Rewards.ValueUnit == "" {
		d.Rewards.ValueUnit = currencyOf(req)
	}

	covered, uncovered := coverageOf(req.AvailableCardIDs, survivors)
	confidence := confidenceResolved
	if d.Mode != string(routing.ModeAgent) {
		confidence = confidenceReranked
	}
	return &RecommendationResult{
		BestCardID:        d.WinnerCardID,
		BestCardName:      d.WinnerCardName,
		Rewards:           d.Rewards,
		CalculationLogic:  d.CalculationLogic,
		ReasoningBullets:  d.ReasoningBullets,
		Warning:           d.Warning,
		Comparison:        d.Comparison,
		RoutingMode:       d.Mode,
		RoutingReason:     reason,
		ConfidenceScore:   confidence,
		HasSufficientData: true,
		CoveredCardIDs:    covered,
		UncoveredCardIDs:  uncovered,
		SemanticContext:   composeQuery(req),
	}
}

func inSurvivors(cardID int64, survivors []survivor) bool {
	for _, s := range survivors {
		if s.Candidate.CardID == cardID {
			return true
		}
	}
	return false
}

// validComparison rejects tables referencing cards outside the survivor
// set, which happens when a model invents rows.
func validComparison(rows []ComparisonRow, survivors []survivor) bool {
	for _, row := range rows {
		if !inSurvivors(row.CardID, survivors) {
			return false
		}
	}
	return true
}

func synthesizeComparison(winnerCardID int64, survivors []survivor, spend float64) []ComparisonRow {
	rest := make([]survivor, 0, len(survivors))
	seen := map[int64]struct{}{winnerCardID: {}}
	for _, s := range survivors {
		if _, dup := seen[s.Candidate.CardID]; dup {
			continue
		}
		seen[s.Candidate.CardID] = struct{}{}
		rest = append(rest, s)
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].Metrics.EffectivePercentage > rest[j].Metrics.EffectivePercentage
	})
	if len(rest) > maxComparisonRows {
		rest = rest[:maxComparisonRows]
	}
	rows := make([]ComparisonRow, 0, len(rest))
	for _, s := range rest {
		rows = append(rows, ComparisonRow{
			CardID:              s.Candidate.CardID,
			CardName:            s.Metrics.CardName,
			EffectivePercentage: rewardmath.Round2(s.Metrics.EffectivePercentage),
			EstimatedValue:      rewardmath.Round2(s.Metrics.EstimatedValue(spend)),
			Verdict:             "lower effective reward for this spend",
		})
	}
	return rows
}

func coverageOf(cardIDs []int64, survivors []survivor) (covered []int64, uncovered []int64) {
	hit := make(map[int64]struct{}, len(survivors))
	for _, s := range survivors {
		hit[s.Candidate.CardID] = struct{}{}
	}
	covered = make([]int64, 0, len(cardIDs))
	uncovered = make([]int64, 0)
	for _, id := range cardIDs {
		if _, ok := hit[id]; ok {
			covered = append(covered, id)
		} else {
			uncovered = append(uncovered, id)
		}
	}
	return covered, uncovered
}

func rewardsFor(m rewardmath.RuleMetrics, spend float64) Rewards {
	return Rewards{
		EstimatedValue:      m.EstimatedValue(spend),
		EffectivePercentage: m.EffectivePercentage,
		RewardType:          m.RewardType,
		RawPointsEarned:     m.RawPointsEarned(spend),
	}
}
