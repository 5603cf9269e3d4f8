// Package routing decides which decision strategy serves a request. It is
// a pure function of the request shape: no clock, no I/O, no state.
package routing

import "strings"

type Mode string

const (
	ModeAgent         Mode = "agent"
	ModeLLMRerank     Mode = "llm_rerank"
	ModeDeterministic Mode = "deterministic"
	ModeNone          Mode = "none"
)

const (
	ReasonAgentDisabled     = "AGENT_DISABLED"
	ReasonBulkEvalMode      = "BULK_EVAL_MODE"
	ReasonInsufficientCards = "INSUFFICIENT_CARD_CHOICES"
	ReasonMissingSpend      = "MISSING_OR_ZERO_SPEND"
	ReasonHighSpend         = "HIGH_SPEND_COMPLEX"
	ReasonComplexIntent     = "COMPLEX_INTENT"
	ReasonStandardRerank    = "STANDARD_RERANK"
)

// BulkEvalMarker is honored inside free-text notes for wire compatibility
// with callers that predate the typed BulkEvaluation flag.
const BulkEvalMarker = "[BULK_EVAL]"

var complexIntentKeywords = []string{
	"optimize", "max", "maximize", "best", "which card", "should i use", "compare",
}

type Input struct {
	AgentEnabled       bool
	BulkEvaluation     bool
	AvailableCardCount int
	TransactionAmount  float64
	FreeText           string
	HighSpendThreshold float64
}

type Decision struct {
	Mode   Mode
	Reason string
}

// Decide evaluates the decision table in order; first match wins.
func Decide(in Input) Decision {
	if !in.AgentEnabled {
		return Decision{Mode: ModeLLMRerank, Reason: ReasonAgentDisabled}
	}
	if in.BulkEvaluation || strings.Contains(strings.ToUpper(in.FreeText), BulkEvalMarker) {
		return Decision{Mode: ModeDeterministic, Reason: ReasonBulkEvalMode}
	}
	if in.AvailableCardCount < 2 {
		return Decision{Mode: ModeDeterministic, Reason: ReasonInsufficientCards}
	}
	if in.TransactionAmount <= 0 {
		return Decision{Mode: ModeDeterministic, Reason: ReasonMissingSpend}
	}
	if in.HighSpendThreshold > 0 && in.TransactionAmount >= in.HighSpendThreshold {
		return Decision{Mode: ModeAgent, Reason: ReasonHighSpend}
	}
	text := strings.ToLower(in.FreeText)
	for _, keyword := range complexIntentKeywords {
		if strings.Contains(text, keyword) {
			return Decision{Mode: ModeAgent, Reason: ReasonComplexIntent}
		}
	}
	return Decision{Mode: ModeLLMRerank, Reason: ReasonStandardRerank}
}
