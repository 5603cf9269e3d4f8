package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/cardwiz/ai-service/internal/ai"
)

const agentPromptTemplate = `You are a credit-card optimization agent.
Use tools to compute exact reward values and then return the best card.

User context:
- user_id: %d
- merchant: %s
- category: %s
- spend_amount: %v
- currency: %s
- available_card_ids: %v
- context_notes: %s

Execution requirements:
1. Call search_card_rules first.
2. For each promising candidate, call calculate_reward with:
   - spend_amount from user context
   - reward_rate = effective_reward_percentage
   - reward_mode = "PERCENTAGE"
3. Choose the card with highest computed reward value.
4. Mention tool usage clearly in calculation_logic/reasoning.

Return STRICT JSON only:
%s`

// runAgent drives a bounded tool-use loop. The conversation history is
// never mutated in place; every iteration builds a new slice, so a failed
// turn cannot corrupt earlier state. Any error anywhere converts to a nil
// decision: the agent is best effort, never a hard dependency.
func (e *Engine) runAgent(ctx context.Context, req *RankRequest, survivors []survivor) *Decision {
	if e.chatter == nil {
		return nil
	}
	logger := logutil.GetLogger(ctx)
	history := []ai.ChatMessage{ai.TextMessage(ai.RoleUser, buildAgentPrompt(req))}
	tools := agentToolSpecs()

	for i := 0; i < e.cfg.MaxToolIterations; i++ {
		turn, err := e.chatter.Chat(ctx, history, tools)
		if err != nil {
			logger.Warn("agent chat turn failed", zap.Int("iteration", i), zap.Error(err))
			return nil
		}
		if turn.StopReason != ai.StopToolUse {
			if strings.TrimSpace(turn.Message.Text) == "" {
				return nil
			}
			decision, err := parseWireDecision(turn.Message.Text)
			if err != nil {
				logger.Warn("agent returned unparsable decision", zap.Error(err))
				return nil
			}
			return decision
		}

		results := make([]ai.ToolResult, 0, len(turn.Message.ToolCalls))
		for _, call := range turn.Message.ToolCalls {
			content, err := e.execTool(ctx, req, call)
			if err != nil {
				logger.Warn("agent tool call failed", zap.String("tool", call.Name), zap.Error(err))
				return nil
			}
			results = append(results, ai.ToolResult{ID: call.ID, Name: call.Name, Content: content})
		}
		next := make([]ai.ChatMessage, 0, len(history)+2)
		next = append(next, history...)
		next = append(next, turn.Message)
		next = append(next, ai.ChatMessage{Role: ai.RoleUser, ToolResults: results})
		history = next
	}
	logger.Warn("agent exceeded tool iteration cap without a decision")
	return nil
}

func (e *Engine) execTool(ctx context.Context, req *RankRequest, call ai.ToolCall) (map[string]interface{}, error) {
	switch call.Name {
	case toolSearchCardRules:
		return e.runSearchCardRules(ctx, req, call.Input)
	case toolCalculateReward:
		return runCalculateReward(req, call.Input), nil
	default:
		return map[string]interface{}{"error": fmt.Sprintf("unknown tool: %s", call.Name)}, nil
	}
}

func buildAgentPrompt(req *RankRequest) string {
	category := req.Category
	if category == "" {
		category = "general"
	}
	notes := req.ContextNotes
	if notes == "" {
		notes = "none"
	}
	return fmt.Sprintf(agentPromptTemplate,
		req.UserID,
		req.MerchantName,
		category,
		req.TransactionAmount,
		currencyOf(req),
		req.AvailableCardIDs,
		notes,
		decisionSchemaJSON,
	)
}
