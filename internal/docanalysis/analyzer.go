// Package docanalysis turns uploaded card documents and statements into
// structured data via a multimodal inference call.
package docanalysis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/cardwiz/ai-service/internal/ai"
	apperr "github.com/cardwiz/ai-service/internal/pkg/errors"
)

type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) (data []byte, contentType string, err error)
}

type ExtractedRule struct {
	CardName            string   `json:"cardName"`
	Category            string   `json:"category"`
	RewardRate          float64  `json:"rewardRate"`
	RewardType          string   `json:"rewardType"`
	PointsPerUnit       *float64 `json:"pointsPerUnit"`
	SpendUnit           *float64 `json:"spendUnit"`
	PointValueRupees    *float64 `json:"pointValueRupees"`
	EffectivePercentage float64  `json:"effectiveRewardPercentage"`
	Conditions          string   `json:"conditions"`
}

type AnalysisResult struct {
	DocumentID     int64           `json:"docId"`
	Source         string          `json:"sourceS3"`
	ModelUsed      string          `json:"modelUsed"`
	ExtractedRules []ExtractedRule `json:"extractedRules"`
	Summary        string          `json:"aiSummary"`
}

type Transaction struct {
	Date     string  `json:"date"`
	Merchant string  `json:"merchant"`
	Amount   float64 `json:"amount"`
}

type Config struct {
	DefaultBucket   string
	MaxRetries      int
	RetryBackoff    time.Duration
	StatementMaxTxs int
}

type Analyzer struct {
	fetcher ObjectFetcher
	chatter ai.IChatter
	cfg     Config

	sleep func(ctx context.Context, d time.Duration) error
}

func New(fetcher ObjectFetcher, chatter ai.IChatter, cfg Config) *Analyzer {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.StatementMaxTxs <= 0 {
		cfg.StatementMaxTxs = 30
	}
	return &Analyzer{fetcher: fetcher, chatter: chatter, cfg: cfg, sleep: sleepContext}
}

const documentPrompt = `Analyze this credit card document carefully.
Extract all reward rules, specifically cashback percentages, point multipliers, and merchant-specific benefits.
Return ONLY a JSON object that matches this structure:
{
  "extractedRules": [
    {
      "cardName": "string",
      "category": "string",
      "rewardRate": float,
      "rewardType": "CASHBACK|POINTS|MILES",
      "pointsPerUnit": float|null,
      "spendUnit": float|null,
      "pointValueRupees": float|null,
      "effectiveRewardPercentage": float,
      "conditions": "string"
    }
  ],
  "aiSummary": "A brief summary of the card's best value proposition."
}

Normalization rules:
- For cashback percentages, effectiveRewardPercentage == cashback percentage.
- For points rules, compute effectiveRewardPercentage using:
  pointsPerUnit * pointValueRupees / spendUnit * 100
- Example: 20 points per 150 spend, pointValueRupees=0.25 => 3.33`

const statementPromptTemplate = `This is a credit-card statement.
Extract transaction rows into JSON.

Return ONLY this JSON object shape:
{
  "transactions": [
    {
      "date": "string",
      "merchant": "string",
      "amount": float
    }
  ]
}

Extraction rules:
- Include only purchase/spend transactions (exclude payments, fees, reversals, and refunds).
- Amount must be positive numeric values with no currency symbol.
- Merchant should be concise and readable.
- Keep the order exactly as shown in the statement.
- Return at most %d transactions.`

func (a *Analyzer) AnalyzeDocument(ctx context.Context, docID int64, bucket, key string) (*AnalysisResult, error) {
	msg, source, err := a.buildDocumentMessage(ctx, bucket, key, documentPrompt)
	if err != nil {
		return nil, err
	}
	var payload struct {
		ExtractedRules []ExtractedRule `json:"extractedRules"`
		AISummary      string          `json:"aiSummary"`
	}
	if err := a.chatAndDecode(ctx, msg, &payload); err != nil {
		return nil, fmt.Errorf("%w: analyze document %s: %v", apperr.ErrAnalysisFailed, key, err)
	}
	return &AnalysisResult{
		DocumentID:     docID,
		Source:         source,
		ModelUsed:      a.chatter.ModelName(),
		ExtractedRules: payload.ExtractedRules,
		Summary:        payload.AISummary,
	}, nil
}

func (a *Analyzer) ExtractStatementTransactions(ctx context.Context, bucket, key string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > a.cfg.StatementMaxTxs {
		limit = a.cfg.StatementMaxTxs
	}
	prompt := fmt.Sprintf(statementPromptTemplate, limit)
	msg, _, err := a.buildDocumentMessage(ctx, bucket, key, prompt)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := a.chatAndDecode(ctx, msg, &payload); err != nil {
		return nil, fmt.Errorf("%w: extract statement %s: %v", apperr.ErrAnalysisFailed, key, err)
	}
	filtered := make([]Transaction, 0, len(payload.Transactions))
	for _, tx := range payload.Transactions {
		if strings.TrimSpace(tx.Merchant) == "" || tx.Amount <= 0 {
			continue
		}
		filtered = append(filtered, tx)
		if len(filtered) >= limit {
			break
		}
	}
	return filtered, nil
}

func (a *Analyzer) buildDocumentMessage(ctx context.Context, bucket, key, prompt string) (ai.ChatMessage, string, error) {
	if bucket == "" {
		bucket = a.cfg.DefaultBucket
	}
	data, contentType, err := a.fetcher.Fetch(ctx, bucket, key)
	if err != nil {
		return ai.ChatMessage{}, "", fmt.Errorf("fetch s3://%s/%s: %w", bucket, key, err)
	}
	return ai.ChatMessage{
		Role:   ai.RoleUser,
		Text:   prompt,
		Images: []ai.ImageBlock{{MIMEType: mimeTypeOf(key, contentType), Data: data}},
	}, fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

// mimeTypeOf trusts the object key suffix over a missing or generic
// stored content type. The inference providers accept PDFs inline, so
// statements need no page rasterization here.
func mimeTypeOf(key, contentType string) string {
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".pdf") || contentType == "application/pdf":
		return "application/pdf"
	case strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case contentType != "" && contentType != "application/octet-stream":
		return contentType
	default:
		return "image/png"
	}
}

// chatAndDecode sends the message with retry, then decodes the reply.
// Malformed JSON earns exactly one repair round-trip; a second failure
// propagates as malformed model output.
func (a *Analyzer) chatAndDecode(ctx context.Context, msg ai.ChatMessage, dst interface{}) error {
	turn, err := a.chatWithRetry(ctx, msg)
	if err != nil {
		return err
	}
	text := turn.Message.Text
	if err := json.Unmarshal([]byte(extractJSONPayload(text)), dst); err == nil {
		return nil
	}
	logutil.GetLogger(ctx).Warn("model returned malformed json, requesting repair")
	repairTurn, err := a.chatWithRetry(ctx, ai.TextMessage(ai.RoleUser, buildRepairPrompt(text)))
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSONPayload(repairTurn.Message.Text)), dst); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrMalformedModelOutput, err)
	}
	return nil
}

func (a *Analyzer) chatWithRetry(ctx context.Context, msg ai.ChatMessage) (*ai.ChatTurn, error) {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		turn, err := a.chatter.Chat(ctx, []ai.ChatMessage{msg}, nil)
		if err == nil {
			return turn, nil
		}
		lastErr = err
		if attempt >= a.cfg.MaxRetries {
			break
		}
		wait := a.cfg.RetryBackoff * time.Duration(1<<attempt)
		logutil.GetLogger(ctx).Warn("inference call failed, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("backoff", wait), zap.Error(err))
		if err := a.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func buildRepairPrompt(malformed string) string {
	return "You returned malformed JSON in the previous response.\n" +
		"Fix the JSON so it is strictly valid and return ONLY the JSON object.\n" +
		"Do not add markdown, explanations, or extra keys.\n\nMalformed output:\n" + malformed
}

var reFencedJSON = regexp.MustCompile("(?is)```(?:json)?\\s*([\\s\\S]*?)\\s*```")

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
