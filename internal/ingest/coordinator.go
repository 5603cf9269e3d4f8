// Package ingest drives the asynchronous document pipeline: a queue event
// triggers analysis, per-rule index sync and a completion callback to the
// user service.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/cardwiz/ai-service/internal/docanalysis"
	"github.com/cardwiz/ai-service/internal/rewardmath"
	"github.com/cardwiz/ai-service/internal/ruleindex"
)

const callbackSecretHeader = "X-AI-CALLBACK-SECRET"

const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

type IngestEvent struct {
	DocumentID int64  `json:"documentId"`
	CardID     int64  `json:"cardId"`
	ObjectKey  string `json:"s3Key"`
	BucketName string `json:"bucketName,omitempty"`
}

type CallbackPayload struct {
	DocumentID int64   `json:"documentId"`
	CardID     int64   `json:"cardId"`
	Status     string  `json:"status"`
	AISummary  *string `json:"aiSummary"`
	Error      *string `json:"error"`
}

type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, docID int64, bucket, key string) (*docanalysis.AnalysisResult, error)
}

type RuleSyncer interface {
	SyncRule(ctx context.Context, ruleID, cardID int64, contentText string) (*ruleindex.SyncResult, error)
}

type Config struct {
	CallbackURL    string
	CallbackSecret string
}

type Coordinator struct {
	analyzer DocumentAnalyzer
	syncer   RuleSyncer
	client   *http.Client
	cfg      Config
}

func NewCoordinator(analyzer DocumentAnalyzer, syncer RuleSyncer, client *http.Client, cfg Config) *Coordinator {
	if client == nil {
		client = http.DefaultClient
	}
	return &Coordinator{analyzer: analyzer, syncer: syncer, client: client, cfg: cfg}
}

// ProcessEvent is terminal for its event: both outcomes end in a callback
// and a handled message. Rules synced before a mid-stream failure stay
// persisted; the sync is idempotent on replay.
func (c *Coordinator) ProcessEvent(ctx context.Context, ev *IngestEvent) {
	logger := logutil.GetLogger(ctx).With(
		zap.Int64("document_id", ev.DocumentID),
		zap.Int64("card_id", ev.CardID),
		zap.String("object_key", ev.ObjectKey),
	)
	logger.Info("processing ingest event")

	summary, err := c.ingest(ctx, ev)
	if err != nil {
		logger.Error("ingest failed", zap.Error(err))
		msg := err.Error()
		c.notifyCallback(ctx, &CallbackPayload{
			DocumentID: ev.DocumentID,
			CardID:     ev.CardID,
			Status:     StatusFailed,
			Error:      &msg,
		})
		return
	}
	c.notifyCallback(ctx, &CallbackPayload{
		DocumentID: ev.DocumentID,
		CardID:     ev.CardID,
		Status:     StatusCompleted,
		AISummary:  &summary,
	})
	logger.Info("ingest completed")
}

func (c *Coordinator) ingest(ctx context.Context, ev *IngestEvent) (string, error) {
	analysis, err := c.analyzer.AnalyzeDocument(ctx, ev.DocumentID, ev.BucketName, ev.ObjectKey)
	if err != nil {
		return "", err
	}
	for idx, rule := range analysis.ExtractedRules {
		contentText := ruleContentText(rule)
		ruleID := stableRuleID(ev.DocumentID, ev.CardID, idx, contentText)
		if _, err := c.syncer.SyncRule(ctx, ruleID, ev.CardID, contentText); err != nil {
			return "", fmt.Errorf("sync rule %d: %w", ruleID, err)
		}
	}
	logutil.GetLogger(ctx).Info("synced extracted rules", zap.Int("count", len(analysis.ExtractedRules)))
	return analysis.Summary, nil
}

// notifyCallback is best effort. A delivery failure is logged, never
// retried indefinitely, and never rolls back persisted rules.
func (c *Coordinator) notifyCallback(ctx context.Context, payload *CallbackPayload) {
	if c.cfg.CallbackURL == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logutil.GetLogger(ctx).Error("marshal callback payload failed", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CallbackURL, bytes.NewReader(body))
	if err != nil {
		logutil.GetLogger(ctx).Error("build callback request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(callbackSecretHeader, c.cfg.CallbackSecret)
	rsp, err := c.client.Do(req)
	if err != nil {
		logutil.GetLogger(ctx).Error("send ingest callback failed", zap.Error(err))
		return
	}
	defer rsp.Body.Close()
	if rsp.StatusCode >= 300 {
		logutil.GetLogger(ctx).Error("ingest callback rejected", zap.Int("status", rsp.StatusCode))
	}
}

// stableRuleID derives a deterministic id within signed int32 range, so
// re-ingesting the same document upserts instead of duplicating rows.
func stableRuleID(documentID, cardID int64, index int, contentText string) int64 {
	raw := fmt.Sprintf("%d|%d|%d|%s", documentID, cardID, index, contentText)
	digest := sha256.Sum256([]byte(raw))
	prefix := hex.EncodeToString(digest[:])[:16]
	n, _ := strconv.ParseUint(prefix, 16, 64)
	return int64(n%2147483647) + 1
}

func ruleContentText(rule docanalysis.ExtractedRule) string {
	metrics := rewardmath.RuleMetrics{
		CardName:            rule.CardName,
		Category:            rule.Category,
		RewardType:          rule.RewardType,
		RewardRate:          rule.RewardRate,
		PointsPerUnit:       rule.PointsPerUnit,
		SpendUnit:           rule.SpendUnit,
		PointValue:          rewardmath.DefaultPointValue,
		EffectivePercentage: rule.EffectivePercentage,
		Conditions:          rule.Conditions,
	}
	if rule.PointValueRupees != nil {
		metrics.PointValue = *rule.PointValueRupees
	}
	if metrics.EffectivePercentage == 0 {
		switch {
		case metrics.RewardType == rewardmath.RewardTypeCashback:
			metrics.EffectivePercentage = metrics.RewardRate
		case metrics.RewardType == rewardmath.RewardTypePoints &&
			metrics.PointsPerUnit != nil && metrics.SpendUnit != nil && *metrics.SpendUnit > 0:
			metrics.EffectivePercentage = *metrics.PointsPerUnit * metrics.PointValue / *metrics.SpendUnit * 100
		default:
			metrics.EffectivePercentage = metrics.RewardRate
		}
	}
	return rewardmath.Encode(metrics)
}
