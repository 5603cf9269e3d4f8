package ruleindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/cardwiz/ai-service/internal/ai"
	"github.com/cardwiz/ai-service/internal/model"
	apperr "github.com/cardwiz/ai-service/internal/pkg/errors"
)

type RuleStore interface {
	Upsert(ctx context.Context, rule *model.RewardRuleVector) error
	HybridSearch(ctx context.Context, embedding []float32, queryText string, k int, vectorWeight, keywordWeight float64) ([]model.RetrievalCandidate, error)
	Coverage(ctx context.Context, cardIDs []int64) (map[int64]struct{}, error)
}

type VersionStore interface {
	Bump(ctx context.Context) (int64, error)
	Current(ctx context.Context) (int64, error)
}

// Embedding purposes. Some providers encode asymmetric embeddings, so
// index-time and query-time vectors must not share cache entries.
const (
	PurposeIndex = "RETRIEVAL_DOCUMENT"
	PurposeQuery = "RETRIEVAL_QUERY"
)

type Config struct {
	TopK          int
	VectorWeight  float64
	KeywordWeight float64
	EmbeddingDim  int
	CacheTTL      time.Duration
}

// Index owns embedding computation and hybrid retrieval over persisted
// reward rules. Search results are cached in redis keyed by the current
// index version, so any rule write invalidates prior entries without
// explicit deletion.
type Index struct {
	embedder ai.IEmbedder
	rules    RuleStore
	versions VersionStore
	rdb      redis.Cmdable
	cfg      Config
}

func New(embedder ai.IEmbedder, rules RuleStore, versions VersionStore, rdb redis.Cmdable, cfg Config) *Index {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Index{embedder: embedder, rules: rules, versions: versions, rdb: rdb, cfg: cfg}
}

func (s *Index) GetEmbedding(ctx context.Context, text string, purpose string) ([]float32, error) {
	clean := Normalize(text)
	vec, err := s.embedder.Embed(ctx, clean, purpose)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedder returned empty vector")
	}
	if s.cfg.EmbeddingDim > 0 && len(vec) > s.cfg.EmbeddingDim {
		vec = vec[:s.cfg.EmbeddingDim]
	}
	return vec, nil
}

type SyncResult struct {
	Status string `json:"status"`
	RuleID int64  `json:"ruleId"`
}

func (s *Index) SyncRule(ctx context.Context, ruleID, cardID int64, contentText string) (*SyncResult, error) {
	embedding, err := s.GetEmbedding(ctx, contentText, PurposeIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrEmbeddingUnavailable, err)
	}
	if err := s.rules.Upsert(ctx, &model.RewardRuleVector{
		RuleID:      ruleID,
		CardID:      cardID,
		ContentText: contentText,
		Embedding:   embedding,
	}); err != nil {
		return nil, err
	}
	if _, err := s.versions.Bump(ctx); err != nil {
		return nil, fmt.Errorf("bump index version: %w", err)
	}
	logutil.GetLogger(ctx).Info("rule synced", zap.Int64("rule_id", ruleID), zap.Int64("card_id", cardID))
	return &SyncResult{Status: "SYNCED", RuleID: ruleID}, nil
}

func (s *Index) Search(ctx context.Context, queryText string, k int) ([]model.RetrievalCandidate, error) {
	if k <= 0 {
		k = s.cfg.TopK
	}
	logger := logutil.GetLogger(ctx).With(zap.String("query", queryText), zap.Int("k", k))
	embedding, err := s.GetEmbedding(ctx, queryText, PurposeQuery)
	if err != nil {
		return nil, err
	}
	clean := Normalize(queryText)

	version, err := s.versions.Current(ctx)
	if err != nil {
		logger.Warn("read index version failed", zap.Error(err))
		version = 0
	}
	cacheKey := s.searchCacheKey(clean, k, version)
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []model.RetrievalCandidate
			if err := json.Unmarshal(raw, &cached); err == nil {
				logger.Debug("hybrid search cache hit", zap.Int64("index_version", version))
				return cached, nil
			}
		}
	}

	rows, err := s.rules.HybridSearch(ctx, embedding, clean, k, s.cfg.VectorWeight, s.cfg.KeywordWeight)
	if err != nil {
		return nil, err
	}
	if s.rdb != nil {
		if raw, err := json.Marshal(rows); err == nil {
			if err := s.rdb.Set(ctx, cacheKey, raw, s.cfg.CacheTTL).Err(); err != nil {
				logger.Warn("cache hybrid search result failed", zap.Error(err))
			}
		}
	}
	return rows, nil
}

func (s *Index) Coverage(ctx context.Context, cardIDs []int64) ([]int64, error) {
	covered, err := s.rules.Coverage(ctx, cardIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(covered))
	for id := range covered {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// searchCacheKey mixes the normalized query, k, both weights and the
// current index version, so a write can never serve stale results.
func (s *Index) searchCacheKey(cleanQuery string, k int, version int64) string {
	raw := fmt.Sprintf("%s|%d|%v|%v|%d", cleanQuery, k, s.cfg.VectorWeight, s.cfg.KeywordWeight, version)
	digest := sha256.Sum256([]byte(raw))
	return "cardwiz:search:" + hex.EncodeToString(digest[:])
}
