package ruleindex

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cardwiz/ai-service/internal/model"
)

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, purpose string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake-embedder"
}

type fakeRuleStore struct {
	rows        []model.RetrievalCandidate
	searchCalls int
	upserts     int
}

func (f *fakeRuleStore) Upsert(ctx context.Context, rule *model.RewardRuleVector) error {
	f.upserts++
	return nil
}

func (f *fakeRuleStore) HybridSearch(ctx context.Context, embedding []float32, queryText string, k int, vectorWeight, keywordWeight float64) ([]model.RetrievalCandidate, error) {
	f.searchCalls++
	return f.rows, nil
}

func (f *fakeRuleStore) Coverage(ctx context.Context, cardIDs []int64) (map[int64]struct{}, error) {
	return map[int64]struct{}{}, nil
}

type fakeVersionStore struct {
	version int64
}

func (f *fakeVersionStore) Bump(ctx context.Context) (int64, error) {
	f.version++
	return f.version, nil
}

func (f *fakeVersionStore) Current(ctx context.Context) (int64, error) {
	return f.version, nil
}

func newCachedIndex(t *testing.T, rules *fakeRuleStore, versions *fakeVersionStore) (*Index, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idx := New(&fakeEmbedder{}, rules, versions, client, Config{
		TopK:          5,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
		CacheTTL:      time.Minute,
	})
	return idx, mr
}

func TestSearchServesSecondCallFromCache(t *testing.T) {
	rules := &fakeRuleStore{rows: []model.RetrievalCandidate{
		{RuleID: 1, CardID: 10, ContentText: "card_name=Card 10", FinalScore: 0.9},
	}}
	idx, _ := newCachedIndex(t, rules, &fakeVersionStore{version: 1})
	ctx := context.Background()

	first, err := idx.Search(ctx, "Starbucks coffee", 5)
	require.NoError(t, err)
	second, err := idx.Search(ctx, "Starbucks coffee", 5)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, rules.searchCalls)
}

func TestSearchCacheInvalidatedBySync(t *testing.T) {
	rules := &fakeRuleStore{rows: []model.RetrievalCandidate{
		{RuleID: 1, CardID: 10, ContentText: "card_name=Card 10", FinalScore: 0.9},
	}}
	versions := &fakeVersionStore{version: 1}
	idx, _ := newCachedIndex(t, rules, versions)
	ctx := context.Background()

	_, err := idx.Search(ctx, "Starbucks coffee", 5)
	require.NoError(t, err)
	require.Equal(t, 1, rules.searchCalls)

	_, err = idx.SyncRule(ctx, 2, 11, "card_name=Card 11; category=dining; reward_type=CASHBACK; reward_rate=5; conditions=null")
	require.NoError(t, err)
	require.Equal(t, 1, rules.upserts)
	require.Equal(t, int64(2), versions.version)

	rules.rows = append(rules.rows, model.RetrievalCandidate{RuleID: 2, CardID: 11, FinalScore: 0.8})
	after, err := idx.Search(ctx, "Starbucks coffee", 5)
	require.NoError(t, err)
	require.Equal(t, 2, rules.searchCalls)
	require.Len(t, after, 2)
}

func TestSearchExpiredCacheEntryRefetches(t *testing.T) {
	rules := &fakeRuleStore{rows: []model.RetrievalCandidate{
		{RuleID: 1, CardID: 10, FinalScore: 0.9},
	}}
	idx, mr := newCachedIndex(t, rules, &fakeVersionStore{version: 1})
	ctx := context.Background()

	_, err := idx.Search(ctx, "grocery store", 5)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = idx.Search(ctx, "grocery store", 5)
	require.NoError(t, err)
	require.Equal(t, 2, rules.searchCalls)
}

func TestSearchWorksWithoutRedis(t *testing.T) {
	rules := &fakeRuleStore{rows: []model.RetrievalCandidate{
		{RuleID: 1, CardID: 10, FinalScore: 0.9},
	}}
	idx := New(&fakeEmbedder{}, rules, &fakeVersionStore{version: 1}, nil, Config{TopK: 5})
	ctx := context.Background()

	_, err := idx.Search(ctx, "fuel", 5)
	require.NoError(t, err)
	_, err = idx.Search(ctx, "fuel", 5)
	require.NoError(t, err)
	require.Equal(t, 2, rules.searchCalls)
}
