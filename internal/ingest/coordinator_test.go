package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardwiz/ai-service/internal/docanalysis"
	"github.com/cardwiz/ai-service/internal/ruleindex"
)

type fakeAnalyzer struct {
	result *docanalysis.AnalysisResult
	err    error
}

func (f *fakeAnalyzer) AnalyzeDocument(ctx context.Context, docID int64, bucket, key string) (*docanalysis.AnalysisResult, error) {
	return f.result, f.err
}

type recordedSync struct {
	ruleID      int64
	cardID      int64
	contentText string
}

type fakeSyncer struct {
	synced []recordedSync
	err    error
}

func (f *fakeSyncer) SyncRule(ctx context.Context, ruleID, cardID int64, contentText string) (*ruleindex.SyncResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.synced = append(f.synced, recordedSync{ruleID, cardID, contentText})
	return &ruleindex.SyncResult{Status: "SYNCED", RuleID: ruleID}, nil
}

func floatPtr(v float64) *float64 { return &v }

func analysisFixture() *docanalysis.AnalysisResult {
	return &docanalysis.AnalysisResult{
		DocumentID: 42,
		Summary:    "Great dining card.",
		ExtractedRules: []docanalysis.ExtractedRule{
			{CardName: "Apex Gold", Category: "Dining", RewardRate: 5, RewardType: "CASHBACK", EffectivePercentage: 5, Conditions: "cap 500; monthly"},
			{CardName: "Apex Gold", Category: "Travel", RewardRate: 20, RewardType: "POINTS", PointsPerUnit: floatPtr(20), SpendUnit: floatPtr(150)},
		},
	}
}

func TestProcessEventCompleted(t *testing.T) {
	var gotSecret string
	var gotPayload CallbackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-AI-CALLBACK-SECRET")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	syncer := &fakeSyncer{}
	c := NewCoordinator(&fakeAnalyzer{result: analysisFixture()}, syncer, server.Client(), Config{
		CallbackURL:    server.URL,
		CallbackSecret: "s3cret",
	})
	c.ProcessEvent(context.Background(), &IngestEvent{DocumentID: 42, CardID: 7, ObjectKey: "docs/apex.pdf"})

	require.Len(t, syncer.synced, 2)
	require.Equal(t, int64(7), syncer.synced[0].cardID)
	require.Contains(t, syncer.synced[0].contentText, "card_name=Apex Gold")
	require.Contains(t, syncer.synced[0].contentText, "reward_type=CASHBACK")
	// semicolons inside conditions must not break the wire format
	require.Contains(t, syncer.synced[0].contentText, "conditions=cap 500, monthly")
	// points rule gets its effective percentage derived at encode time
	require.Contains(t, syncer.synced[1].contentText, "effective_reward_percentage=3.33")

	require.Equal(t, "s3cret", gotSecret)
	require.Equal(t, StatusCompleted, gotPayload.Status)
	require.Equal(t, int64(42), gotPayload.DocumentID)
	require.NotNil(t, gotPayload.AISummary)
	require.Equal(t, "Great dining card.", *gotPayload.AISummary)
	require.Nil(t, gotPayload.Error)
}

func TestProcessEventFailedCallback(t *testing.T) {
	var gotPayload CallbackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewCoordinator(&fakeAnalyzer{err: fmt.Errorf("model down")}, &fakeSyncer{}, server.Client(), Config{
		CallbackURL: server.URL,
	})
	c.ProcessEvent(context.Background(), &IngestEvent{DocumentID: 1, CardID: 2, ObjectKey: "k"})

	require.Equal(t, StatusFailed, gotPayload.Status)
	require.NotNil(t, gotPayload.Error)
	require.Contains(t, *gotPayload.Error, "model down")
	require.Nil(t, gotPayload.AISummary)
}

func TestProcessEventCallbackFailureDoesNotPanic(t *testing.T) {
	syncer := &fakeSyncer{}
	c := NewCoordinator(&fakeAnalyzer{result: analysisFixture()}, syncer, nil, Config{
		CallbackURL: "http://127.0.0.1:1/unreachable",
	})
	c.ProcessEvent(context.Background(), &IngestEvent{DocumentID: 1, CardID: 2, ObjectKey: "k"})
	// rules stay persisted even though the callback never landed
	require.Len(t, syncer.synced, 2)
}

func TestStableRuleIDDeterministic(t *testing.T) {
	a := stableRuleID(42, 7, 0, "card_name=X")
	b := stableRuleID(42, 7, 0, "card_name=X")
	require.Equal(t, a, b)
	require.Greater(t, a, int64(0))
	require.LessOrEqual(t, a, int64(2147483647))

	require.NotEqual(t, a, stableRuleID(42, 7, 1, "card_name=X"))
	require.NotEqual(t, a, stableRuleID(43, 7, 0, "card_name=X"))
	require.NotEqual(t, a, stableRuleID(42, 7, 0, "card_name=Y"))
}
