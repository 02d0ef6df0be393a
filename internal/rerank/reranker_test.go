package rerank

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/kotaehq/kotae/internal/models"
)

func record(id string, hybrid float64, data map[string]interface{}) *models.ScoredRecord {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &models.ScoredRecord{
		Record: &models.Record{
			ID:       id,
			FileName: id + ".json",
			Summary:  "summary for " + id,
			Data:     data,
		},
		HybridScore: hybrid,
	}
}

func TestParseScores(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []float64
	}{
		{"bare array", "[8, 3, 10]", []float64{8, 3, 10}},
		{"with chatter", "Here are the scores: [7.5, 2] as requested.", []float64{7.5, 2}},
		{"no array", "no scores here", nil},
		{"garbage inside", "[1, 2, 3,]", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseScores(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseScores(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

type fakeScorer struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeScorer) ScoreRelevance(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRerank_LLMBlendsScores(t *testing.T) {
	scorer := &fakeScorer{response: "[10, 2]"}
	r := New(WithScorer(scorer))

	results := []*models.ScoredRecord{
		record("a", 0.5, nil),
		record("b", 0.9, nil),
	}
	out := r.Rerank(context.Background(), "query", results, Options{UseLLM: true})

	var a, b *models.ScoredRecord
	for _, item := range out {
		switch item.ID {
		case "a":
			a = item
		case "b":
			b = item
		}
	}
	if a.LLMScore != 1.0 || b.LLMScore != 0.2 {
		t.Errorf("llm scores: a=%v b=%v", a.LLMScore, b.LLMScore)
	}
	if !almostEqual(a.RerankScore, 0.5*0.6+1.0*0.4) {
		t.Errorf("blend for a: %v", a.RerankScore)
	}
	if !almostEqual(b.RerankScore, 0.9*0.6+0.2*0.4) {
		t.Errorf("blend for b: %v", b.RerankScore)
	}
	// a's blended score (0.7) beats b's (0.62).
	if out[0].ID != "a" {
		t.Errorf("expected a first, got %q", out[0].ID)
	}
	if len(scorer.prompts) != 1 {
		t.Errorf("expected one batch, got %d", len(scorer.prompts))
	}
}

func TestRerank_LLMBatchFailureKeepsHybrid(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("model down")}
	r := New(WithScorer(scorer))

	results := []*models.ScoredRecord{record("a", 0.8, nil)}
	out := r.Rerank(context.Background(), "query", results, Options{UseLLM: true})

	if out[0].LLMScore != 0.5 {
		t.Errorf("failed batch should record neutral llm score, got %v", out[0].LLMScore)
	}
	if out[0].RerankScore != 0.8 {
		t.Errorf("failed batch should keep hybrid score, got %v", out[0].RerankScore)
	}
}

func TestRerank_LLMMissingScoreDefaultsToFive(t *testing.T) {
	// One score for two items: the second falls back to 5 (-> 0.5).
	scorer := &fakeScorer{response: "[10]"}
	r := New(WithScorer(scorer))

	results := []*models.ScoredRecord{
		record("a", 0.5, nil),
		record("b", 0.5, nil),
	}
	out := r.Rerank(context.Background(), "query", results, Options{UseLLM: true})

	for _, item := range out {
		if item.ID == "b" && item.LLMScore != 0.5 {
			t.Errorf("missing score should default to 0.5, got %v", item.LLMScore)
		}
	}
}

func TestRerank_LLMBatching(t *testing.T) {
	scorer := &fakeScorer{response: "[5, 5]"}
	r := New(WithScorer(scorer))

	results := make([]*models.ScoredRecord, 5)
	for i := range results {
		results[i] = record(string(rune('a'+i)), 0.5, nil)
	}
	r.Rerank(context.Background(), "query", results, Options{UseLLM: true, BatchSize: 2})

	if len(scorer.prompts) != 3 {
		t.Errorf("expected 3 batches of size 2, got %d", len(scorer.prompts))
	}
}

func TestTemporalBoost_RecentOutranksOld(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r := New(withClock(func() time.Time { return now }))

	recent := record("recent", 0.5, map[string]interface{}{"date": "2025-05-01"})
	old := record("old", 0.5, map[string]interface{}{"date": "2015-05-01"})
	undated := record("undated", 0.5, nil)

	out := r.Rerank(context.Background(), "q", []*models.ScoredRecord{old, recent, undated},
		Options{UseTemporal: true})

	if out[0].ID != "recent" {
		t.Errorf("recent item should rank first, got %q", out[0].ID)
	}
	for _, item := range out {
		switch item.ID {
		case "recent":
			if item.TemporalBoost <= 1.0 || item.TemporalBoost > 1.2 {
				t.Errorf("recent boost out of range: %v", item.TemporalBoost)
			}
		case "old":
			// Decayed all the way down, clamped at the floor.
			if item.TemporalBoost != 1.0 {
				t.Errorf("old boost should clamp to 1.0, got %v", item.TemporalBoost)
			}
		case "undated":
			if item.TemporalBoost != 0 {
				t.Errorf("undated item should not be boosted, got %v", item.TemporalBoost)
			}
		}
	}
}

func TestTemporalBoost_TimeFieldMonthYear(t *testing.T) {
	now := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	r := New(withClock(func() time.Time { return now }))

	item := record("job", 0.5, map[string]interface{}{"time": "Sept 2024 - Present"})
	out := r.Rerank(context.Background(), "q", []*models.ScoredRecord{item},
		Options{UseTemporal: true})

	if out[0].TemporalBoost <= 1.0 {
		t.Errorf("truncated month name should still parse, boost=%v", out[0].TemporalBoost)
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"January 2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"Jan 2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"Sept 2024", time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), true},
		{"not a date", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := parseDate(tc.in)
		if ok != tc.ok {
			t.Errorf("parseDate(%q) ok=%v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && !got.Equal(tc.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestConversationContext_BoostsMentionedTopics(t *testing.T) {
	r := New()
	history := []models.Turn{
		{Role: models.RoleUser, Content: "tell me about kubernetes deployments"},
		{Role: models.RoleAssistant, Content: "kubernetes is mentioned here too"},
	}

	match := record("match", 0.5, map[string]interface{}{"tech": "kubernetes"})
	miss := record("miss", 0.5, nil)

	out := r.Rerank(context.Background(), "q", []*models.ScoredRecord{miss, match},
		Options{UseContext: true, History: history})

	for _, item := range out {
		switch item.ID {
		case "match":
			// Only "kubernetes" appears in the item text.
			if item.ContextBoost != 1.1 {
				t.Errorf("context boost: %v", item.ContextBoost)
			}
		case "miss":
			if item.ContextBoost != 0 {
				t.Errorf("unrelated item boosted: %v", item.ContextBoost)
			}
		}
	}
	if out[0].ID != "match" {
		t.Errorf("boosted item should rank first, got %q", out[0].ID)
	}
}

func TestConversationContext_AssistantTurnsIgnored(t *testing.T) {
	r := New()
	history := []models.Turn{
		{Role: models.RoleAssistant, Content: "kubernetes kubernetes kubernetes"},
	}
	item := record("match", 0.5, map[string]interface{}{"tech": "kubernetes"})

	out := r.Rerank(context.Background(), "q", []*models.ScoredRecord{item},
		Options{UseContext: true, History: history})
	if out[0].ContextBoost != 0 {
		t.Errorf("assistant turns should not contribute topics, boost=%v", out[0].ContextBoost)
	}
}

func TestRerank_SeedsRerankScoreFromHybrid(t *testing.T) {
	r := New()
	results := []*models.ScoredRecord{record("a", 0.8, nil)}
	results[0].Similarity = 0.3

	out := r.Rerank(context.Background(), "q", results, Options{})
	if out[0].RerankScore != 0.8 {
		t.Errorf("rerank score should seed from hybrid, got %v", out[0].RerankScore)
	}
}

func TestRerank_DoesNotReorderInput(t *testing.T) {
	r := New()
	low := record("low", 0.1, nil)
	high := record("high", 0.9, nil)
	input := []*models.ScoredRecord{low, high}

	out := r.Rerank(context.Background(), "q", input, Options{})
	if out[0].ID != "high" {
		t.Errorf("output should be sorted, got %q first", out[0].ID)
	}
	if input[0] != low || input[1] != high {
		t.Error("input slice order should be preserved")
	}
}
