package rerank

import (
	"context"
	"testing"

	"github.com/kotaehq/kotae/internal/models"
)

func embedded(id string, score float64, embedding []float32) *models.ScoredRecord {
	return &models.ScoredRecord{
		Record: &models.Record{
			ID:        id,
			Embedding: embedding,
			Data:      map[string]interface{}{},
		},
		HybridScore: score,
	}
}

func TestMMR_TopScoredGoesFirst(t *testing.T) {
	r := New()
	results := []*models.ScoredRecord{
		embedded("low", 0.2, []float32{1, 0}),
		embedded("high", 0.9, []float32{0, 1}),
	}

	out := r.Rerank(context.Background(), "q", results, Options{UseDiversity: true})
	if out[0].ID != "high" {
		t.Errorf("first pick should be the top-scored item, got %q", out[0].ID)
	}
	if out[0].MMRRank != 1 || out[1].MMRRank != 2 {
		t.Errorf("ranks: %d, %d", out[0].MMRRank, out[1].MMRRank)
	}
}

func TestMMR_PrefersDiverseItem(t *testing.T) {
	r := New()
	// "dup" scores slightly above "diverse" but duplicates the first pick.
	results := []*models.ScoredRecord{
		embedded("first", 0.9, []float32{1, 0}),
		embedded("dup", 0.52, []float32{1, 0}),
		embedded("diverse", 0.5, []float32{0, 1}),
	}

	out := r.Rerank(context.Background(), "q", results, Options{UseDiversity: true})

	if out[0].ID != "first" {
		t.Fatalf("first pick: %q", out[0].ID)
	}
	// dup: 0.7*0.52 - 0.3*1.0 = 0.064; diverse: 0.7*0.5 - 0.3*0.0 = 0.35.
	if out[1].ID != "diverse" {
		t.Errorf("second pick should favor diversity, got %q", out[1].ID)
	}
}

func TestMMR_LambdaOneIsPureRelevance(t *testing.T) {
	r := New()
	lambda := 1.0
	results := []*models.ScoredRecord{
		embedded("first", 0.9, []float32{1, 0}),
		embedded("dup", 0.52, []float32{1, 0}),
		embedded("diverse", 0.5, []float32{0, 1}),
	}

	out := r.Rerank(context.Background(), "q", results,
		Options{UseDiversity: true, Lambda: &lambda})

	if out[1].ID != "dup" {
		t.Errorf("lambda 1.0 should ignore diversity, got %q second", out[1].ID)
	}
}

func TestMMR_MissingEmbeddingCountsAsDiverse(t *testing.T) {
	r := New()
	results := []*models.ScoredRecord{
		embedded("first", 0.9, []float32{1, 0}),
		embedded("dup", 0.6, []float32{1, 0}),
		embedded("blind", 0.55, nil),
	}

	out := r.Rerank(context.Background(), "q", results, Options{UseDiversity: true})

	// dup: 0.7*0.6 - 0.3*1.0 = 0.12; blind: 0.7*0.55 - 0 = 0.385.
	if out[1].ID != "blind" {
		t.Errorf("item without embedding should count as diverse, got %q", out[1].ID)
	}
}

func TestMMR_SingleItem(t *testing.T) {
	r := New()
	results := []*models.ScoredRecord{embedded("only", 0.5, nil)}
	out := r.Rerank(context.Background(), "q", results, Options{UseDiversity: true})
	if len(out) != 1 || out[0].MMRRank != 1 {
		t.Errorf("single item: %+v", out)
	}
}

func TestMMR_KeepsAllItems(t *testing.T) {
	r := New()
	results := []*models.ScoredRecord{
		embedded("a", 0.9, []float32{1, 0}),
		embedded("b", 0.8, []float32{1, 0}),
		embedded("c", 0.7, []float32{1, 0}),
		embedded("d", 0.6, []float32{1, 0}),
	}

	out := r.Rerank(context.Background(), "q", results, Options{UseDiversity: true})
	if len(out) != 4 {
		t.Fatalf("mmr dropped items: %d", len(out))
	}
	seen := map[string]bool{}
	for i, item := range out {
		seen[item.ID] = true
		if item.MMRRank != i+1 {
			t.Errorf("rank at %d: %d", i, item.MMRRank)
		}
	}
	if len(seen) != 4 {
		t.Errorf("duplicate items in output: %v", seen)
	}
}
