package search

import (
	"github.com/kotaehq/kotae/internal/keyword"
	"github.com/kotaehq/kotae/internal/models"
)

// Default hybrid blend weights.
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
)

// Options tune one hybrid search call.
type Options struct {
	SemanticWeight float64
	KeywordWeight  float64
}

func (o *Options) applyDefaults() {
	if o.SemanticWeight == 0 && o.KeywordWeight == 0 {
		o.SemanticWeight = DefaultSemanticWeight
		o.KeywordWeight = DefaultKeywordWeight
	}
}

// Hybrid scores every record against the query: cosine similarity of the
// query embedding (when provided) and BM25 over the index, blended by weight.
// BM25 scores are normalized by the batch maximum (floored at 1) so an
// all-zero batch stays at zero instead of being inflated. All records are
// returned annotated; filtering happens upstream.
func Hybrid(query string, records []*models.Record, queryEmbedding []float32, idx *keyword.Index, opts Options) []*models.ScoredRecord {
	opts.applyDefaults()

	results := make([]*models.ScoredRecord, len(records))
	maxBM25 := 1.0
	for i, rec := range records {
		semantic := 0.0
		if queryEmbedding != nil && rec.Embedding != nil {
			semantic = CosineSimilarity(queryEmbedding, rec.Embedding)
		}
		bm25 := idx.Score(query, rec.ID)
		if bm25 > maxBM25 {
			maxBM25 = bm25
		}
		results[i] = &models.ScoredRecord{
			Record:     rec,
			Similarity: semantic,
			BM25Score:  bm25,
		}
	}

	for _, r := range results {
		r.BM25Score /= maxBM25
		r.HybridScore = r.Similarity*opts.SemanticWeight + r.BM25Score*opts.KeywordWeight
	}
	return results
}
