// Package models defines core data structures for indexed records, search
// results, and chat exchanges.
package models

// RecordType distinguishes whole-file records from per-item records.
const (
	RecordTypeFile = "file"
	RecordTypeItem = "item"
)

// RecordMeta carries display metadata lifted from the source item.
type RecordMeta struct {
	Category string `json:"category,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Record is one indexed unit: a whole source file or one item of a source
// array, with its rendered summary and embedding. IDs are stable across runs
// ("fileName" or "fileName:index") so cached embeddings stay valid as long as
// the content keeps its shape.
type Record struct {
	ID            string                 `json:"id"`
	FileName      string                 `json:"fileName"`
	ItemIndex     int                    `json:"itemIndex"`
	Type          string                 `json:"type"`
	Summary       string                 `json:"summary"`
	Priority      string                 `json:"priority"`
	AlwaysInclude bool                   `json:"alwaysInclude,omitempty"`
	Data          map[string]interface{} `json:"data"`
	FullData      interface{}            `json:"fullData"`
	Metadata      RecordMeta             `json:"metadata"`
	Embedding     []float32              `json:"embedding"`
}

// ScoredRecord is a Record annotated with retrieval scores. Similarity and
// BM25Score are the component scores; HybridScore is their weighted blend and
// RerankScore the value after reranking passes.
type ScoredRecord struct {
	*Record

	Similarity     float64 `json:"similarity"`
	BM25Score      float64 `json:"bm25Score"`
	HybridScore    float64 `json:"hybridScore"`
	RerankScore    float64 `json:"rerankScore,omitempty"`
	LLMScore       float64 `json:"llmScore,omitempty"`
	TemporalBoost  float64 `json:"temporalBoost,omitempty"`
	ContextBoost   float64 `json:"contextBoost,omitempty"`
	IntentBoost    float64 `json:"intentBoost,omitempty"`
	IntentBoosted  bool    `json:"intentBoosted,omitempty"`
	AlwaysIncluded bool    `json:"alwaysIncluded,omitempty"`
	MMRRank        int     `json:"mmrRank,omitempty"`
}

// Score returns the best available relevance signal: the rerank score when a
// reranking pass has run, otherwise the hybrid score, otherwise raw similarity.
func (r *ScoredRecord) Score() float64 {
	if r.RerankScore != 0 {
		return r.RerankScore
	}
	if r.HybridScore != 0 {
		return r.HybridScore
	}
	return r.Similarity
}
