package keyword

import (
	"encoding/json"
	"math"

	"github.com/kotaehq/kotae/internal/models"
)

// Okapi BM25 parameters. Fixed design constants, not part of the public
// configuration surface.
const (
	k1 = 1.5
	b  = 0.75
)

// Posting records one document's frequency for a term. Postings carry the
// stable record id, so the index survives reordering of the record slice.
type Posting struct {
	DocID string `json:"docId"`
	Freq  int    `json:"freq"`
}

// Index is a serializable BM25 inverted index. It must be rebuilt whenever
// the record set changes; the orchestrator versions it together with the
// embeddings it was built from.
type Index struct {
	DocCount     int                  `json:"docCount"`
	AvgDocLength float64              `json:"avgDocLength"`
	DocLengths   map[string]int       `json:"docLengths"`
	TermFreqs    map[string][]Posting `json:"termFreqs"`
	IDF          map[string]float64   `json:"idf"`
	DocIDs       []string             `json:"docIds"`
}

// DocText returns the text the index sees for a record: its summary plus the
// JSON of its projected data.
func DocText(rec *models.Record) string {
	data, _ := json.Marshal(rec.Data)
	return rec.Summary + " " + string(data)
}

// BuildIndex makes a single O(total tokens) pass over the records, collecting
// per-document term counts, the aggregate posting lists, average document
// length, and smoothed IDF per term.
func BuildIndex(records []*models.Record) *Index {
	idx := &Index{
		DocCount:   len(records),
		DocLengths: make(map[string]int, len(records)),
		TermFreqs:  make(map[string][]Posting),
		IDF:        make(map[string]float64),
		DocIDs:     make([]string, 0, len(records)),
	}

	totalLength := 0
	for _, rec := range records {
		tokens := Tokenize(DocText(rec))
		idx.DocIDs = append(idx.DocIDs, rec.ID)
		idx.DocLengths[rec.ID] = len(tokens)
		totalLength += len(tokens)

		counts := make(map[string]int)
		for _, tok := range tokens {
			counts[tok]++
		}
		for term, freq := range counts {
			idx.TermFreqs[term] = append(idx.TermFreqs[term], Posting{DocID: rec.ID, Freq: freq})
		}
	}

	if len(records) > 0 {
		idx.AvgDocLength = float64(totalLength) / float64(len(records))
	}
	for term, postings := range idx.TermFreqs {
		df := float64(len(postings))
		idx.IDF[term] = math.Log((float64(idx.DocCount)-df+0.5)/(df+0.5) + 1)
	}
	return idx
}

// Score computes the Okapi BM25 score of a document for a query. It is a pure
// function of the index and its inputs.
func (idx *Index) Score(query, docID string) float64 {
	if idx == nil || idx.AvgDocLength == 0 {
		return 0
	}
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}

	docLength := float64(idx.DocLengths[docID])
	score := 0.0
	for _, term := range queryTokens {
		postings, ok := idx.TermFreqs[term]
		if !ok {
			continue
		}
		for _, p := range postings {
			if p.DocID != docID {
				continue
			}
			tf := float64(p.Freq)
			norm := k1 * (1 - b + b*(docLength/idx.AvgDocLength))
			score += idx.IDF[term] * ((tf * (k1 + 1)) / (tf + norm))
			break
		}
	}
	return score
}

// Marshal serializes the index for the blob cache.
func (idx *Index) Marshal() ([]byte, error) {
	return json.Marshal(idx)
}

// Unmarshal restores an index previously produced by Marshal.
func Unmarshal(data []byte) (*Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}
