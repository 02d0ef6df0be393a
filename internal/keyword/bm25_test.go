package keyword

import (
	"math"
	"testing"

	"github.com/kotaehq/kotae/internal/models"
)

func testRecords() []*models.Record {
	return []*models.Record{
		{ID: "portfolio.json:0", Summary: "Built a search engine with golang and postgres for fast retrieval"},
		{ID: "portfolio.json:1", Summary: "Developed a mobile application using react native components"},
		{ID: "about.json", Summary: "Software engineer with search and backend experience"},
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The quick-brown Fox, and IT's fast!")
	want := []string{"quick", "brown", "fox", "fast"}
	if len(tokens) != len(want) {
		t.Fatalf("got %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestTokenize_EmptyAndStopwordsOnly(t *testing.T) {
	if Tokenize("") != nil {
		t.Error("empty text should return nil")
	}
	if Tokenize("the and of to is") != nil {
		t.Error("stopwords-only text should return nil")
	}
	if Tokenize("ab cd ef") != nil {
		t.Error("short tokens should be dropped")
	}
}

func TestBuildIndex(t *testing.T) {
	idx := BuildIndex(testRecords())
	if idx.DocCount != 3 {
		t.Errorf("DocCount = %d", idx.DocCount)
	}
	if idx.AvgDocLength <= 0 {
		t.Errorf("AvgDocLength = %f", idx.AvgDocLength)
	}
	postings := idx.TermFreqs["search"]
	if len(postings) != 2 {
		t.Fatalf("'search' should appear in 2 docs, got %v", postings)
	}
	for _, p := range postings {
		if p.DocID != "portfolio.json:0" && p.DocID != "about.json" {
			t.Errorf("unexpected posting doc %s", p.DocID)
		}
	}
	// IDF uses the smoothed form ln((N-df+0.5)/(df+0.5)+1).
	wantIDF := math.Log((3-2+0.5)/(2+0.5) + 1)
	if math.Abs(idx.IDF["search"]-wantIDF) > 1e-9 {
		t.Errorf("IDF(search) = %f, want %f", idx.IDF["search"], wantIDF)
	}
}

func TestScore_MatchingDocOutranksNonMatching(t *testing.T) {
	idx := BuildIndex(testRecords())
	match := idx.Score("search engine", "portfolio.json:0")
	miss := idx.Score("search engine", "portfolio.json:1")
	if match <= 0 {
		t.Fatalf("matching doc scored %f", match)
	}
	if miss >= match {
		t.Errorf("non-matching doc %f should score below matching %f", miss, match)
	}
}

func TestScore_EmptyQueryAndEmptyIndex(t *testing.T) {
	idx := BuildIndex(testRecords())
	if got := idx.Score("", "about.json"); got != 0 {
		t.Errorf("empty query should score 0, got %f", got)
	}
	if got := idx.Score("the of", "about.json"); got != 0 {
		t.Errorf("stopword query should score 0, got %f", got)
	}
	empty := BuildIndex(nil)
	if got := empty.Score("search", "x"); got != 0 {
		t.Errorf("empty index should score 0, got %f", got)
	}
}

func TestScore_UnknownDocID(t *testing.T) {
	idx := BuildIndex(testRecords())
	if got := idx.Score("search", "nope"); got != 0 {
		t.Errorf("unknown doc should score 0, got %f", got)
	}
}

func TestIndexRoundTrip(t *testing.T) {
	idx := BuildIndex(testRecords())
	raw, err := idx.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	query := "golang search"
	for _, rec := range testRecords() {
		if a, b := idx.Score(query, rec.ID), restored.Score(query, rec.ID); math.Abs(a-b) > 1e-12 {
			t.Errorf("score for %s changed after round trip: %f vs %f", rec.ID, a, b)
		}
	}
}

func TestDocText_IncludesProjectedData(t *testing.T) {
	rec := &models.Record{
		ID:      "a",
		Summary: "summary text",
		Data:    map[string]interface{}{"stack": "kubernetes"},
	}
	idx := BuildIndex([]*models.Record{rec})
	if idx.Score("kubernetes", "a") <= 0 {
		t.Error("terms from projected data should be indexed")
	}
}
