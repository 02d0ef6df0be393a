// Package search combines semantic (cosine) and lexical (BM25) relevance
// into one hybrid score per candidate record.
package search

import "math"

// CosineSimilarity returns the normalized dot product of two vectors,
// in [-1, 1]. Mismatched lengths or a zero vector yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// AverageEmbeddings returns the component-wise mean of the given vectors.
// Vectors whose length differs from the first are skipped; returns nil when
// nothing usable remains.
func AverageEmbeddings(vectors [][]float32) []float32 {
	var avg []float32
	count := 0
	for _, vec := range vectors {
		if len(vec) == 0 {
			continue
		}
		if avg == nil {
			avg = make([]float32, len(vec))
		}
		if len(vec) != len(avg) {
			continue
		}
		for i, v := range vec {
			avg[i] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range avg {
		avg[i] /= float32(count)
	}
	return avg
}
