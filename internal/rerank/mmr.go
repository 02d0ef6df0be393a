package rerank

import (
	"go.uber.org/zap"

	"github.com/kotaehq/kotae/internal/models"
	"github.com/kotaehq/kotae/internal/search"
)

// applyMMR reorders results by maximal marginal relevance. The highest
// scored item goes first, then each round picks the remaining item with the
// best lambda*relevance - (1-lambda)*maxSimilarityToSelected tradeoff.
// Items without embeddings count as maximally diverse.
func (r *Reranker) applyMMR(results []*models.ScoredRecord, lambda float64) []*models.ScoredRecord {
	if len(results) <= 1 {
		for i, item := range results {
			item.MMRRank = i + 1
		}
		return results
	}

	r.logger.Debug("applying mmr", zap.Float64("lambda", lambda))

	remaining := make([]*models.ScoredRecord, len(results))
	copy(remaining, results)

	// Input arrives sorted by rerank score, so the first pick is position 0.
	selected := make([]*models.ScoredRecord, 0, len(remaining))
	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(remaining) > 0 {
		bestScore := -1.0
		bestIdx := 0
		first := true

		for idx, item := range remaining {
			relevance := item.RerankScore
			if relevance == 0 {
				relevance = item.HybridScore
			}

			maxSim := 0.0
			if item.Embedding != nil {
				for _, sel := range selected {
					if sel.Embedding == nil {
						continue
					}
					sim := search.CosineSimilarity(item.Embedding, sel.Embedding)
					if sim > maxSim {
						maxSim = sim
					}
				}
			}

			mmrScore := lambda*relevance - (1-lambda)*maxSim
			if first || mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = idx
				first = false
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	for i, item := range selected {
		item.MMRRank = i + 1
	}
	return selected
}
