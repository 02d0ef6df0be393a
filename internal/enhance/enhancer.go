package enhance

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/kotaehq/kotae/internal/models"
	"github.com/kotaehq/kotae/internal/search"
)

var (
	nonWordRe        = regexp.MustCompile(`[^\w]`)
	questionPrefixRe = regexp.MustCompile(`(?i)^(what|which|how|when|where|who)\s+(is|are|was|were|do|does|did|can|could|would|should)\s+`)
)

var questionStarters = []string{"what", "which", "how", "when", "where", "who"}

// Intent is one detected query category. Confidence is the fraction of the
// category's patterns that matched.
type Intent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Matches    int     `json:"matches"`
}

// Enhanced is the result of the full enhancement pipeline.
type Enhanced struct {
	OriginalQuery string    `json:"originalQuery"`
	ExpandedQuery string    `json:"expandedQuery"`
	Variations    []string  `json:"variations"`
	Intents       []Intent  `json:"intents"`
	Embedding     []float32 `json:"-"`
}

// PrimaryIntent returns the highest-confidence intent, or "" when none
// matched.
func (e *Enhanced) PrimaryIntent() string {
	if len(e.Intents) == 0 {
		return ""
	}
	return e.Intents[0].Intent
}

// Embedder produces an embedding vector for a single text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Enhancer runs synonym expansion, intent detection, and variation
// generation over incoming queries.
type Enhancer struct {
	tables Tables
	logger *zap.Logger
}

// Option configures an Enhancer.
type Option func(*Enhancer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Enhancer) {
		e.logger = logger
	}
}

// New creates an Enhancer over the given tables.
func New(tables Tables, opts ...Option) *Enhancer {
	e := &Enhancer{
		tables: tables,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExpandWithSynonyms appends synonym terms for every query word that
// overlaps a dictionary key. The lowercased original query always comes
// first and terms are deduplicated in insertion order.
func (e *Enhancer) ExpandWithSynonyms(query string) string {
	lower := strings.ToLower(query)
	terms := []string{lower}
	seen := map[string]bool{lower: true}

	for _, word := range strings.Fields(lower) {
		clean := nonWordRe.ReplaceAllString(word, "")
		if clean == "" {
			continue
		}
		for _, entry := range e.tables.Synonyms {
			if !strings.Contains(clean, entry.Key) && !strings.Contains(entry.Key, clean) {
				continue
			}
			for _, syn := range entry.Synonyms {
				if !seen[syn] {
					seen[syn] = true
					terms = append(terms, syn)
				}
			}
		}
	}

	expanded := strings.Join(terms, " ")
	if expanded != lower {
		e.logger.Debug("expanded query", zap.String("query", query), zap.String("expanded", expanded))
	}
	return expanded
}

// AnalyzeIntent matches the query against every intent category and returns
// the detected intents sorted by confidence. Ties keep table order so the
// result is deterministic.
func (e *Enhancer) AnalyzeIntent(query string) []Intent {
	var detected []Intent
	for _, rule := range e.tables.Intents {
		matches := 0
		for _, p := range rule.Patterns {
			if p.MatchString(query) {
				matches++
			}
		}
		if matches > 0 {
			detected = append(detected, Intent{
				Intent:     rule.Intent,
				Confidence: float64(matches) / float64(len(rule.Patterns)),
				Matches:    matches,
			})
		}
	}

	// Insertion sort keeps table order for equal confidence.
	for i := 1; i < len(detected); i++ {
		for j := i; j > 0 && detected[j].Confidence > detected[j-1].Confidence; j-- {
			detected[j], detected[j-1] = detected[j-1], detected[j]
		}
	}

	if len(detected) > 0 {
		e.logger.Debug("detected intents",
			zap.String("query", query),
			zap.String("primary", detected[0].Intent),
			zap.Int("count", len(detected)))
	}
	return detected
}

// GenerateVariations returns the query plus reformulations: questions are
// converted to statements, statements get question forms, and a synonym
// expansion is appended when it differs from the original.
func (e *Enhancer) GenerateVariations(query string) []string {
	variations := []string{query}

	lower := strings.ToLower(query)
	isQuestion := false
	for _, starter := range questionStarters {
		if strings.HasPrefix(lower, starter) {
			isQuestion = true
			break
		}
	}

	if isQuestion {
		statement := questionPrefixRe.ReplaceAllString(query, "")
		statement = strings.TrimSuffix(statement, "?")
		variations = append(variations, statement)
	} else {
		variations = append(variations, "what is "+query, "tell me about "+query)
	}

	if expanded := e.ExpandWithSynonyms(query); expanded != query {
		variations = append(variations, expanded)
	}
	return variations
}

// ApplyIntentBoosting multiplies hybrid scores of records from files the
// primary intent favors. Records are mutated in place.
func (e *Enhancer) ApplyIntentBoosting(results []*models.ScoredRecord, intents []Intent) []*models.ScoredRecord {
	if len(intents) == 0 {
		return results
	}

	primary := intents[0].Intent
	boosts := e.tables.Boosts[primary]
	for _, result := range results {
		boost, ok := boosts[result.FileName]
		if !ok || boost <= 1.0 {
			continue
		}
		result.HybridScore *= boost
		result.IntentBoost = boost
		result.IntentBoosted = true
	}

	e.logger.Debug("applied intent boosting", zap.String("intent", primary))
	return results
}

// Enhance runs the full pipeline: intent detection, synonym expansion,
// variation generation, and an averaged embedding over the first three
// variations. A failed embedding leaves Embedding nil; retrieval falls back
// to embedding the raw query.
func (e *Enhancer) Enhance(ctx context.Context, query string, embedder Embedder) *Enhanced {
	enhanced := &Enhanced{
		OriginalQuery: query,
		Intents:       e.AnalyzeIntent(query),
		ExpandedQuery: e.ExpandWithSynonyms(query),
		Variations:    e.GenerateVariations(query),
	}

	if embedder == nil {
		return enhanced
	}

	take := enhanced.Variations
	if len(take) > 3 {
		take = take[:3]
	}
	embeddings := make([][]float32, 0, len(take))
	for _, v := range take {
		emb, err := embedder.Embed(ctx, v)
		if err != nil {
			e.logger.Warn("variation embedding failed", zap.Error(err))
			embeddings = nil
			break
		}
		embeddings = append(embeddings, emb)
	}
	enhanced.Embedding = search.AverageEmbeddings(embeddings)

	return enhanced
}
