// Package rerank reorders retrieval results with LLM relevance scoring,
// temporal and conversation-context boosting, and MMR diversity selection.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kotaehq/kotae/internal/models"
)

const (
	// DefaultLambda balances relevance against diversity in MMR.
	DefaultLambda = 0.7
	// DefaultBatchSize caps how many items go into one LLM scoring prompt.
	DefaultBatchSize = 10

	defaultDecayRate = 0.1
	defaultMaxBoost  = 1.2

	llmBlendHybrid = 0.6
	llmBlendScore  = 0.4
)

var (
	scoreArrayRe = regexp.MustCompile(`\[[\d,.\s]+\]`)
	monthYearRe  = regexp.MustCompile(`(\w+\s+\d{4})`)
)

// Scorer rates the relevance of candidate texts to a query. Implementations
// return one score in [0, 10] per item, in order.
type Scorer interface {
	ScoreRelevance(ctx context.Context, prompt string) (string, error)
}

// Options controls which rerank passes run.
type Options struct {
	UseLLM       bool
	UseDiversity bool
	UseTemporal  bool
	UseContext   bool
	History      []models.Turn
	Lambda       *float64
	BatchSize    int
	DecayRate    float64
	MaxBoost     float64
}

// DefaultOptions matches the standard pipeline: temporal boosting and MMR
// on, LLM scoring and conversation context off.
func DefaultOptions() Options {
	return Options{
		UseDiversity: true,
		UseTemporal:  true,
	}
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.DecayRate == 0 {
		o.DecayRate = defaultDecayRate
	}
	if o.MaxBoost == 0 {
		o.MaxBoost = defaultMaxBoost
	}
}

// Reranker applies the pass pipeline over scored records.
type Reranker struct {
	scorer Scorer
	lambda float64
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithScorer sets the LLM scorer used when Options.UseLLM is on.
func WithScorer(s Scorer) Option {
	return func(r *Reranker) {
		r.scorer = s
	}
}

// WithLambda sets the default MMR lambda, clamped to [0, 1].
func WithLambda(lambda float64) Option {
	return func(r *Reranker) {
		r.lambda = math.Max(0, math.Min(1, lambda))
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reranker) {
		r.logger = logger
	}
}

func withClock(now func() time.Time) Option {
	return func(r *Reranker) {
		r.now = now
	}
}

// New creates a Reranker.
func New(opts ...Option) *Reranker {
	r := &Reranker{
		lambda: DefaultLambda,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank runs the enabled passes in order: LLM scoring, temporal boosting,
// conversation context, sort by rerank score, MMR. The input slice is not
// reordered; a new slice is returned.
func (r *Reranker) Rerank(ctx context.Context, query string, results []*models.ScoredRecord, opts Options) []*models.ScoredRecord {
	opts.applyDefaults()

	reranked := make([]*models.ScoredRecord, len(results))
	copy(reranked, results)

	for _, item := range reranked {
		if item.RerankScore == 0 {
			if item.HybridScore != 0 {
				item.RerankScore = item.HybridScore
			} else {
				item.RerankScore = item.Similarity
			}
		}
	}

	if opts.UseLLM && r.scorer != nil {
		r.llmRerank(ctx, query, reranked, opts.BatchSize)
	}
	if opts.UseTemporal {
		r.applyTemporalBoosting(reranked, opts.DecayRate, opts.MaxBoost)
	}
	if opts.UseContext && len(opts.History) > 0 {
		r.applyConversationContext(reranked, opts.History)
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankScore > reranked[j].RerankScore
	})

	if opts.UseDiversity {
		lambda := r.lambda
		if opts.Lambda != nil {
			lambda = math.Max(0, math.Min(1, *opts.Lambda))
		}
		reranked = r.applyMMR(reranked, lambda)
	}

	r.logger.Debug("rerank complete",
		zap.Int("items", len(reranked)),
		zap.Bool("llm", opts.UseLLM),
		zap.Bool("diversity", opts.UseDiversity))
	return reranked
}

// llmRerank scores items in batches and blends the normalized LLM score
// with the hybrid score. A failed batch keeps hybrid scores and records a
// neutral LLM score.
func (r *Reranker) llmRerank(ctx context.Context, query string, results []*models.ScoredRecord, batchSize int) {
	for start := 0; start < len(results); start += batchSize {
		end := start + batchSize
		if end > len(results) {
			end = len(results)
		}
		batch := results[start:end]

		scores, err := r.scoreBatch(ctx, query, batch)
		if err != nil {
			r.logger.Warn("rerank batch failed", zap.Error(err))
			for _, item := range batch {
				item.LLMScore = 0.5
				item.RerankScore = item.HybridScore
			}
			continue
		}

		for i, item := range batch {
			score := 5.0
			if i < len(scores) && scores[i] != 0 {
				score = scores[i]
			}
			item.LLMScore = score / 10
			item.RerankScore = item.HybridScore*llmBlendHybrid + item.LLMScore*llmBlendScore
		}
	}
}

func (r *Reranker) scoreBatch(ctx context.Context, query string, batch []*models.ScoredRecord) ([]float64, error) {
	var items strings.Builder
	for i, item := range batch {
		text := item.Summary
		if text == "" {
			raw, _ := json.Marshal(item.Data)
			text = string(raw)
			if len(text) > 200 {
				text = text[:200]
			}
		}
		fmt.Fprintf(&items, "[%d] %s\n\n", i+1, text)
	}

	prompt := fmt.Sprintf(`Rate the relevance of each item to the query on a scale of 0-10.
Query: %q

Items:
%s
Respond with ONLY a JSON array of scores in order: [score1, score2, ...]
Each score should be a number from 0 (not relevant) to 10 (highly relevant).`, query, items.String())

	text, err := r.scorer.ScoreRelevance(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseScores(text), nil
}

// ParseScores extracts the first JSON-looking numeric array from model
// output. Unparseable output yields an empty slice.
func ParseScores(text string) []float64 {
	raw := scoreArrayRe.FindString(text)
	if raw == "" {
		return nil
	}
	var scores []float64
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil
	}
	return scores
}

// applyTemporalBoosting multiplies rerank scores of dated records by a
// recency factor that decays linearly with age, never below 1.0.
func (r *Reranker) applyTemporalBoosting(results []*models.ScoredRecord, decayRate, maxBoost float64) {
	now := r.now()
	for _, item := range results {
		itemDate, ok := extractDate(item.Data)
		if !ok {
			continue
		}
		ageDays := now.Sub(itemDate).Hours() / 24
		boost := math.Max(1.0, maxBoost-ageDays*decayRate/365)
		item.TemporalBoost = boost
		item.RerankScore *= boost
	}
}

// extractDate pulls a timestamp from publishDate or date fields, or from a
// "Month YYYY" prefix in a time field such as "Sept 2024 - Present".
func extractDate(data map[string]interface{}) (time.Time, bool) {
	for _, field := range []string{"publishDate", "date"} {
		if raw, ok := data[field].(string); ok && raw != "" {
			if t, ok := parseDate(raw); ok {
				return t, true
			}
		}
	}
	if raw, ok := data["time"].(string); ok {
		if m := monthYearRe.FindString(raw); m != "" {
			if t, ok := parseDate(m); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"January 2006",
	"Jan 2006",
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	// Truncated month names like "Sept 2024" defeat the stock layouts.
	if fields := strings.Fields(raw); len(fields) == 2 {
		if year, err := strconv.Atoi(fields[1]); err == nil {
			if month, ok := monthByPrefix(fields[0]); ok {
				return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}

func monthByPrefix(name string) (time.Month, bool) {
	name = strings.ToLower(name)
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if strings.HasPrefix(full, name) || strings.HasPrefix(name, full[:3]) {
			return m, true
		}
	}
	return 0, false
}

// applyConversationContext boosts records mentioning topics from the last
// three user turns. Topics are words longer than four characters.
func (r *Reranker) applyConversationContext(results []*models.ScoredRecord, history []models.Turn) {
	topics := map[string]bool{}
	start := len(history) - 3
	if start < 0 {
		start = 0
	}
	for _, turn := range history[start:] {
		if turn.Role != models.RoleUser {
			continue
		}
		for _, word := range strings.Fields(strings.ToLower(turn.Content)) {
			if len(word) > 4 {
				topics[word] = true
			}
		}
	}
	if len(topics) == 0 {
		return
	}

	for _, item := range results {
		raw, _ := json.Marshal(item.Data)
		itemText := strings.ToLower(item.Summary + " " + string(raw))
		matches := 0
		for topic := range topics {
			if strings.Contains(itemText, topic) {
				matches++
			}
		}
		if matches > 0 {
			boost := 1.0 + float64(matches)*0.1
			item.ContextBoost = boost
			item.RerankScore *= boost
		}
	}
}
