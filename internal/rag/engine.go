// Package rag orchestrates the retrieval pipeline: manifest-driven record
// generation, cached embeddings, hybrid search, reranking, prompt assembly,
// and answer generation.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kotaehq/kotae/internal/cache"
	"github.com/kotaehq/kotae/internal/enhance"
	"github.com/kotaehq/kotae/internal/keyword"
	"github.com/kotaehq/kotae/internal/manifest"
	"github.com/kotaehq/kotae/internal/models"
	"github.com/kotaehq/kotae/internal/provider"
	"github.com/kotaehq/kotae/internal/rerank"
	"github.com/kotaehq/kotae/internal/search"
)

const (
	// CacheVersion gates the embedding and index caches. Bump it to force
	// regeneration after a format change.
	CacheVersion = "2.0.0"
	// CacheTTL bounds how long a cached chat response is served.
	CacheTTL = 24 * time.Hour

	keyEmbeddings  = "rag_embeddings"
	keyVersion     = "rag_version"
	keyBM25Index   = "rag_bm25_index"
	keyAPIKey      = "rag_api_key"
	keyQueryPrefix = "rag_query_"

	maxHistoryTurns = 10
)

var (
	// ErrNotInitialized is returned when search or chat runs before
	// Initialize.
	ErrNotInitialized = errors.New("rag engine not initialized")
	// ErrBusy is returned when a chat request arrives while another is in
	// flight.
	ErrBusy = errors.New("chat already in progress")
	// ErrSourceNotFound is returned for unknown source ids.
	ErrSourceNotFound = errors.New("source not found")
)

// Config tunes the engine. Zero values fall back to working defaults.
type Config struct {
	ManifestKey    string
	SemanticWeight float64
	KeywordWeight  float64
	Enhance        bool
	Rerank         bool
	RerankOptions  rerank.Options
	Temperature    float64
	MaxTokens      int
	Retry          provider.Policy
}

func (c *Config) applyDefaults() {
	if c.ManifestKey == "" {
		c.ManifestKey = "ai-data-manifest.json"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2000
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry = provider.DefaultPolicy()
	}
}

// InitResult reports what Initialize produced.
type InitResult struct {
	EmbeddingsCount int  `json:"embeddingsCount"`
	FilesLoaded     int  `json:"filesLoaded"`
	FromCache       bool `json:"fromCache"`
}

// CacheStats summarizes the persistent cache.
type CacheStats struct {
	QueryCacheCount int    `json:"queryCacheCount"`
	EmbeddingsCount int    `json:"embeddingsCount"`
	TotalSizeKB     string `json:"totalSizeKB"`
	Version         string `json:"version"`
}

// SearchOptions override manifest retrieval defaults per call.
type SearchOptions struct {
	TopK          int
	MinScore      *float64
	IncludeAlways *bool
	Rerank        *bool
	History       []models.Turn
}

// Engine is the retrieval orchestrator. It is safe for concurrent Search
// calls; Chat is single-flight and rejects overlapping requests with
// ErrBusy.
type Engine struct {
	cfg       Config
	loader    provider.Loader
	embedder  provider.Embedder
	generator provider.Generator
	store     cache.Store
	enhancer  *enhance.Enhancer
	reranker  *rerank.Reranker
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.RWMutex
	manifest    *manifest.Manifest
	sourceData  map[string]interface{}
	records     []*models.Record
	index       *keyword.Index
	apiKey      string
	history     []models.Turn
	initialized bool

	chatMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEnhancer replaces the default query enhancer.
func WithEnhancer(enh *enhance.Enhancer) Option {
	return func(e *Engine) {
		e.enhancer = enh
	}
}

// WithReranker replaces the default reranker.
func WithReranker(r *rerank.Reranker) Option {
	return func(e *Engine) {
		e.reranker = r
	}
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine wires the engine from its collaborators. The store may be nil,
// which disables all caching.
func NewEngine(cfg Config, loader provider.Loader, embedder provider.Embedder, generator provider.Generator, store cache.Store, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:       cfg,
		loader:    loader,
		embedder:  embedder,
		generator: generator,
		store:     store,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.enhancer == nil {
		e.enhancer = enhance.New(enhance.DefaultTables(), enhance.WithLogger(e.logger))
	}
	if e.reranker == nil {
		var rerankOpts []rerank.Option
		rerankOpts = append(rerankOpts, rerank.WithLogger(e.logger))
		if scorer, ok := generator.(rerank.Scorer); ok {
			rerankOpts = append(rerankOpts, rerank.WithScorer(scorer))
		}
		e.reranker = rerank.New(rerankOpts...)
	}
	return e
}

// Initialize loads the manifest and source data, then restores or generates
// the embedding set and BM25 index. It is idempotent; repeated calls
// rebuild from the current sources.
func (e *Engine) Initialize(ctx context.Context) (*InitResult, error) {
	e.logger.Info("initializing", zap.String("manifest", e.cfg.ManifestKey))

	m, err := manifest.Load(ctx, e.loader, e.cfg.ManifestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}

	sourceData := make(map[string]interface{})
	loaded := 0
	for _, fileName := range m.FileNames() {
		var data interface{}
		if err := e.loader.LoadJSON(ctx, fileName, &data); err != nil {
			e.logger.Warn("failed to load source file",
				zap.String("file", fileName), zap.Error(err))
			sourceData[fileName] = nil
			continue
		}
		sourceData[fileName] = data
		loaded++
	}

	records, fromCache, err := e.restoreOrEmbed(ctx, m, sourceData)
	if err != nil {
		return nil, err
	}

	idx, err := e.restoreOrBuildIndex(ctx, records, fromCache)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.manifest = m
	e.sourceData = sourceData
	e.records = records
	e.index = idx
	e.initialized = true
	e.mu.Unlock()

	e.logger.Info("initialization complete",
		zap.Int("embeddings", len(records)),
		zap.Int("files", loaded),
		zap.Bool("fromCache", fromCache))
	return &InitResult{
		EmbeddingsCount: len(records),
		FilesLoaded:     loaded,
		FromCache:       fromCache,
	}, nil
}

// restoreOrEmbed returns cached records when the cache version matches,
// otherwise regenerates summaries, embeds them, and persists the result.
func (e *Engine) restoreOrEmbed(ctx context.Context, m *manifest.Manifest, sourceData map[string]interface{}) ([]*models.Record, bool, error) {
	if e.store != nil {
		if version, ok := e.cacheGetString(ctx, keyVersion); ok && version == CacheVersion {
			if raw, ok, err := e.store.Get(ctx, keyEmbeddings); err == nil && ok {
				var records []*models.Record
				if err := json.Unmarshal(raw, &records); err == nil && len(records) > 0 {
					e.logger.Info("using cached embeddings", zap.Int("count", len(records)))
					return records, true, nil
				}
			}
		}
	}

	records := GenerateSummaries(m, sourceData)
	embedded := records[:0]
	for _, rec := range records {
		emb, err := e.embedder.Embed(ctx, rec.Summary)
		if err != nil {
			e.logger.Error("failed to embed record",
				zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		rec.Embedding = emb
		embedded = append(embedded, rec)
	}

	if e.store != nil {
		if raw, err := json.Marshal(embedded); err == nil {
			if err := e.store.Set(ctx, keyEmbeddings, raw); err != nil {
				e.logger.Warn("failed to cache embeddings", zap.Error(err))
			}
			if err := e.store.Set(ctx, keyVersion, []byte(CacheVersion)); err != nil {
				e.logger.Warn("failed to cache version", zap.Error(err))
			}
		}
	}
	return embedded, false, nil
}

// restoreOrBuildIndex reuses the cached BM25 index only when the embedding
// set also came from cache: the two are versioned together.
func (e *Engine) restoreOrBuildIndex(ctx context.Context, records []*models.Record, embeddingsFromCache bool) (*keyword.Index, error) {
	if e.store != nil && embeddingsFromCache {
		if raw, ok, err := e.store.Get(ctx, keyBM25Index); err == nil && ok {
			if idx, err := keyword.Unmarshal(raw); err == nil {
				e.logger.Info("using cached keyword index")
				return idx, nil
			}
		}
	}

	idx := keyword.BuildIndex(records)
	if e.store != nil {
		if raw, err := idx.Marshal(); err == nil {
			if err := e.store.Set(ctx, keyBM25Index, raw); err != nil {
				e.logger.Warn("failed to cache keyword index", zap.Error(err))
			}
		}
	}
	return idx, nil
}

// Search runs the retrieval pipeline and returns the top records. The
// result length is capped at topK, plus two slots when always-include
// records are merged in.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*models.ScoredRecord, error) {
	e.mu.RLock()
	if !e.initialized {
		e.mu.RUnlock()
		return nil, ErrNotInitialized
	}
	m := e.manifest
	records := e.records
	idx := e.index
	e.mu.RUnlock()

	topK := opts.TopK
	if topK <= 0 {
		topK = m.RetrievalRules.DefaultTopK
	}
	minScore := m.RetrievalRules.MinSimilarityScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}
	includeAlways := true
	if opts.IncludeAlways != nil {
		includeAlways = *opts.IncludeAlways
	}

	searchQuery := query
	var queryEmbedding []float32
	var intents []enhance.Intent
	if e.cfg.Enhance {
		enhanced := e.enhancer.Enhance(ctx, query, e.embedder)
		searchQuery = enhanced.ExpandedQuery
		queryEmbedding = enhanced.Embedding
		intents = enhanced.Intents
	}
	if queryEmbedding == nil {
		emb, err := e.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		queryEmbedding = emb
	}

	results := search.Hybrid(searchQuery, records, queryEmbedding, idx, search.Options{
		SemanticWeight: e.cfg.SemanticWeight,
		KeywordWeight:  e.cfg.KeywordWeight,
	})

	for _, r := range results {
		r.HybridScore *= m.BoostFor(r.Priority)
	}
	e.enhancer.ApplyIntentBoosting(results, intents)

	filtered := results[:0]
	for _, r := range results {
		if r.Similarity >= minScore {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].HybridScore > filtered[j].HybridScore
	})

	if includeAlways {
		filtered = mergeAlwaysInclude(filtered, records)
	}

	useRerank := e.cfg.Rerank
	if opts.Rerank != nil {
		useRerank = *opts.Rerank
	}
	if useRerank {
		rerankOpts := e.cfg.RerankOptions
		if len(opts.History) > 0 {
			rerankOpts.UseContext = true
			rerankOpts.History = opts.History
		}
		filtered = e.reranker.Rerank(ctx, query, filtered, rerankOpts)
	}

	limit := topK
	if includeAlways {
		limit += 2
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	e.logger.Debug("search complete",
		zap.String("query", query),
		zap.Int("results", len(filtered)))
	return filtered, nil
}

// mergeAlwaysInclude prepends always-include records that the scored set
// missed, marked with perfect scores so they survive downstream cuts.
func mergeAlwaysInclude(filtered []*models.ScoredRecord, records []*models.Record) []*models.ScoredRecord {
	present := make(map[string]bool, len(filtered))
	for _, r := range filtered {
		present[r.ID] = true
	}

	var forced []*models.ScoredRecord
	for _, rec := range records {
		if rec.AlwaysInclude && !present[rec.ID] {
			forced = append(forced, &models.ScoredRecord{
				Record:         rec,
				Similarity:     1.0,
				HybridScore:    1.0,
				AlwaysIncluded: true,
			})
		}
	}
	if len(forced) == 0 {
		return filtered
	}
	return append(forced, filtered...)
}

// Chat answers a query with the full pipeline: response cache, retrieval,
// prompt assembly, generation with transient-error retry, and history
// tracking. Only one chat runs at a time; concurrent calls fail fast with
// ErrBusy.
func (e *Engine) Chat(ctx context.Context, query string, opts SearchOptions) (*models.ChatResult, error) {
	e.mu.RLock()
	initialized := e.initialized
	sp := manifest.SystemPrompt{}
	if e.manifest != nil {
		sp = e.manifest.SystemPrompt
	}
	e.mu.RUnlock()
	if !initialized {
		return nil, ErrNotInitialized
	}

	if !e.chatMu.TryLock() {
		return nil, ErrBusy
	}
	defer e.chatMu.Unlock()

	// The user turn lands in history before retrieval; the assistant turn
	// only after generation returns.
	e.appendTurn(models.RoleUser, query)

	cacheKey := keyQueryPrefix + hashQuery(query)
	if cached := e.loadCachedResult(ctx, cacheKey); cached != nil {
		e.logger.Info("serving cached response", zap.String("query", query))
		cached.FromCache = true
		return cached, nil
	}

	if len(opts.History) == 0 {
		opts.History = e.History()
	}
	retrieved, err := e.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	e.logger.Info("retrieved context",
		zap.String("query", query), zap.Int("items", len(retrieved)))

	prompt := BuildPrompt(sp, query, retrieved)

	genResult, err := provider.Retry(ctx, e.cfg.Retry, provider.IsTransient,
		func(ctx context.Context) (*provider.GenerateResult, error) {
			return e.generator.Generate(ctx, prompt.Text(), provider.GenerateOptions{
				Temperature: e.cfg.Temperature,
				MaxTokens:   e.cfg.MaxTokens,
			})
		})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	result := &models.ChatResult{
		Answer:    genResult.Text,
		Sources:   prompt.Sources,
		Usage:     genResult.Usage,
		Model:     e.generator.ModelName(),
		Timestamp: e.now(),
	}

	e.appendTurn(models.RoleAssistant, genResult.Text)
	e.saveCachedResult(ctx, cacheKey, result)
	return result, nil
}

// FetchFullDetails returns the unprojected source data for a record id.
func (e *Engine) FetchFullDetails(id string) (*models.SourceDetails, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	for _, rec := range e.records {
		if rec.ID == id {
			return &models.SourceDetails{
				ID:       rec.ID,
				FileName: rec.FileName,
				Summary:  rec.Summary,
				FullData: rec.FullData,
				Metadata: rec.Metadata,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
}

// History returns a copy of the conversation so far.
func (e *Engine) History() []models.Turn {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Turn(nil), e.history...)
}

// ClearHistory drops the conversation.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

func (e *Engine) appendTurn(role, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, models.Turn{Role: role, Content: content, Timestamp: e.now()})
	if len(e.history) > maxHistoryTurns {
		e.history = e.history[len(e.history)-maxHistoryTurns:]
	}
}

// SetAPIKey stores a provider credential in memory and in the persistent
// cache. Providers that authenticate elsewhere simply ignore it.
func (e *Engine) SetAPIKey(ctx context.Context, key string) {
	e.mu.Lock()
	e.apiKey = key
	e.mu.Unlock()
	if e.store != nil {
		if err := e.store.Set(ctx, keyAPIKey, []byte(key)); err != nil {
			e.logger.Warn("failed to persist api key", zap.Error(err))
		}
	}
}

// LoadAPIKey restores a previously persisted credential. It reports whether
// one was found.
func (e *Engine) LoadAPIKey(ctx context.Context) bool {
	if e.store == nil {
		return false
	}
	key, ok := e.cacheGetString(ctx, keyAPIKey)
	if !ok || key == "" {
		return false
	}
	e.mu.Lock()
	e.apiKey = key
	e.mu.Unlock()
	return true
}

// APIKey returns the current credential.
func (e *Engine) APIKey() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.apiKey
}

// ClearCache removes every engine cache entry: embeddings, version, index,
// credential, and all cached responses.
func (e *Engine) ClearCache(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	for _, key := range []string{keyEmbeddings, keyVersion, keyBM25Index, keyAPIKey} {
		if err := e.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	queryKeys, err := e.store.KeysWithPrefix(ctx, keyQueryPrefix)
	if err != nil {
		return err
	}
	for _, key := range queryKeys {
		if err := e.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// ClearEmbeddingsCache invalidates the embedding and index caches and
// drops the engine back to uninitialized, forcing a full rebuild on the
// next Initialize.
func (e *Engine) ClearEmbeddingsCache(ctx context.Context) error {
	if e.store != nil {
		for _, key := range []string{keyEmbeddings, keyVersion, keyBM25Index} {
			if err := e.store.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	e.mu.Lock()
	e.initialized = false
	e.mu.Unlock()
	return nil
}

// Reindex regenerates embeddings and the keyword index from the current
// source files. The watcher calls this on data changes.
func (e *Engine) Reindex(ctx context.Context) error {
	if err := e.ClearEmbeddingsCache(ctx); err != nil {
		return err
	}
	_, err := e.Initialize(ctx)
	return err
}

// CacheStats reports cache entry counts and total size.
func (e *Engine) CacheStats(ctx context.Context) (*CacheStats, error) {
	e.mu.RLock()
	embeddings := len(e.records)
	e.mu.RUnlock()

	stats := &CacheStats{
		EmbeddingsCount: embeddings,
		Version:         CacheVersion,
		TotalSizeKB:     "0.00",
	}
	if e.store == nil {
		return stats, nil
	}

	keys, err := e.store.KeysWithPrefix(ctx, "rag_")
	if err != nil {
		return nil, err
	}
	totalSize := 0
	for _, key := range keys {
		value, ok, err := e.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			totalSize += len(value)
		}
	}
	stats.QueryCacheCount = len(keys)
	stats.TotalSizeKB = fmt.Sprintf("%.2f", float64(totalSize)/1024)
	return stats, nil
}

func (e *Engine) loadCachedResult(ctx context.Context, key string) *models.ChatResult {
	if e.store == nil {
		return nil
	}
	raw, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	var result models.ChatResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	if e.now().Sub(result.Timestamp) >= CacheTTL {
		return nil
	}
	return &result
}

func (e *Engine) saveCachedResult(ctx context.Context, key string, result *models.ChatResult) {
	if e.store == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, key, raw); err != nil {
		e.logger.Warn("failed to cache response", zap.Error(err))
	}
}

func (e *Engine) cacheGetString(ctx context.Context, key string) (string, bool) {
	raw, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return "", false
	}
	return string(raw), true
}

func hashQuery(query string) string {
	h := fnv.New32a()
	h.Write([]byte(query))
	return fmt.Sprintf("%08x", h.Sum32())
}
