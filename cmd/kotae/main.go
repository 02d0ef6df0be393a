// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kotaehq/kotae/internal/cache"
	"github.com/kotaehq/kotae/internal/chunker"
	"github.com/kotaehq/kotae/internal/config"
	"github.com/kotaehq/kotae/internal/models"
	"github.com/kotaehq/kotae/internal/provider"
	"github.com/kotaehq/kotae/internal/rag"
	"github.com/kotaehq/kotae/internal/rerank"
	"github.com/kotaehq/kotae/internal/server"
	"github.com/kotaehq/kotae/internal/watcher"
	"github.com/kotaehq/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kotae server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "cache":
		runCache()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: kotae <command> [flags]

Commands:
  server    Start the HTTP API server
  ask       Ask a question against the corpus
  search    Retrieve matching records without generation
  status    Show engine and cache status
  cache     Manage caches: stats | clear | clear-embeddings
  version   Print version
  help      Show this help
`)
}

// components holds everything a subcommand needs to run the engine in-process.
type components struct {
	Engine *rag.Engine
	Store  cache.Store
	Config *config.Config
	Logger *zap.Logger
}

func (c *components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	loader := provider.NewDirLoader(cfg.Data.Dir)

	ollama, err := provider.NewOllamaClient(provider.OllamaConfig{
		Host:       cfg.Provider.Host,
		EmbedModel: cfg.Provider.EmbedModel,
		ChatModel:  cfg.Provider.ChatModel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	var store cache.Store
	if cfg.Cache.Path != "" {
		sqlStore, err := cache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		store = sqlStore
	} else {
		store = cache.NewMemoryStore()
	}

	engineCfg := rag.Config{
		ManifestKey:    cfg.Data.Manifest,
		SemanticWeight: cfg.Search.SemanticWeight,
		KeywordWeight:  cfg.Search.KeywordWeight,
		Enhance:        cfg.Search.EnhanceOrDefault(),
		Rerank:         cfg.Search.RerankOrDefault(),
		RerankOptions: rerank.Options{
			UseLLM:       cfg.Search.RerankLLM,
			UseDiversity: cfg.Search.DiversityOrDefault(),
			UseTemporal:  cfg.Search.TemporalOrDefault(),
			Lambda:       cfg.Search.Lambda,
		},
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
		Retry: provider.Policy{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: time.Duration(cfg.Retry.InitialDelayMS) * time.Millisecond,
			Multiplier:   cfg.Retry.Multiplier,
		},
	}

	engine := rag.NewEngine(engineCfg, loader, ollama, ollama, store, rag.WithLogger(logger))
	return &components{
		Engine: engine,
		Store:  store,
		Config: cfg,
		Logger: logger,
	}, nil
}

func newChunker(cfg *config.Config) *chunker.Chunker {
	return chunker.New(
		chunker.WithChunkSize(cfg.Chunking.ChunkSize),
		chunker.WithChunkOverlap(cfg.Chunking.ChunkOverlap),
		chunker.WithMinChunkSize(cfg.Chunking.MinChunkSize),
		chunker.WithOverlapUnits(cfg.Chunking.OverlapUnits),
	)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	initCtx, initCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	result, err := comps.Engine.Initialize(initCtx)
	initCancel()
	if err != nil {
		logger.Fatal("Failed to initialize engine", zap.Error(err))
	}
	logger.Info("engine ready",
		zap.Int("embeddings", result.EmbeddingsCount),
		zap.Int("files", result.FilesLoaded))

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.New(cfg.Data.Dir, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := comps.Engine.Reindex(ctx); err != nil {
				logger.Warn("reindex after change failed", zap.Error(err))
			}
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(comps.Engine, newChunker(cfg), &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = run the engine in-process)")
	topK := fs.Int("top-k", 0, "number of context records (0 = manifest default)")
	showSources := fs.Bool("sources", false, "print source attributions")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: kotae ask [flags] <question>\n")
		os.Exit(1)
	}
	query := buildQuery(fs.Args())

	var result *models.ChatResult
	if *serverURL != "" {
		var err error
		result, err = chatViaHTTP(*serverURL, query, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		comps := mustComponents(*configPath)
		defer comps.Close()
		if _, err := comps.Engine.Initialize(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
			os.Exit(1)
		}
		var err error
		result, err = comps.Engine.Chat(context.Background(), query, rag.SearchOptions{TopK: *topK})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println(result.Answer)
	if *showSources {
		fmt.Println("\nSources:")
		for _, src := range result.Sources {
			fmt.Printf("  %s (similarity %.3f)\n", src.ID, src.Similarity)
		}
	}
	if result.FromCache {
		fmt.Fprintln(os.Stderr, "(served from cache)")
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	topK := fs.Int("top-k", 0, "number of results (0 = manifest default)")
	minScore := fs.Float64("min-score", -1, "minimum similarity score (-1 = manifest default)")
	rerankFlag := fs.Bool("rerank", true, "apply reranking passes")
	outputJSON := fs.Bool("json", false, "print results as JSON")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: kotae search [flags] <query>\n")
		os.Exit(1)
	}
	query := buildQuery(fs.Args())

	comps := mustComponents(*configPath)
	defer comps.Close()
	if _, err := comps.Engine.Initialize(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		os.Exit(1)
	}

	opts := rag.SearchOptions{TopK: *topK, Rerank: rerankFlag}
	if *minScore >= 0 {
		opts.MinScore = minScore
	}
	results, err := comps.Engine.Search(context.Background(), query, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
		return
	}
	for i, r := range results {
		marker := ""
		if r.AlwaysIncluded {
			marker = " [always]"
		}
		fmt.Printf("%2d. %-28s score=%.3f sim=%.3f bm25=%.3f%s\n",
			i+1, r.ID, r.Score(), r.Similarity, r.BM25Score, marker)
		fmt.Printf("    %s\n", utils.Truncate(r.Summary, 120))
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	comps := mustComponents(*configPath)
	defer comps.Close()
	result, err := comps.Engine.Initialize(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		os.Exit(1)
	}
	stats, err := comps.Engine.CacheStats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cache stats failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Embeddings:  %d (from cache: %v)\n", result.EmbeddingsCount, result.FromCache)
	fmt.Printf("Files:       %d\n", result.FilesLoaded)
	fmt.Printf("Cache:       %d entries, %s KB (version %s)\n",
		stats.QueryCacheCount, stats.TotalSizeKB, stats.Version)
}

func runCache() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kotae cache <stats|clear|clear-embeddings> [flags]")
		os.Exit(1)
	}
	action := os.Args[2]

	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[3:])

	comps := mustComponents(*configPath)
	defer comps.Close()
	ctx := context.Background()

	switch action {
	case "stats":
		stats, err := comps.Engine.CacheStats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cache stats failed: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
	case "clear":
		if err := comps.Engine.ClearCache(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Cache clear failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Cache cleared.")
	case "clear-embeddings":
		if err := comps.Engine.ClearEmbeddingsCache(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Embeddings cache clear failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Embeddings cache cleared.")
	default:
		fmt.Printf("Unknown cache action: %s\n", action)
		os.Exit(1)
	}
}

func mustComponents(configPath string) *components {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return comps
}

func chatViaHTTP(serverURL, query string, topK int) (*models.ChatResult, error) {
	body, err := json.Marshal(server.ChatRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.ChatResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
