// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Cache    CacheConfig    `yaml:"cache"`
	Provider ProviderConfig `yaml:"provider"`
	Search   SearchConfig   `yaml:"search"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Retry    RetryConfig    `yaml:"retry"`
	Watch    WatchConfig    `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DataConfig locates the source corpus and its manifest.
type DataConfig struct {
	Dir      string `yaml:"dir"`
	Manifest string `yaml:"manifest"`
}

// CacheConfig holds the persistent cache location. An empty path keeps all
// caches in memory.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// ProviderConfig holds model provider settings.
type ProviderConfig struct {
	Host        string  `yaml:"host"`
	EmbedModel  string  `yaml:"embed_model"`
	ChatModel   string  `yaml:"chat_model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// SearchConfig holds retrieval pipeline settings.
type SearchConfig struct {
	SemanticWeight float64  `yaml:"semantic_weight"`
	KeywordWeight  float64  `yaml:"keyword_weight"`
	Enhance        *bool    `yaml:"enhance"`
	Rerank         *bool    `yaml:"rerank"`
	RerankLLM      bool     `yaml:"rerank_llm"`
	RerankTemporal *bool    `yaml:"rerank_temporal"`
	RerankDiverse  *bool    `yaml:"rerank_diversity"`
	Lambda         *float64 `yaml:"lambda"`
}

// EnhanceOrDefault returns whether to enhance queries; defaults to true when unset.
func (s *SearchConfig) EnhanceOrDefault() bool {
	if s.Enhance != nil {
		return *s.Enhance
	}
	return true
}

// RerankOrDefault returns whether to rerank results; defaults to true when unset.
func (s *SearchConfig) RerankOrDefault() bool {
	if s.Rerank != nil {
		return *s.Rerank
	}
	return true
}

// TemporalOrDefault returns whether temporal boosting runs; defaults to true when unset.
func (s *SearchConfig) TemporalOrDefault() bool {
	if s.RerankTemporal != nil {
		return *s.RerankTemporal
	}
	return true
}

// DiversityOrDefault returns whether MMR diversity runs; defaults to true when unset.
func (s *SearchConfig) DiversityOrDefault() bool {
	if s.RerankDiverse != nil {
		return *s.RerankDiverse
	}
	return true
}

// ChunkingConfig holds text chunking settings.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MinChunkSize int `yaml:"min_chunk_size"`
	OverlapUnits int `yaml:"overlap_units"`
}

// RetryConfig holds transient-failure retry settings.
type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMS int     `yaml:"initial_delay_ms"`
	Multiplier     float64 `yaml:"multiplier"`
}

// WatchConfig holds corpus watch settings.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Data.Dir = expandPath(cfg.Data.Dir, configDir)
	if cfg.Cache.Path != "" {
		cfg.Cache.Path = expandPath(cfg.Cache.Path, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
