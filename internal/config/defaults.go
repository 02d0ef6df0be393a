package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "./data"
	}
	if cfg.Data.Manifest == "" {
		cfg.Data.Manifest = "ai-data-manifest.json"
	}
	if cfg.Provider.Host == "" {
		cfg.Provider.Host = "http://localhost:11434"
	}
	if cfg.Provider.EmbedModel == "" {
		cfg.Provider.EmbedModel = "nomic-embed-text"
	}
	if cfg.Provider.ChatModel == "" {
		cfg.Provider.ChatModel = "llama3.2"
	}
	if cfg.Provider.Temperature == 0 {
		cfg.Provider.Temperature = 0.7
	}
	if cfg.Provider.MaxTokens == 0 {
		cfg.Provider.MaxTokens = 2000
	}
	if cfg.Search.SemanticWeight == 0 && cfg.Search.KeywordWeight == 0 {
		cfg.Search.SemanticWeight = 0.7
		cfg.Search.KeywordWeight = 0.3
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 100
	}
	if cfg.Chunking.MinChunkSize == 0 {
		cfg.Chunking.MinChunkSize = 100
	}
	if cfg.Chunking.OverlapUnits == 0 {
		cfg.Chunking.OverlapUnits = 2
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.InitialDelayMS == 0 {
		cfg.Retry.InitialDelayMS = 1000
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = 2
	}
}
