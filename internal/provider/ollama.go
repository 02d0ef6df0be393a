package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/kotaehq/kotae/internal/models"
)

// OllamaConfig configures the Ollama-backed provider.
type OllamaConfig struct {
	Host       string
	EmbedModel string
	ChatModel  string
}

// OllamaClient serves both embedding and generation through a local Ollama
// instance.
type OllamaClient struct {
	client *api.Client
	cfg    OllamaConfig
	logger *zap.Logger
}

// NewOllamaClient creates a provider connected to Ollama.
func NewOllamaClient(cfg OllamaConfig, logger *zap.Logger) (*OllamaClient, error) {
	u, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaClient{
		client: api.NewClient(u, http.DefaultClient),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Embed generates a single embedding vector.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embed(ctx, &api.EmbedRequest{
		Model: c.cfg.EmbedModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	return resp.Embeddings[0], nil
}

// Generate runs a non-streaming completion against the chat model.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  c.cfg.ChatModel,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": opts.Temperature,
		},
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}

	var answer strings.Builder
	var usage models.Usage
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		answer.WriteString(resp.Response)
		if resp.Done {
			usage = models.Usage{
				PromptTokens:     resp.Metrics.PromptEvalCount,
				CompletionTokens: resp.Metrics.EvalCount,
				TotalTokens:      resp.Metrics.PromptEvalCount + resp.Metrics.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}

	c.logger.Debug("generation complete",
		zap.String("model", c.cfg.ChatModel),
		zap.Int("tokens", usage.TotalTokens))
	return &GenerateResult{Text: answer.String(), Usage: usage}, nil
}

// ScoreRelevance runs a low-temperature scoring prompt and returns the raw
// model text for the caller to parse.
func (c *OllamaClient) ScoreRelevance(ctx context.Context, prompt string) (string, error) {
	result, err := c.Generate(ctx, prompt, GenerateOptions{Temperature: 0.1, MaxTokens: 200})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ModelName returns the configured chat model.
func (c *OllamaClient) ModelName() string {
	return c.cfg.ChatModel
}

// Available checks connectivity to the Ollama server.
func (c *OllamaClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := c.client.Version(ctx)
	return err == nil
}
