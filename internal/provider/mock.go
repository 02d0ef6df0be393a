package provider

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"github.com/kotaehq/kotae/internal/models"
	"github.com/kotaehq/kotae/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a
// fixed-dimension vector derived from the text hash so that the same text
// always gets the same embedding.
type MockEmbedder struct {
	dimensions int

	mu    sync.Mutex
	calls int
	fail  error
}

// NewMockEmbedder returns an embedder producing deterministic embeddings
// of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// FailWith makes every subsequent Embed call return err. Pass nil to
// restore normal behavior.
func (e *MockEmbedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

// Calls returns how many times Embed has been invoked.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.fail
	e.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	h := hashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	// Normalize to unit length for cosine similarity
	utils.NormalizeL2(emb)
	return emb, nil
}

func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}

// MockGenerator returns canned responses for tests.
type MockGenerator struct {
	mu        sync.Mutex
	Response  string
	Err       error
	Prompts   []string
	failTimes int
}

// FailTimes makes the next n Generate calls return Err before succeeding.
// Pass a negative n to fail every call.
func (g *MockGenerator) FailTimes(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failTimes = n
}

// Generate records the prompt and returns the configured response.
func (g *MockGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Prompts = append(g.Prompts, prompt)
	if g.failTimes != 0 {
		if g.failTimes > 0 {
			g.failTimes--
		}
		return nil, g.Err
	}
	return &GenerateResult{
		Text: g.Response,
		Usage: models.Usage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(g.Response) / 4,
			TotalTokens:      (len(prompt) + len(g.Response)) / 4,
		},
	}, nil
}

// ScoreRelevance returns the configured response text.
func (g *MockGenerator) ScoreRelevance(ctx context.Context, prompt string) (string, error) {
	result, err := g.Generate(ctx, prompt, GenerateOptions{})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ModelName identifies the mock in chat results.
func (g *MockGenerator) ModelName() string {
	return "mock-model"
}

// MockLoader serves fixed documents from memory.
type MockLoader struct {
	mu    sync.Mutex
	Docs  map[string]interface{}
	Err   error
	calls int
}

// Calls returns how many documents were requested.
func (l *MockLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// LoadJSON copies the stored document into v via a JSON round trip.
func (l *MockLoader) LoadJSON(ctx context.Context, key string, v interface{}) error {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	doc, ok := l.Docs[key]
	if !ok {
		return &NotFoundError{Key: key}
	}
	return roundTrip(doc, v)
}

// NotFoundError reports a missing corpus document.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return "document not found: " + e.Key
}

func roundTrip(src, dst interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
