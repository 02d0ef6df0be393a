package models

import "time"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversation exchange, kept in a bounded per-session ring.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Source is the redacted citation view of a retrieved record, safe to hand
// to a UI without leaking full source data.
type Source struct {
	ID          string  `json:"id"`
	FileName    string  `json:"fileName"`
	Similarity  float64 `json:"similarity"`
	Summary     string  `json:"summary"`
	HasFullData bool    `json:"hasFullData"`
}

// Usage carries token accounting from the generation collaborator.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatResult is the answer to one chat query with its citations.
type ChatResult struct {
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources"`
	Usage     Usage     `json:"usage"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
	FromCache bool      `json:"fromCache,omitempty"`
}

// SourceDetails is the full untruncated view of one indexed record,
// returned on demand after a citation is followed.
type SourceDetails struct {
	ID       string      `json:"id"`
	FileName string      `json:"fileName"`
	Summary  string      `json:"summary"`
	FullData interface{} `json:"fullData"`
	Metadata RecordMeta  `json:"metadata"`
}
