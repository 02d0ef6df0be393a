// Package manifest defines the declarative description of how each source
// JSON document is summarized, prioritized, and projected for indexing.
package manifest

import (
	"context"
	"fmt"
	"sort"
)

// Priority tiers, highest first.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// FieldRules selects which fields of an item survive into the indexed
// projection. Include "*" keeps everything; Exclude prunes afterwards.
type FieldRules struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// FileRule describes how one source file is turned into records.
// ItemArrayPath selects the item array: empty means the whole file is one
// record, "." means the file root is the array, anything else is a dot path
// into the document.
type FileRule struct {
	ItemArrayPath       string      `json:"itemArrayPath,omitempty"`
	SummaryTemplate     string      `json:"summaryTemplate,omitempty"`
	ItemSummaryTemplate string      `json:"itemSummaryTemplate,omitempty"`
	Fields              *FieldRules `json:"fields,omitempty"`
	Priority            string      `json:"priority,omitempty"`
	AlwaysInclude       bool        `json:"alwaysInclude,omitempty"`
}

// RetrievalRules are the manifest-declared search defaults.
type RetrievalRules struct {
	DefaultTopK        int                `json:"defaultTopK"`
	MinSimilarityScore float64            `json:"minSimilarityScore"`
	PriorityBoost      map[string]float64 `json:"priorityBoost,omitempty"`
}

// SystemPrompt is the manifest-declared persona for answer generation.
type SystemPrompt struct {
	Role           string   `json:"role"`
	Personality    string   `json:"personality,omitempty"`
	Guidelines     []string `json:"guidelines,omitempty"`
	ResponseFormat string   `json:"responseFormat,omitempty"`
}

// Manifest maps source file names to their extraction rules.
type Manifest struct {
	Files          map[string]*FileRule `json:"files"`
	RetrievalRules RetrievalRules       `json:"retrievalRules"`
	SystemPrompt   SystemPrompt         `json:"systemPrompt"`
}

// Loader fetches a named JSON document into v.
type Loader interface {
	LoadJSON(ctx context.Context, key string, v interface{}) error
}

// Load fetches and validates the manifest at key. A manifest without a files
// map is a configuration error, fatal to initialization.
func Load(ctx context.Context, loader Loader, key string) (*Manifest, error) {
	var m Manifest
	if err := loader.LoadJSON(ctx, key, &m); err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", key, err)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("manifest %s has no files map", key)
	}
	ApplyDefaults(&m)
	return &m, nil
}

// ApplyDefaults fills zero retrieval rules with working values.
func ApplyDefaults(m *Manifest) {
	if m.RetrievalRules.DefaultTopK == 0 {
		m.RetrievalRules.DefaultTopK = 5
	}
	if m.RetrievalRules.MinSimilarityScore == 0 {
		m.RetrievalRules.MinSimilarityScore = 0.3
	}
	if m.RetrievalRules.PriorityBoost == nil {
		m.RetrievalRules.PriorityBoost = map[string]float64{
			PriorityCritical: 1.3,
			PriorityHigh:     1.15,
			PriorityMedium:   1.0,
			PriorityLow:      0.9,
		}
	}
	for _, rule := range m.Files {
		if rule.Priority == "" {
			rule.Priority = PriorityMedium
		}
	}
}

// FileNames returns the manifest's source file names in sorted order so
// record generation is deterministic.
func (m *Manifest) FileNames() []string {
	names := make([]string, 0, len(m.Files))
	for name := range m.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BoostFor returns the score multiplier for a priority tier (1.0 if unknown).
func (m *Manifest) BoostFor(priority string) float64 {
	if b, ok := m.RetrievalRules.PriorityBoost[priority]; ok {
		return b
	}
	return 1.0
}
