package rag

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kotaehq/kotae/internal/manifest"
	"github.com/kotaehq/kotae/internal/models"
)

// Prompt is the assembled generation input plus the source attributions
// returned to the caller.
type Prompt struct {
	System  string
	User    string
	Sources []models.Source
}

// Text joins the system and user parts into one completion prompt.
func (p *Prompt) Text() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

// BuildPrompt assembles the generation prompt: the manifest persona as the
// system part, then numbered context sections of summary plus projected
// data, then the question.
func BuildPrompt(sp manifest.SystemPrompt, query string, items []*models.ScoredRecord) *Prompt {
	var sections []string
	sources := make([]models.Source, 0, len(items))

	for i, item := range items {
		header := fmt.Sprintf("[Source %d: %s", i+1, item.FileName)
		if item.Type == models.RecordTypeItem {
			header += fmt.Sprintf(" - Item %d", item.ItemIndex)
		}
		header += "]"

		data, _ := json.MarshalIndent(item.Data, "", "  ")
		sections = append(sections, fmt.Sprintf("%s\n%s\n\nData: %s", header, item.Summary, data))

		sources = append(sources, models.Source{
			ID:          item.ID,
			FileName:    item.FileName,
			Similarity:  item.Similarity,
			Summary:     item.Summary,
			HasFullData: item.FullData != nil,
		})
	}

	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:",
		strings.Join(sections, "\n\n---\n\n"), query)

	return &Prompt{
		System:  renderSystemPrompt(sp),
		User:    user,
		Sources: sources,
	}
}

func renderSystemPrompt(sp manifest.SystemPrompt) string {
	var b strings.Builder
	if sp.Role != "" {
		b.WriteString(sp.Role)
	}
	if sp.Personality != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sp.Personality)
	}
	if len(sp.Guidelines) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Guidelines:\n")
		for _, g := range sp.Guidelines {
			b.WriteString("- ")
			b.WriteString(g)
			b.WriteString("\n")
		}
	}
	if sp.ResponseFormat != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sp.ResponseFormat)
	}
	return strings.TrimRight(b.String(), "\n")
}
