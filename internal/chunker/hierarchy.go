package chunker

import (
	"fmt"

	"github.com/kotaehq/kotae/internal/manifest"
)

// Chunk types.
const (
	TypeParent = "parent"
	TypeChild  = "child"
)

// longFields are the item fields considered for child chunking when their
// text exceeds the chunk size.
var longFields = []string{"longDescription", "description", "content", "bio"}

// ChunkMeta carries provenance for a chunk.
type ChunkMeta struct {
	ItemIndex  int    `json:"itemIndex"`
	FileName   string `json:"fileName,omitempty"`
	Field      string `json:"field,omitempty"`
	ChunkIndex int    `json:"chunkIndex"`
}

// Chunk is one passage. Parents summarize an item; children carry detailed
// text from one long field and point back to their parent.
type Chunk struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type,omitempty"`
	Text     string                 `json:"text"`
	Data     map[string]interface{} `json:"data,omitempty"`
	FullData interface{}            `json:"fullData,omitempty"`
	ParentID string                 `json:"parentId,omitempty"`
	Field    string                 `json:"field,omitempty"`
	Children []string               `json:"children,omitempty"`
	Meta     ChunkMeta              `json:"metadata"`
	Start    int                    `json:"start"`
	End      int                    `json:"end"`

	// Enrichment output, set by EnrichWithParent on child matches.
	ParentContext string                 `json:"parentContext,omitempty"`
	ParentData    map[string]interface{} `json:"parentData,omitempty"`
	Enriched      bool                   `json:"enriched,omitempty"`
}

// HierarchyRule tells CreateHierarchicalChunks how to summarize and project
// items from one source file.
type HierarchyRule struct {
	FileName        string
	SummaryTemplate string
	Fields          *manifest.FieldRules
}

// CreateHierarchicalChunks builds one parent chunk per item (templated
// summary plus projected fields) and child chunks for every long field
// exceeding the chunk size. A parent's Children list is exactly the set of
// child ids derived from it.
func (c *Chunker) CreateHierarchicalChunks(data interface{}, rule HierarchyRule) []*Chunk {
	items, ok := data.([]interface{})
	if !ok {
		items = []interface{}{data}
	}

	var out []*Chunk
	for itemIndex, item := range items {
		parentID := fmt.Sprintf("%s:parent:%d", rule.FileName, itemIndex)
		parent := &Chunk{
			ID:       parentID,
			Type:     TypeParent,
			Text:     manifest.RenderTemplate(rule.SummaryTemplate, item, rule.Fields),
			Data:     manifest.ProjectFields(item, rule.Fields),
			FullData: item,
			Meta: ChunkMeta{
				ItemIndex: itemIndex,
				FileName:  rule.FileName,
			},
		}

		var children []*Chunk
		itemMap, _ := item.(map[string]interface{})
		for _, field := range longFields {
			text, _ := itemMap[field].(string)
			if len(text) <= c.chunkSize {
				continue
			}
			pieces := c.CreateSemanticChunks(text, ChunkMeta{
				ItemIndex: itemIndex,
				FileName:  rule.FileName,
				Field:     field,
			})
			for chunkIdx, piece := range pieces {
				children = append(children, &Chunk{
					ID:       fmt.Sprintf("%s:child:%s:%d", parentID, field, chunkIdx),
					Type:     TypeChild,
					Text:     piece.Text,
					ParentID: parentID,
					Field:    field,
					Data:     map[string]interface{}{field: piece.Text},
					Meta: ChunkMeta{
						ItemIndex:  itemIndex,
						FileName:   rule.FileName,
						Field:      field,
						ChunkIndex: chunkIdx,
					},
				})
			}
		}

		parent.Children = make([]string, len(children))
		for i, child := range children {
			parent.Children[i] = child.ID
		}
		out = append(out, parent)
		out = append(out, children...)
	}
	return out
}

// EnrichWithParent attaches parent summary and data to child-type matches.
// Matches without a resolvable parent pass through unchanged.
func EnrichWithParent(matched, all []*Chunk) []*Chunk {
	byID := make(map[string]*Chunk, len(all))
	for _, ch := range all {
		byID[ch.ID] = ch
	}

	out := make([]*Chunk, len(matched))
	for i, ch := range matched {
		if ch.Type == TypeChild && ch.ParentID != "" {
			if parent, ok := byID[ch.ParentID]; ok {
				enriched := *ch
				enriched.ParentContext = parent.Text
				enriched.ParentData = parent.Data
				enriched.Enriched = true
				out[i] = &enriched
				continue
			}
		}
		out[i] = ch
	}
	return out
}
