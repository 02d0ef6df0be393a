package rag

import (
	"fmt"

	"github.com/kotaehq/kotae/internal/chunker"
	"github.com/kotaehq/kotae/internal/manifest"
)

// PreviewChunks runs the hierarchical chunker over one source file and
// returns the resulting parent and child chunks. It backs the chunk
// inspection endpoint.
func (e *Engine) PreviewChunks(fileName string, ck *chunker.Chunker) ([]*chunker.Chunk, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return nil, ErrNotInitialized
	}

	rule, ok := e.manifest.Files[fileName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, fileName)
	}
	data := e.sourceData[fileName]
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, fileName)
	}

	if rule.ItemArrayPath != "" {
		if items, ok := manifest.GetPath(data, rule.ItemArrayPath).([]interface{}); ok {
			data = items
		}
	}

	template := rule.ItemSummaryTemplate
	if template == "" {
		template = rule.SummaryTemplate
	}
	if ck == nil {
		ck = chunker.New()
	}
	return ck.CreateHierarchicalChunks(data, chunker.HierarchyRule{
		FileName:        fileName,
		SummaryTemplate: template,
		Fields:          rule.Fields,
	}), nil
}
