package rag

import (
	"fmt"

	"github.com/kotaehq/kotae/internal/manifest"
	"github.com/kotaehq/kotae/internal/models"
)

// GenerateSummaries turns loaded source data into retrieval records using
// the manifest's templates and field rules. Files with an item array path
// produce one record per item; the rest produce a single file record.
// Files that failed to load are skipped.
func GenerateSummaries(m *manifest.Manifest, sourceData map[string]interface{}) []*models.Record {
	var records []*models.Record

	for _, fileName := range m.FileNames() {
		rule := m.Files[fileName]
		data, ok := sourceData[fileName]
		if !ok || data == nil {
			continue
		}

		if rule.ItemArrayPath != "" {
			items, _ := manifest.GetPath(data, rule.ItemArrayPath).([]interface{})
			for i, item := range items {
				records = append(records, itemRecord(fileName, i, item, rule))
			}
			continue
		}

		records = append(records, &models.Record{
			ID:            fileName,
			FileName:      fileName,
			Type:          models.RecordTypeFile,
			Summary:       manifest.RenderTemplate(rule.SummaryTemplate, data, rule.Fields),
			Priority:      rule.Priority,
			AlwaysInclude: rule.AlwaysInclude,
			Data:          manifest.ProjectFields(data, rule.Fields),
			FullData:      data,
		})
	}

	return records
}

func itemRecord(fileName string, index int, item interface{}, rule *manifest.FileRule) *models.Record {
	rec := &models.Record{
		ID:        fmt.Sprintf("%s:%d", fileName, index),
		FileName:  fileName,
		ItemIndex: index,
		Type:      models.RecordTypeItem,
		Summary:   manifest.RenderTemplate(rule.ItemSummaryTemplate, item, rule.Fields),
		Priority:  rule.Priority,
		Data:      manifest.ProjectFields(item, rule.Fields),
		FullData:  item,
	}
	if obj, ok := item.(map[string]interface{}); ok {
		rec.Metadata = models.RecordMeta{
			Category: asString(obj["category"]),
			Title:    asString(obj["title"]),
			Status:   asString(obj["status"]),
		}
	}
	return rec
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
