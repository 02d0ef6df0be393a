package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([^}]+)\}`)

// RenderTemplate replaces {field.path} placeholders with nested-field lookups.
// Arrays are joined with ", ", objects are stringified as JSON, and missing
// fields render as the empty string. An empty template falls back to the JSON
// of the projected fields.
func RenderTemplate(template string, data interface{}, rules *FieldRules) string {
	if template == "" {
		b, _ := json.Marshal(ProjectFields(data, rules))
		return string(b)
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := match[1 : len(match)-1]
		return stringifyValue(GetPath(data, path))
	})
}

func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = stringifyValue(item)
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		b, _ := json.Marshal(val)
		return string(b)
	case float64:
		// JSON numbers decode as float64; render integers without a fraction.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// GetPath resolves a dot-separated path into nested maps. A path of "." or ""
// returns the value itself. Returns nil when any segment is missing.
func GetPath(data interface{}, path string) interface{} {
	if path == "" || path == "." {
		return data
	}
	current := data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[key]
		if !ok {
			return nil
		}
	}
	return current
}

// SetPath writes value at a dot-separated path, creating intermediate maps.
func SetPath(obj map[string]interface{}, path string, value interface{}) {
	keys := strings.Split(path, ".")
	current := obj
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
}

// DeletePath removes the value at a dot-separated path; missing intermediate
// segments are tolerated.
func DeletePath(obj map[string]interface{}, path string) {
	keys := strings.Split(path, ".")
	current := obj
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return
		}
		current = next
	}
	delete(current, keys[len(keys)-1])
}

// ProjectFields applies include/exclude rules to an item, returning only the
// projected fields. A nil rule set passes the item through as a map when
// possible; include "*" keeps every field before exclusions run.
func ProjectFields(data interface{}, rules *FieldRules) map[string]interface{} {
	asMap, _ := data.(map[string]interface{})
	if rules == nil {
		return asMap
	}

	result := make(map[string]interface{})
	includeAll := false
	for _, path := range rules.Include {
		if path == "*" {
			includeAll = true
			break
		}
	}

	if includeAll {
		for k, v := range asMap {
			result[k] = v
		}
	} else {
		for _, path := range rules.Include {
			if value := GetPath(data, path); value != nil {
				SetPath(result, path, value)
			}
		}
	}

	for _, path := range rules.Exclude {
		DeletePath(result, path)
	}
	return result
}
