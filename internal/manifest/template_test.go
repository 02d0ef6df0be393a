package manifest

import (
	"strings"
	"testing"
)

func sampleItem() map[string]interface{} {
	return map[string]interface{}{
		"title": "Search Engine",
		"year":  float64(2024),
		"score": 4.5,
		"tags":  []interface{}{"go", "search"},
		"contact": map[string]interface{}{
			"email": "dev@example.com",
		},
	}
}

func TestRenderTemplate(t *testing.T) {
	got := RenderTemplate("{title} ({year}): {tags}", sampleItem(), nil)
	want := "Search Engine (2024): go, search"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderTemplate_MissingFieldEmpty(t *testing.T) {
	got := RenderTemplate("x={nope} y={contact.phone}", sampleItem(), nil)
	if got != "x= y=" {
		t.Errorf("missing fields should render empty, got %q", got)
	}
}

func TestRenderTemplate_NestedAndNumbers(t *testing.T) {
	got := RenderTemplate("{contact.email} {score}", sampleItem(), nil)
	if got != "dev@example.com 4.5" {
		t.Errorf("got %q", got)
	}
}

func TestRenderTemplate_ObjectAsJSON(t *testing.T) {
	got := RenderTemplate("{contact}", sampleItem(), nil)
	if !strings.Contains(got, `"email":"dev@example.com"`) {
		t.Errorf("object placeholder should render JSON, got %q", got)
	}
}

func TestRenderTemplate_EmptyTemplateFallsBackToProjection(t *testing.T) {
	rules := &FieldRules{Include: []string{"title"}}
	got := RenderTemplate("", sampleItem(), rules)
	if got != `{"title":"Search Engine"}` {
		t.Errorf("got %q", got)
	}
}

func TestGetPath(t *testing.T) {
	item := sampleItem()
	if got := GetPath(item, "contact.email"); got != "dev@example.com" {
		t.Errorf("got %v", got)
	}
	if got := GetPath(item, "."); got == nil {
		t.Error("dot path should return the value itself")
	}
	if got := GetPath(item, "contact.email.deeper"); got != nil {
		t.Errorf("descending into a leaf should be nil, got %v", got)
	}
	if got := GetPath(item, "missing.path"); got != nil {
		t.Errorf("missing path should be nil, got %v", got)
	}
}

func TestSetPath_CreatesIntermediates(t *testing.T) {
	obj := map[string]interface{}{}
	SetPath(obj, "a.b.c", 1)
	if GetPath(obj, "a.b.c") != 1 {
		t.Errorf("nested set failed: %v", obj)
	}
}

func TestDeletePath_ToleratesMissing(t *testing.T) {
	obj := map[string]interface{}{"a": map[string]interface{}{"b": 1}}
	DeletePath(obj, "a.b")
	if GetPath(obj, "a.b") != nil {
		t.Error("delete failed")
	}
	DeletePath(obj, "x.y.z") // must not panic
}

func TestProjectFields(t *testing.T) {
	rules := &FieldRules{Include: []string{"title", "contact.email"}}
	got := ProjectFields(sampleItem(), rules)
	if got["title"] != "Search Engine" {
		t.Errorf("title missing: %v", got)
	}
	if GetPath(got, "contact.email") != "dev@example.com" {
		t.Errorf("nested include missing: %v", got)
	}
	if _, ok := got["tags"]; ok {
		t.Error("unincluded field should be dropped")
	}
}

func TestProjectFields_WildcardWithExclude(t *testing.T) {
	rules := &FieldRules{Include: []string{"*"}, Exclude: []string{"contact.email"}}
	got := ProjectFields(sampleItem(), rules)
	if _, ok := got["title"]; !ok {
		t.Error("wildcard should include everything")
	}
	if GetPath(got, "contact.email") != nil {
		t.Error("excluded field should be removed")
	}
}

func TestProjectFields_NilRulesPassThrough(t *testing.T) {
	item := sampleItem()
	got := ProjectFields(item, nil)
	if len(got) != len(item) {
		t.Errorf("nil rules should pass the item through, got %v", got)
	}
}
