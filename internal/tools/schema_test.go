package tools

import "testing"

type searchArgs struct {
	Query string `json:"query" jsonschema:"required"`
	Limit int    `json:"limit,omitempty"`
}

func TestBuildSchemaReflectsStructFields(t *testing.T) {
	schema, err := BuildSchema("search_docs", "search the document tree", &searchArgs{})
	if err != nil {
		t.Fatalf("BuildSchema returned error: %v", err)
	}
	if schema.Name != "search_docs" {
		t.Fatalf("expected name search_docs, got %q", schema.Name)
	}
	props, ok := schema.Parameters["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected properties map in schema, got %v", schema.Parameters)
	}
	if _, ok := props["query"]; !ok {
		t.Fatalf("expected query property in schema: %v", props)
	}
}

func TestSchemaValidatorAcceptsValidArgs(t *testing.T) {
	v := newSchemaValidator()
	params := map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
		"required":             []interface{}{"query"},
		"additionalProperties": false,
	}
	err := v.Validate("search_docs", params, map[string]interface{}{"query": "hello"})
	if err != nil {
		t.Fatalf("expected valid args to pass, got %v", err)
	}
}

func TestSchemaValidatorRejectsMissingRequired(t *testing.T) {
	v := newSchemaValidator()
	params := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
		"required":   []interface{}{"query"},
	}
	err := v.Validate("search_docs", params, map[string]interface{}{})
	if err == nil {
		t.Fatalf("expected missing required field to fail validation")
	}
}

func TestSchemaValidatorCachesCompiledSchema(t *testing.T) {
	v := newSchemaValidator()
	params := map[string]interface{}{"type": "object"}

	first, err := v.compiled("tool_a", params)
	if err != nil {
		t.Fatalf("first compile failed: %v", err)
	}
	second, err := v.compiled("tool_a", params)
	if err != nil {
		t.Fatalf("second compile failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached schema pointer to be reused")
	}
}

func TestSchemaValidatorNoSchemaSkipsValidation(t *testing.T) {
	v := newSchemaValidator()
	if err := v.Validate("no_schema_tool", nil, map[string]interface{}{"anything": true}); err != nil {
		t.Fatalf("expected nil parameters to skip validation, got %v", err)
	}
}
