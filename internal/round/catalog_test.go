package round

import (
	"testing"

	"orchestrion/internal/modelconfig"
)

func TestBuildCatalogIntersectsRequestedNames(t *testing.T) {
	available := []ToolDescriptor{{Name: "search"}, {Name: "fetch"}, {Name: "final_response"}}
	cat := buildCatalog(available, []string{"search", "final_response"}, true)
	if len(cat.order) != 2 {
		t.Fatalf("expected 2 tools in catalog, got %d: %v", len(cat.order), cat.order)
	}
}

func TestBuildCatalogEmptyRequestAllowsEverything(t *testing.T) {
	available := []ToolDescriptor{{Name: "search"}, {Name: "fetch"}}
	cat := buildCatalog(available, nil, true)
	if len(cat.order) != 2 {
		t.Fatalf("expected everything allowed, got %v", cat.order)
	}
}

func TestBuildCatalogDropsA2UIInDefaultMode(t *testing.T) {
	available := []ToolDescriptor{{Name: "a2ui"}, {Name: "final_response"}}
	cat := buildCatalog(available, nil, true)
	if _, ok := cat.sanitized["a2ui"]; ok {
		t.Fatalf("expected a2ui dropped in default mode")
	}
	if _, ok := cat.sanitized["final_response"]; !ok {
		t.Fatalf("expected final_response kept in default mode")
	}
}

func TestBuildCatalogA2UIExcludesFinalResponseOutsideDefaultMode(t *testing.T) {
	available := []ToolDescriptor{{Name: "a2ui"}, {Name: "final_response"}, {Name: "最终回复"}}
	cat := buildCatalog(available, nil, false)
	if _, ok := cat.sanitized["a2ui"]; !ok {
		t.Fatalf("expected a2ui kept outside default mode")
	}
	if _, ok := cat.sanitized["final_response"]; ok {
		t.Fatalf("expected final_response dropped when a2ui is present")
	}
	if _, ok := cat.sanitized["最终回复"]; ok {
		t.Fatalf("expected final_response alias dropped when a2ui is present")
	}
}

func TestBuildCatalogDedupesCollidingSanitizedNames(t *testing.T) {
	available := []ToolDescriptor{{Name: "Search"}, {Name: "search"}}
	cat := buildCatalog(available, nil, true)
	seen := map[string]bool{}
	for _, orig := range cat.order {
		s := cat.sanitized[orig]
		if seen[s] {
			t.Fatalf("expected distinct sanitized names, got collision on %q", s)
		}
		seen[s] = true
	}
}

func TestCatalogOriginalNameRoundTrips(t *testing.T) {
	cat := buildCatalog([]ToolDescriptor{{Name: "Search Docs"}}, nil, true)
	sanitized := cat.sanitized["Search Docs"]
	if cat.originalName(sanitized) != "Search Docs" {
		t.Fatalf("expected round trip to original name, got %q", cat.originalName(sanitized))
	}
}

func TestCatalogOriginalNamePassesThroughUnknown(t *testing.T) {
	cat := buildCatalog(nil, nil, true)
	if cat.originalName("mystery") != "mystery" {
		t.Fatalf("expected unknown name to pass through unchanged")
	}
}

func TestResolveToolCallModeOverrideWins(t *testing.T) {
	if got := resolveToolCallMode(nil, "prompt_based"); got != toolCallModePrompt {
		t.Fatalf("expected override to win, got %q", got)
	}
}

func TestResolveToolCallModeFollowsCapabilities(t *testing.T) {
	caps := &modelconfig.ModelCapabilities{SupportsTools: true}
	if got := resolveToolCallMode(caps, ""); got != toolCallModeFunction {
		t.Fatalf("expected function_call mode, got %q", got)
	}
	caps.SupportsTools = false
	if got := resolveToolCallMode(caps, ""); got != toolCallModePrompt {
		t.Fatalf("expected prompt_based mode, got %q", got)
	}
}

func TestBuildSystemPromptAppendsToolsInPromptMode(t *testing.T) {
	cat := buildCatalog([]ToolDescriptor{{Name: "search", Description: "search the web"}}, nil, true)
	prompt := buildSystemPrompt("base instructions", cat, toolCallModePrompt)
	if prompt == "base instructions" {
		t.Fatalf("expected tool catalog appended to the prompt")
	}
}

func TestBuildSystemPromptSkipsEmptyCatalog(t *testing.T) {
	cat := buildCatalog(nil, nil, true)
	if got := buildSystemPrompt("base", cat, toolCallModePrompt); got != "base" {
		t.Fatalf("expected base prompt unchanged for an empty catalog, got %q", got)
	}
}
