package ctxmgr

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"orchestrion/internal/domain/models"
)

func testManager() *Manager {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func strPtr(s string) *string { return &s }

func TestNormalizeMatchesToolResultByID(t *testing.T) {
	m := testManager()
	in := []models.Message{
		{Role: models.RoleUser, Content: "what's the weather"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: strPtr("c1"), Name: "weather"}}},
		{Role: models.RoleTool, Content: `{"ok":true}`, ToolCallID: strPtr("c1")},
		{Role: models.RoleAssistant, Content: "it's sunny"},
	}
	out := m.Normalize(in)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages unchanged, got %d", len(out))
	}
	if out[2].Role != models.RoleTool {
		t.Fatalf("expected matched tool result to stay a tool message, got %v", out[2].Role)
	}
}

func TestNormalizeOrphanToolResultRewrittenToObservation(t *testing.T) {
	m := testManager()
	in := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: strPtr("c1"), Name: "weather"}}},
		{Role: models.RoleTool, Content: `{"ok":true}`, ToolCallID: strPtr("wrong-id")},
	}
	out := m.Normalize(in)
	if len(out) != 3 {
		t.Fatalf("expected rewritten observation + synthetic result, got %d messages: %+v", len(out), out)
	}
	if out[1].Role != models.RoleUser || !out[1].IsObservation() {
		t.Fatalf("expected orphan tool result rewritten to an observation, got %+v", out[1])
	}
	// the original pending call (c1) never got a real match, so it still
	// needs a synthetic result at flush.
	if out[2].Role != models.RoleTool || out[2].ToolCallID == nil || *out[2].ToolCallID != "c1" {
		t.Fatalf("expected synthetic tool result for c1, got %+v", out[2])
	}
}

func TestNormalizeDanglingCallGetsSyntheticResultAtEnd(t *testing.T) {
	m := testManager()
	in := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: strPtr("c1"), Name: "search"}}},
	}
	out := m.Normalize(in)
	if len(out) != 2 {
		t.Fatalf("expected assistant + synthetic result, got %d", len(out))
	}
	if out[1].Role != models.RoleTool || out[1].ToolCallID == nil || *out[1].ToolCallID != "c1" {
		t.Fatalf("expected synthetic result paired to c1, got %+v", out[1])
	}
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(out[1].Content), &body); err != nil {
		t.Fatalf("synthetic result is not valid JSON: %v", err)
	}
	if body["ok"] != false || body["tool"] != "search" {
		t.Fatalf("unexpected synthetic result body: %+v", body)
	}
}

func TestNormalizePositionalPairingWithoutID(t *testing.T) {
	m := testManager()
	in := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{Name: "search"}}},
		{Role: models.RoleUser, Content: models.ObservationPrefix + `{"ok":true}`},
	}
	out := m.Normalize(in)
	if len(out) != 2 {
		t.Fatalf("expected no synthetic result once positionally paired, got %d: %+v", len(out), out)
	}
}

func TestNormalizeEmptyNameCallDiscarded(t *testing.T) {
	m := testManager()
	in := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{Name: ""}}},
		{Role: models.RoleUser, Content: "next turn"},
	}
	out := m.Normalize(in)
	if len(out) != 2 {
		t.Fatalf("expected call with empty name to be discarded with no synthetic result, got %d: %+v", len(out), out)
	}
}

func TestEstimateTokensMonotoneInLength(t *testing.T) {
	m := testManager()
	short := []models.Message{{Role: models.RoleUser, Content: "hi"}}
	long := []models.Message{{Role: models.RoleUser, Content: "hi there, this is a much longer message with more words in it"}}

	shortTokens := m.EstimateTokens(short)
	longTokens := m.EstimateTokens(long)
	if longTokens <= shortTokens {
		t.Fatalf("expected longer text to estimate more tokens: short=%d long=%d", shortTokens, longTokens)
	}
	if shortTokens < 0 {
		t.Fatalf("expected non-negative estimate, got %d", shortTokens)
	}
}
