package modelconfig

import "testing"

func TestGetModelCapabilitiesKnownModel(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	caps, err := r.GetModelCapabilities("anthropic", "claude-sonnet-4-6")
	if err != nil {
		t.Fatalf("expected known model to resolve, got error: %v", err)
	}
	if caps.ContextWindow != 200000 {
		t.Fatalf("expected context_window 200000, got %d", caps.ContextWindow)
	}
}

func TestGetModelCapabilitiesUnknownModel(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if _, err := r.GetModelCapabilities("anthropic", "does-not-exist"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestResolveToolTimeoutPrecedence(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	override := 7.5
	if got := r.ResolveToolTimeout("web_search", &override); got != 7.5 {
		t.Fatalf("expected explicit override to win, got %v", got)
	}
	if got := r.ResolveToolTimeout("web_search", nil); got != 20 {
		t.Fatalf("expected tool default 20, got %v", got)
	}
	if got := r.ResolveToolTimeout("unregistered_tool", nil); got != 30 {
		t.Fatalf("expected global default 30, got %v", got)
	}
}

func TestIsSandboxed(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if !r.IsSandboxed("code_exec") {
		t.Fatal("expected code_exec to be sandboxed")
	}
	if r.IsSandboxed("web_search") {
		t.Fatal("expected web_search to not be sandboxed")
	}
}
