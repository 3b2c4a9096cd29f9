package tools

import (
	"testing"
	"time"

	"orchestrion/internal/config"
)

func testTunables() config.Tunables {
	return config.Tunables{
		DefaultToolTimeoutS: 30,
		MinToolTimeoutS:     1,
		MCPTimeoutS:         0,
		A2ATimeoutS:         60,
		SandboxTimeoutS:     0,
		SandboxEnabled:      false,
	}
}

func TestResolveTimeoutExplicitArgWins(t *testing.T) {
	got := ResolveTimeout("search_docs", map[string]interface{}{"timeout_s": 5.0}, testTunables(), 0)
	if got != 5*time.Second {
		t.Fatalf("expected 5s, got %v", got)
	}
}

func TestResolveTimeoutA2AWaitUsesMaxOfTimeoutAndWait(t *testing.T) {
	got := ResolveTimeout("a2a_wait", map[string]interface{}{"timeout_s": 5.0, "wait_s": 20.0}, testTunables(), 0)
	if got != 20*time.Second {
		t.Fatalf("expected max(5,20)=20s, got %v", got)
	}
}

func TestResolveTimeoutA2AWaitDefaultsToA2ATunable(t *testing.T) {
	got := ResolveTimeout("a2a_wait", nil, testTunables(), 0)
	if got != 60*time.Second {
		t.Fatalf("expected 60s A2A default, got %v", got)
	}
}

func TestResolveTimeoutA2AObserveByPrefix(t *testing.T) {
	got := ResolveTimeout("a2a@peer-agent", nil, testTunables(), 0)
	if got != 60*time.Second {
		t.Fatalf("expected 60s A2A default for a2a@ prefix, got %v", got)
	}
}

func TestResolveTimeoutMCPUsesMCPTunableWhenConfigured(t *testing.T) {
	tunables := testTunables()
	tunables.MCPTimeoutS = 45
	got := ResolveTimeout("search@docs-server", nil, tunables, 0)
	if got != 45*time.Second {
		t.Fatalf("expected 45s, got %v", got)
	}
}

func TestResolveTimeoutMCPFallsBackToDefaultToolTimeout(t *testing.T) {
	got := ResolveTimeout("search@docs-server", nil, testTunables(), 0)
	if got != 30*time.Second {
		t.Fatalf("expected 30s default, got %v", got)
	}
}

func TestResolveTimeoutSandboxUsesMaxWhenEnabled(t *testing.T) {
	tunables := testTunables()
	tunables.SandboxEnabled = true
	tunables.SandboxTimeoutS = 50
	got := ResolveTimeout("run_code", nil, tunables, 0)
	if got != 50*time.Second {
		t.Fatalf("expected 50s sandboxed timeout, got %v", got)
	}
}

func TestResolveTimeoutPerToolOverrideBeatsCategoryDefault(t *testing.T) {
	got := ResolveTimeout("search@docs-server", nil, testTunables(), 90)
	if got != 90*time.Second {
		t.Fatalf("expected per-tool override 90s, got %v", got)
	}
}

func TestResolveTimeoutFloorsAtMinimum(t *testing.T) {
	tunables := testTunables()
	tunables.MinToolTimeoutS = 10
	got := ResolveTimeout("search_docs", map[string]interface{}{"timeout_s": 1.0}, tunables, 0)
	if got != 10*time.Second {
		t.Fatalf("expected floor of 10s, got %v", got)
	}
}

func TestIsMCPRequiresAtSign(t *testing.T) {
	if isMCP("plain_tool") {
		t.Fatalf("plain_tool should not route to MCP")
	}
	if !isMCP("search@docs-server") {
		t.Fatalf("search@docs-server should route to MCP")
	}
}

// isA2AObserve must be checked ahead of isMCP by callers: "a2a@peer" matches
// both predicates, and A2A routing is meant to win.
func TestA2AObserveTakesPrecedenceOverMCPPredicate(t *testing.T) {
	if !isA2AObserve("a2a@peer") {
		t.Fatalf("expected a2a@peer to match isA2AObserve")
	}
	if !isMCP("a2a@peer") {
		t.Fatalf("expected a2a@peer to also match the raw isMCP predicate — callers must check isA2AObserve first")
	}
}
