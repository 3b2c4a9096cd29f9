package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orchestrion/internal/config"
	"orchestrion/internal/domain/models"
	"orchestrion/internal/tools/builtin"
)

type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSink) RecordEvent(sessionID, eventType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}
func (f *fakeSink) IsCancelled(sessionID string) bool  { return false }
func (f *fakeSink) MarkCancelled(sessionID string)     {}
func (f *fakeSink) ClearCancelled(sessionID string)    {}

func newTestExecutor(builtins *builtin.Registry) (*Executor, *fakeSink) {
	sink := &fakeSink{}
	tunables := config.Tunables{DefaultToolTimeoutS: 5, MinToolTimeoutS: 1, A2ATimeoutS: 5}
	return NewExecutor(builtins, nil, nil, nil, tunables, sink), sink
}

func TestExecutorRunsBuiltinTool(t *testing.T) {
	reg := builtin.NewRegistry()
	reg.Register("echo", builtin.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"ok": true, "data": map[string]interface{}{"echo": args["text"]}}, nil
	}))
	exec, sink := newTestExecutor(reg)

	result := exec.Execute(context.Background(), "session-1", models.ToolCall{Name: "echo", Args: map[string]interface{}{"text": "hi"}}, nil)
	if !result.OK {
		t.Fatalf("expected ok result, got %+v", result)
	}
	if result.Data["echo"] != "hi" {
		t.Fatalf("expected echoed text, got %v", result.Data)
	}
	if len(sink.events) == 0 || sink.events[len(sink.events)-1] != "tool_call_ok" {
		t.Fatalf("expected a tool_call_ok event, got %v", sink.events)
	}
}

func TestExecutorUnknownToolReturnsUnknownToolEnvelope(t *testing.T) {
	exec, _ := newTestExecutor(builtin.NewRegistry())
	result := exec.Execute(context.Background(), "session-1", models.ToolCall{Name: "does_not_exist"}, nil)
	if result.OK {
		t.Fatalf("expected ok false for an unknown tool")
	}
	if result.Error != "unknown_tool" {
		t.Fatalf("expected error unknown_tool, got %q", result.Error)
	}
}

func TestExecutorToolTimeout(t *testing.T) {
	reg := builtin.NewRegistry()
	reg.Register("slow", builtin.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		select {
		case <-time.After(2 * time.Second):
			return "too slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	exec, _ := newTestExecutor(reg)

	result := exec.Execute(context.Background(), "session-1", models.ToolCall{
		Name: "slow",
		Args: map[string]interface{}{"timeout_s": 0.05},
	}, nil)
	if result.OK {
		t.Fatalf("expected timeout to fail the call")
	}
	if result.Error != "tool_timeout" {
		t.Fatalf("expected error tool_timeout, got %q", result.Error)
	}
}

func TestExecutorInvalidArgsRejectedBeforeDispatch(t *testing.T) {
	reg := builtin.NewRegistry()
	called := false
	reg.Register("needs_query", builtin.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		called = true
		return nil, nil
	}))
	exec, _ := newTestExecutor(reg)

	schema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
		"required":   []interface{}{"query"},
	}
	result := exec.Execute(context.Background(), "session-1", models.ToolCall{Name: "needs_query"}, schema)
	if result.OK {
		t.Fatalf("expected invalid_arguments failure")
	}
	if result.Error != "invalid_arguments" {
		t.Fatalf("expected error invalid_arguments, got %q", result.Error)
	}
	if called {
		t.Fatalf("executor should not have been dispatched to after validation failure")
	}
}

func TestExecutorParallelPreservesOrder(t *testing.T) {
	reg := builtin.NewRegistry()
	reg.Register("id", builtin.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return args["n"], nil
	}))
	exec, _ := newTestExecutor(reg)

	calls := []models.ToolCall{
		{Name: "id", Args: map[string]interface{}{"n": 1.0}},
		{Name: "id", Args: map[string]interface{}{"n": 2.0}},
		{Name: "id", Args: map[string]interface{}{"n": 3.0}},
	}
	results := exec.ExecuteParallel(context.Background(), "session-1", calls, nil)
	for i, r := range results {
		want := float64(i + 1)
		if r.Data["result"] != want {
			t.Fatalf("expected result[%d]=%v, got %v", i, want, r.Data["result"])
		}
	}
}

func TestExecutorBuiltinErrorWrapped(t *testing.T) {
	reg := builtin.NewRegistry()
	reg.Register("fails", builtin.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	}))
	exec, _ := newTestExecutor(reg)

	result := exec.Execute(context.Background(), "session-1", models.ToolCall{Name: "fails"}, nil)
	if result.OK {
		t.Fatalf("expected failure envelope")
	}
	if result.Error != "boom" {
		t.Fatalf("expected error boom, got %q", result.Error)
	}
}
