package builtin

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryExecuteDispatchesToRegisteredTool(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return args["text"], nil
	}))

	result, err := r.Execute(context.Background(), "echo", map[string]interface{}{"text": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "hi" {
		t.Fatalf("expected hi, got %v", result)
	}
}

func TestRegistryExecuteUnregisteredToolErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), "missing", nil); err == nil {
		t.Fatalf("expected error for an unregistered tool")
	}
}

func TestRegistryRegisterReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register("tool", ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "first", nil
	}))
	r.Register("tool", ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "second", nil
	}))

	result, _ := r.Execute(context.Background(), "tool", nil)
	if result != "second" {
		t.Fatalf("expected the later registration to win, got %v", result)
	}
}

func TestRegistryNamesListsAllRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register("a", ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil }))
	r.Register("b", ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil }))

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}

func TestRegistryExecutePropagatesToolError(t *testing.T) {
	r := NewRegistry()
	r.Register("fails", ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	}))
	_, err := r.Execute(context.Background(), "fails", nil)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
}
