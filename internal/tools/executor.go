package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orchestrion/internal/config"
	"orchestrion/internal/domain/models"
	"orchestrion/internal/modelconfig"
	"orchestrion/internal/monitor"
	"orchestrion/internal/tools/a2a"
	"orchestrion/internal/tools/builtin"
	"orchestrion/internal/tools/mcp"
)

// Executor is the tool dispatch facade (§4.6): it routes a tool call to
// builtin/MCP/A2A transport, applies the per-call timeout, and normalizes
// the raw result into the uniform envelope. Grounded on haowjy-meridian's
// internal/service/llm/tools/registry.go's ToolRegistry.Execute/
// ExecuteParallel, generalized to the three-transport routing tool_exec.rs
// performs.
type Executor struct {
	builtins  *builtin.Registry
	mcpClient *mcp.Client
	a2aClient *a2a.Client
	registry  *modelconfig.Registry
	tunables  config.Tunables
	monitor   monitor.Sink
	validator *schemaValidator
}

func NewExecutor(builtins *builtin.Registry, mcpClient *mcp.Client, a2aClient *a2a.Client, registry *modelconfig.Registry, tunables config.Tunables, sink monitor.Sink) *Executor {
	return &Executor{
		builtins:  builtins,
		mcpClient: mcpClient,
		a2aClient: a2aClient,
		registry:  registry,
		tunables:  tunables,
		monitor:   sink,
		validator: newSchemaValidator(),
	}
}

// Execute dispatches a single tool call and returns its normalized result.
// It never returns a Go error for a tool-side failure — a dispatch/timeout/
// validation failure is itself reported as a {ok:false} ToolResult so the
// round loop can feed it back to the model as an observation, matching
// tool_exec.rs's behavior of always producing an observation payload.
func (e *Executor) Execute(ctx context.Context, sessionID string, call models.ToolCall, schema map[string]interface{}) models.ToolResult {
	if schema != nil {
		if err := e.validator.Validate(call.Name, schema, call.Args); err != nil {
			e.record(sessionID, "tool_call_invalid")
			return ErrorResult("invalid_arguments", map[string]interface{}{"detail": err.Error()})
		}
	}

	perToolTimeoutS := 0.0
	if e.registry != nil {
		perToolTimeoutS = e.registry.ConfiguredToolTimeout(call.Name)
	}
	timeout := ResolveTimeout(call.Name, call.Args, e.tunables, perToolTimeoutS)

	callCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	if !e.isKnown(call.Name) {
		e.record(sessionID, "tool_call_unknown")
		return ErrorResult("unknown_tool", map[string]interface{}{"tool": call.Name})
	}

	raw, err := e.dispatch(callCtx, call.Name, call.Args)
	if err != nil {
		e.record(sessionID, "tool_call_error")
		if callCtx.Err() != nil {
			return ErrorResult("tool_timeout", map[string]interface{}{"tool": call.Name, "timeout_s": timeout.Seconds()})
		}
		return ErrorResult(err.Error(), map[string]interface{}{"tool": call.Name})
	}

	e.record(sessionID, "tool_call_ok")
	result := NormalizeResult(raw)
	if e.registry != nil && e.registry.IsSandboxed(call.Name) {
		result.Sandbox = true
	}
	return result
}

// ExecuteParallel runs every call concurrently and returns results in the
// same order as calls, following ToolRegistry.ExecuteParallel.
func (e *Executor) ExecuteParallel(ctx context.Context, sessionID string, calls []models.ToolCall, schemas map[string]map[string]interface{}) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(index int, c models.ToolCall) {
			defer wg.Done()
			results[index] = e.Execute(ctx, sessionID, c, schemas[c.Name])
		}(i, call)
	}
	wg.Wait()
	return results
}

// isKnown reports whether toolName resolves to a live transport: an
// configured A2A client for a2a names, a connected MCP tool for "@" names,
// or a registered builtin otherwise. The round loop is expected to have
// already intersected the call against the request's allowed tool set;
// this is the executor's own defense against a name that passed that check
// but has nothing behind it (e.g. an MCP server that dropped its tool).
func (e *Executor) isKnown(toolName string) bool {
	switch {
	case isA2AWait(toolName), isA2AObserve(toolName):
		return e.a2aClient != nil
	case isMCP(toolName):
		return e.mcpClient != nil && e.mcpClient.HasTool(toolName)
	default:
		return e.builtins != nil && e.builtins.Get(toolName) != nil
	}
}

func (e *Executor) dispatch(ctx context.Context, toolName string, args map[string]interface{}) (interface{}, error) {
	switch {
	case isA2AWait(toolName):
		if e.a2aClient == nil {
			return nil, fmt.Errorf("a2a transport not configured")
		}
		return e.a2aClient.Dispatch(ctx, true, args)
	case isA2AObserve(toolName):
		if e.a2aClient == nil {
			return nil, fmt.Errorf("a2a transport not configured")
		}
		return e.a2aClient.Dispatch(ctx, false, args)
	case isMCP(toolName):
		if e.mcpClient == nil {
			return nil, fmt.Errorf("mcp transport not configured")
		}
		return e.mcpClient.Call(ctx, toolName, args)
	default:
		if e.builtins == nil {
			return nil, fmt.Errorf("unknown tool: %s", toolName)
		}
		return e.builtins.Execute(ctx, toolName, args)
	}
}

func (e *Executor) record(sessionID, eventType string) {
	if e.monitor != nil {
		e.monitor.RecordEvent(sessionID, eventType)
	}
}

// DefaultTimeout exposes the tunables-derived floor for callers that need
// to size an overall round budget around the slowest plausible tool call.
func (e *Executor) DefaultTimeout() time.Duration {
	return time.Duration(e.tunables.DefaultToolTimeoutS * float64(time.Second))
}
