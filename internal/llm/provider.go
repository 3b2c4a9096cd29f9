// Package llm is the LLM invoker (§4.5): resolves model config, checks
// quota, calls a provider with retry/timeout/circuit-breaking, reconciles
// usage, and emits the llm_request/llm_output_delta/llm_output/token_usage/
// llm_stream_retry events. Grounded on the teacher's
// internal/service/llm/turn_executor.go call shape and
// internal/service/llm/providers/anthropic/{client,streaming}.go for the
// provider adapter boundary.
package llm

import (
	"context"

	"orchestrion/internal/domain/models"
)

// CallRequest is what the invoker hands to a Provider.
type CallRequest struct {
	Model           string
	Messages        []models.Message
	Tools           []ToolSchema
	MaxTokens       int
	Temperature     *float64
	System          string
	ThinkingEnabled bool
}

// ToolSchema is the provider-agnostic function-calling schema the tool
// executor publishes for the active tool set.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Delta is one incremental update during a streamed call.
type Delta struct {
	Text      string
	Reasoning string
}

// CallResult is a provider's finished response.
type CallResult struct {
	Content      string
	Reasoning    string
	ToolCalls    []models.ToolCall
	Usage        models.TokenUsage
	StopReason   string
}

// Provider is one LLM backend (Anthropic, OpenRouter, ...). Stream must
// invoke onDelta for every incremental chunk before returning the final
// CallResult; for providers/tests that don't support true token streaming,
// a single onDelta call with the full text is an acceptable degradation.
type Provider interface {
	Name() string
	SupportsModel(model string) bool
	Stream(ctx context.Context, req CallRequest, onDelta func(Delta)) (CallResult, error)
}
