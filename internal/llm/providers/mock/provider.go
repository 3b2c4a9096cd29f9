// Package mock is a Provider implementation with no external dependency,
// used for local development and tests where no real API key is
// configured. Grounded on the teacher's internal/service/llm/providers/
// lorem/provider.go (a canned-response provider used the same way).
package mock

import (
	"context"
	"strings"

	"orchestrion/internal/domain/models"
	"orchestrion/internal/llm"
)

type Provider struct {
	Response string
}

func New(response string) *Provider {
	if response == "" {
		response = "This is a mock response; no LLM provider is configured."
	}
	return &Provider{Response: response}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "mock-")
}

func (p *Provider) Stream(ctx context.Context, req llm.CallRequest, onDelta func(llm.Delta)) (llm.CallResult, error) {
	if onDelta != nil {
		onDelta(llm.Delta{Text: p.Response})
	}
	return llm.CallResult{
		Content:    p.Response,
		Usage:      models.TokenUsage{Input: 10, Output: 10, Total: 20},
		StopReason: "end_turn",
	}, nil
}
