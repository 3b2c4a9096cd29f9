// Package openrouter adapts the Invoker's Provider interface onto
// OpenRouter's OpenAI-compatible chat completions API via go-openai,
// pointed at OpenRouter's base URL. Grounded on goadesign-goa-ai's
// features/model/openai/client.go (request/response shape, tool-call and
// usage translation); that adapter only implements non-streaming Complete,
// so the streaming loop here follows go-openai's own CreateChatCompletionStream
// convention instead.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"orchestrion/internal/domain/models"
	"orchestrion/internal/llm"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

type Provider struct {
	client *openai.Client
	models map[string]bool
}

// New builds an OpenRouter provider. supportedModels is the set of model
// ids this deployment allows routing to (OpenRouter's catalog is huge and
// account-specific; the capability registry is the source of truth for
// what's actually wired in modelconfig's openrouter.yaml).
func New(apiKey, baseURL string, supportedModels []string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter API key is required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	client := openai.NewClientWithConfig(cfg)

	modelSet := make(map[string]bool, len(supportedModels))
	for _, m := range supportedModels {
		modelSet[m] = true
	}
	return &Provider{client: client, models: modelSet}, nil
}

func (p *Provider) Name() string { return "openrouter" }

func (p *Provider) SupportsModel(model string) bool {
	if len(p.models) == 0 {
		return strings.Contains(model, "/")
	}
	return p.models[model]
}

func (p *Provider) Stream(ctx context.Context, req llm.CallRequest, onDelta func(llm.Delta)) (llm.CallResult, error) {
	messages, err := convertMessages(req.Messages, req.System)
	if err != nil {
		return llm.CallResult{}, fmt.Errorf("convert messages: %w", err)
	}

	request := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}
	if req.Temperature != nil {
		request.Temperature = float32(*req.Temperature)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return llm.CallResult{}, fmt.Errorf("openrouter stream request: %w", err)
	}
	defer stream.Close()

	var content strings.Builder
	stopReason := ""
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return llm.CallResult{}, fmt.Errorf("openrouter streaming error: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(llm.Delta{Text: choice.Delta.Content})
			}
		}
		if choice.FinishReason != "" {
			stopReason = string(choice.FinishReason)
		}
	}

	return llm.CallResult{
		Content:    content.String(),
		StopReason: stopReason,
	}, nil
}

// convertMessages maps the normalized history onto go-openai chat messages.
// Tool-role messages are flattened to plain user text, matching the same
// MVP text-only scope used by internal/llm/providers/anthropic.
func convertMessages(messages []models.Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser, models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		case models.RoleAssistant:
			if msg.Content == "" {
				continue
			}
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content})
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		default:
			return nil, fmt.Errorf("unsupported role: %s", msg.Role)
		}
	}
	return result, nil
}
