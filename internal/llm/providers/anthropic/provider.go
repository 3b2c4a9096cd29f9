// Package anthropic adapts the Invoker's Provider interface onto
// anthropic-sdk-go. Grounded on the teacher's internal/service/llm/
// providers/anthropic/{client,adapter,streaming}.go: text-block-only
// message conversion (MVP scope, matching the teacher's own
// "skip other block types for MVP" comment) and the streaming
// accumulate-then-extract-deltas pattern.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"orchestrion/internal/domain/models"
	"orchestrion/internal/llm"
)

type Provider struct {
	client *anthropic.Client
}

func New(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: &client}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

func (p *Provider) Stream(ctx context.Context, req llm.CallRequest, onDelta func(llm.Delta)) (llm.CallResult, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return llm.CallResult{}, fmt.Errorf("convert messages: %w", err)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return llm.CallResult{}, fmt.Errorf("accumulate message: %w", err)
		}

		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != "" && onDelta != nil {
				onDelta(llm.Delta{Text: delta.Delta.Text})
			}
			if delta.Delta.Type == "thinking_delta" && delta.Delta.Thinking != "" && onDelta != nil {
				onDelta(llm.Delta{Reasoning: delta.Delta.Thinking})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return llm.CallResult{}, fmt.Errorf("anthropic streaming error: %w", err)
	}

	var content, reasoning strings.Builder
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "thinking":
			reasoning.WriteString(block.Thinking)
		}
	}

	return llm.CallResult{
		Content:   content.String(),
		Reasoning: reasoning.String(),
		Usage: models.TokenUsage{
			Input:  uint64(message.Usage.InputTokens),
			Output: uint64(message.Usage.OutputTokens),
			Total:  uint64(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
		StopReason: string(message.StopReason),
	}, nil
}

// convertMessages maps the normalized history onto Anthropic text blocks.
// Tool-role messages are flattened to plain user text (MVP scope, matching
// the teacher's own text-block-only conversion) — full tool_use/
// tool_result block construction is a follow-up once the executor needs
// provider-native tool calling rather than the generic observation
// protocol this spec uses.
func convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser, models.RoleTool:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			if msg.Content == "" {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case models.RoleSystem:
			// system messages are carried via CallRequest.System, not history.
			continue
		default:
			return nil, fmt.Errorf("unsupported role: %s", msg.Role)
		}
	}
	return result, nil
}
