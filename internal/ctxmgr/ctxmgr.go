// Package ctxmgr is the Context manager (§4.4): given a message history that
// may contain orphaned tool calls or tool results from an interrupted
// round, it produces a normalized list satisfying the Message invariant
// from §3 — every assistant tool_calls entry is paired with a tool result
// or a synthetic observation, in a single forward pass. Grounded on the
// teacher's internal/service/llm/conversation/message_builder.go
// (sanitizeTurnBlocks injecting synthetic error tool_results for dangling
// tool_use blocks) and internal/domain/services/llm/message_builder.go.
package ctxmgr

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"orchestrion/internal/domain/models"
)

// pendingCall is an outstanding tool call awaiting its result.
type pendingCall struct {
	id   *string
	name string
}

// Manager normalizes message histories and estimates their token footprint.
type Manager struct {
	logger *slog.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func New(logger *slog.Logger) *Manager {
	return &Manager{logger: logger}
}

// Normalize applies the single-pass algorithm from §4.4 and returns a
// message list where every assistant tool_calls entry has a matching tool
// result or synthetic observation.
func (m *Manager) Normalize(messages []models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	var pending []pendingCall

	flushPending := func() {
		for _, p := range pending {
			out = append(out, m.syntheticResult(p))
		}
		pending = nil
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleAssistant:
			out = append(out, msg)
			pending = parseToolCalls(msg.ToolCalls)

		case models.RoleTool:
			idx := -1
			if msg.ToolCallID != nil {
				for i, p := range pending {
					if p.id != nil && *p.id == *msg.ToolCallID {
						idx = i
						break
					}
				}
			}
			if idx >= 0 {
				pending = append(pending[:idx], pending[idx+1:]...)
				out = append(out, msg)
			} else {
				// Orphan or mismatched id: rewrite as a user observation. The
				// pending entry it was meant to satisfy stays pending and
				// gets a synthetic result at flush.
				out = append(out, models.Message{
					Role:    models.RoleUser,
					Content: models.ObservationPrefix + msg.Content,
				})
			}

		case models.RoleUser:
			if msg.IsObservation() {
				// Positional pairing: an observation satisfies the oldest
				// pending call without an id.
				for i, p := range pending {
					if p.id == nil {
						pending = append(pending[:i], pending[i+1:]...)
						break
					}
				}
				out = append(out, msg)
				continue
			}
			flushPending()
			out = append(out, msg)

		case models.RoleSystem:
			flushPending()
			out = append(out, msg)

		default:
			out = append(out, msg)
		}
	}

	flushPending()
	return out
}

// parseToolCalls extracts tool calls already attached to an assistant
// message. Calls with an empty name are discarded, matching providers that
// emit a placeholder entry for a call still being streamed.
func parseToolCalls(calls []models.ToolCall) []pendingCall {
	var out []pendingCall
	for _, c := range calls {
		if c.Name == "" {
			continue
		}
		out = append(out, pendingCall{id: c.ID, name: c.Name})
	}
	return out
}

// syntheticTimestamp exists so syntheticResult's output is deterministic in
// tests via a package-level override; production code leaves it nil.
var syntheticTimestamp func() time.Time

func now() time.Time {
	if syntheticTimestamp != nil {
		return syntheticTimestamp()
	}
	return time.Now().UTC()
}

// syntheticResult builds the placeholder result for a tool call that never
// received one, per §4.4 "Synthetic tool result for entry {id?, name}".
func (m *Manager) syntheticResult(p pendingCall) models.Message {
	body := map[string]interface{}{
		"tool":      p.name,
		"ok":        false,
		"error":     "missing tool result",
		"data":      map[string]interface{}{},
		"timestamp": now().Format(time.RFC3339),
	}
	serialized, err := json.Marshal(body)
	if err != nil {
		m.logger.Warn("failed to marshal synthetic tool result", "tool", p.name, "error", err)
		serialized = []byte(`{}`)
	}

	if p.id != nil {
		return models.Message{Role: models.RoleTool, Content: string(serialized), ToolCallID: p.id}
	}
	return models.Message{Role: models.RoleUser, Content: models.ObservationPrefix + string(serialized)}
}

// EstimateTokens returns a deterministic, monotone-in-character-count lower
// bound on the token footprint of messages, per §4.4 "Token estimation". It
// uses the cl100k_base tokenizer where available and falls back to a
// character-ratio heuristic if the encoder cannot be loaded.
func (m *Manager) EstimateTokens(messages []models.Message) int {
	m.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			m.logger.Warn("tiktoken encoder unavailable, falling back to character heuristic", "error", err)
			return
		}
		m.enc = enc
	})

	total := 0
	for _, msg := range messages {
		total += m.estimateText(msg.Content)
		total += m.estimateText(msg.ReasoningContent)
		for _, tc := range msg.ToolCalls {
			total += m.estimateText(tc.Name)
			if b, err := json.Marshal(tc.Args); err == nil {
				total += m.estimateText(string(b))
			}
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

func (m *Manager) estimateText(s string) int {
	if s == "" {
		return 0
	}
	if m.enc != nil {
		return len(m.enc.Encode(s, nil, nil))
	}
	// ~4 characters per token is a standard rough heuristic for English
	// prose under BPE tokenizers.
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}
