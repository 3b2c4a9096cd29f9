package round

import (
	"encoding/json"
	"regexp"
	"strings"

	"orchestrion/internal/domain/models"
)

// Terminal tool names, per §4.6 "Final-answer detection" / §4.7 step 6.
// finalResponseAlias is the original's Chinese-language alias for the same
// tool; both names are recognized so a model trained on either convention
// produces a terminal answer rather than an observation.
const (
	finalResponseTool  = "final_response"
	finalResponseAlias = "最终回复"
	a2uiTool           = "a2ui"
)

func isTerminalTool(name string) bool {
	return name == finalResponseTool || name == finalResponseAlias || name == a2uiTool
}

// toolCallMarker matches an inline tool call the model emitted as text
// rather than through provider-native structured tool_calls — the fallback
// path §4.7 step 6 requires ("else parse inline markers from content").
// Neither this module's own providers nor the corpus this was grounded on
// wire native function-calling end to end (see internal/llm/providers/
// anthropic, whose convertMessages doc comment scopes that out as a
// follow-up), so this is the path that actually fires in practice. The
// <tool_call>{...}</tool_call> convention matches the tagged-JSON format
// several open function-calling model families (e.g. Hermes-style
// tool-use fine-tunes) use when prompted with a textual tool catalog
// instead of a native function-calling API — adopted here for lack of a
// documented convention in either the original source (its inline-marker
// parser lives in an orchestrator::tool_calls module that wasn't part of
// the kept source tree) or the example pack.
var toolCallMarker = regexp.MustCompile(`(?is)<tool_call>\s*(\{.*?\})\s*</tool_call>`)

type inlineToolCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// parseInlineToolCalls scans content for tool-call markers and returns the
// parsed calls alongside content with every marker (well-formed or not)
// stripped out.
func parseInlineToolCalls(content string) ([]models.ToolCall, string) {
	matches := toolCallMarker.FindAllStringSubmatch(content, -1)
	var calls []models.ToolCall
	for _, m := range matches {
		var parsed inlineToolCall
		if err := json.Unmarshal([]byte(m[1]), &parsed); err != nil {
			continue
		}
		if parsed.Name == "" {
			continue
		}
		if parsed.Arguments == nil {
			parsed.Arguments = map[string]interface{}{}
		}
		calls = append(calls, models.ToolCall{Name: parsed.Name, Args: parsed.Arguments})
	}
	stripped := toolCallMarker.ReplaceAllString(content, "")
	return calls, stripped
}

// resolveToolCalls implements §4.7 step 6's preference order: structured
// tool_calls from the provider response win outright; only when the
// provider returned none are inline markers parsed from content.
func resolveToolCalls(structured []models.ToolCall, content string) ([]models.ToolCall, string) {
	if len(structured) > 0 {
		return structured, content
	}
	return parseInlineToolCalls(content)
}

// finalAnswerFromTool extracts the answer text from a terminal tool call's
// arguments, preferring "content" then "answer", matching
// resolve_final_answer_from_tool.
func finalAnswerFromTool(args map[string]interface{}) string {
	for _, key := range []string{"content", "answer"} {
		if v, ok := args[key]; ok {
			switch val := v.(type) {
			case string:
				return strings.TrimSpace(val)
			case nil:
				return ""
			default:
				b, err := json.Marshal(val)
				if err != nil {
					return ""
				}
				return string(b)
			}
		}
	}
	return ""
}

// stripResidualToolMarkup removes any unparsed tool-call markers from a
// final answer, matching resolve_final_answer's strip_tool_calls + trim.
func stripResidualToolMarkup(content string) string {
	return strings.TrimSpace(toolCallMarker.ReplaceAllString(content, ""))
}

// a2uiSurfaceKeys are the nested payload shapes whose surfaceId gets
// defaulted to the resolved uid, per §4.6's a2ui normalization.
var a2uiSurfaceKeys = []string{"beginRendering", "surfaceUpdate", "dataModelUpdate", "deleteSurface"}

// normalizeA2UI resolves the uid (args["uid"], falling back to sessionID
// then userID) and, for each message, stamps it onto the surfaceId of the
// first surface payload key present (in a2uiSurfaceKeys order) when absent;
// any further surface keys in the same message are left untouched. This
// matches resolve_a2ui_tool_payload. It returns the resolved
// uid, the normalized message list (nil if args carried none), and the
// plain-text content argument.
func normalizeA2UI(args map[string]interface{}, sessionID, userID string) (string, []map[string]interface{}, string) {
	uid, _ := args["uid"].(string)
	uid = strings.TrimSpace(uid)
	if uid == "" {
		uid = strings.TrimSpace(sessionID)
	}
	if uid == "" {
		uid = strings.TrimSpace(userID)
	}

	content, _ := args["content"].(string)
	content = strings.TrimSpace(content)

	raw, ok := args["a2ui"]
	if !ok {
		raw, ok = args["messages"]
		if !ok {
			return uid, nil, content
		}
	}

	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		items = []interface{}{v}
	case string:
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return uid, nil, content
		}
		return normalizeDecodedA2UI(decoded, uid, content)
	default:
		return uid, nil, content
	}

	return uid, normalizeA2UIItems(items, uid), content
}

func normalizeDecodedA2UI(decoded interface{}, uid, content string) (string, []map[string]interface{}, string) {
	switch v := decoded.(type) {
	case []interface{}:
		return uid, normalizeA2UIItems(v, uid), content
	case map[string]interface{}:
		return uid, normalizeA2UIItems([]interface{}{v}, uid), content
	default:
		return uid, nil, content
	}
}

func normalizeA2UIItems(items []interface{}, uid string) []map[string]interface{} {
	var normalized []map[string]interface{}
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for _, key := range a2uiSurfaceKeys {
			payload, ok := obj[key].(map[string]interface{})
			if !ok {
				continue
			}
			if uid != "" {
				if _, has := payload["surfaceId"]; !has {
					payload["surfaceId"] = uid
				}
			}
			break
		}
		normalized = append(normalized, obj)
	}
	return normalized
}
