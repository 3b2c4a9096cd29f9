// Package tools is the tool executor (§4.6): dispatch routing across
// builtin/MCP/A2A transports, per-call timeout resolution, and result
// envelope normalization. Grounded on original_source/src/orchestrator/
// tool_exec.rs's ToolResultPayload and resolve_tool_timeout.
package tools

import (
	"time"

	"orchestrion/internal/domain/models"
)

// NormalizeResult wraps a tool's raw return value into the uniform
// {ok, data, error, sandbox} envelope. A value already shaped as an object
// with "ok" (bool) and "data" keys is adopted verbatim; any other object
// becomes data itself with ok=true, nil becomes an empty ok envelope, and
// every other value is wrapped as {"result": value}, matching
// ToolResultPayload::from_value.
func NormalizeResult(value interface{}) models.ToolResult {
	if obj, ok := value.(map[string]interface{}); ok {
		if okVal, hasOK := obj["ok"]; hasOK {
			if okBool, isBool := okVal.(bool); isBool {
				if data, hasData := obj["data"]; hasData {
					dataMap, _ := data.(map[string]interface{})
					if dataMap == nil {
						dataMap = map[string]interface{}{}
					}
					errMsg, _ := obj["error"].(string)
					sandbox, _ := obj["sandbox"].(bool)
					return models.ToolResult{OK: okBool, Data: dataMap, Error: errMsg, Sandbox: sandbox}
				}
			}
		}
		return models.ToolResult{OK: true, Data: obj}
	}
	if value == nil {
		return models.ToolResult{OK: true, Data: map[string]interface{}{}}
	}
	return models.ToolResult{OK: true, Data: map[string]interface{}{"result": value}}
}

// ErrorResult builds a failed envelope for an executor-side error (timeout,
// unknown tool, transport failure) rather than the tool's own return value.
func ErrorResult(message string, detail map[string]interface{}) models.ToolResult {
	if detail == nil {
		detail = map[string]interface{}{}
	}
	return models.ToolResult{OK: false, Data: detail, Error: message}
}

// ToObservationPayload builds the textualized tool result the round loop
// feeds back to the model as a user/tool message (Glossary: "Observation
// sentinel"), matching ToolResultPayload::to_observation_payload.
func ToObservationPayload(toolName string, result models.ToolResult) map[string]interface{} {
	payload := map[string]interface{}{
		"tool":      toolName,
		"ok":        result.OK,
		"data":      result.Data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.Error != "" {
		payload["error"] = result.Error
	}
	if result.Sandbox {
		payload["sandbox"] = true
	}
	return payload
}
