package orchestrator

import (
	"orchestrion/internal/round"
	"orchestrion/internal/tools/mcp"
)

// terminalToolDescriptors are always available regardless of what builtin
// tools are registered — they are how the round loop's final-answer
// detection (§4.6) gets invoked in the first place.
var terminalToolDescriptors = []round.ToolDescriptor{
	{
		Name:        "final_response",
		Description: "Give the final answer to the user and end the round loop.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"content": map[string]interface{}{"type": "string"}},
			"required":   []interface{}{"content"},
		},
	},
	{
		Name:        "a2ui",
		Description: "Render an interactive surface to the user and end the round loop.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"uid":     map[string]interface{}{"type": "string"},
				"content": map[string]interface{}{"type": "string"},
				"a2ui":    map[string]interface{}{"type": "array"},
			},
		},
	},
}

// builtinDescriptor is the static catalog entry for one builtin tool name.
// builtin.Registry only tracks dispatchable executors, not schemas, so the
// orchestrator — the component that actually knows what tools a deployment
// exposes to the model — owns the textual/schema description used to build
// both the system prompt and the function-calling schema.
type builtinDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// availableTools merges the terminal tools, whatever builtin descriptors
// this deployment registered, and any tool discovered on a connected MCP
// server, producing the full candidate set round.buildCatalog further
// intersects against a request's tool_names. mcpClient may be nil (no MCP
// servers configured), in which case it contributes nothing.
func availableTools(builtins []builtinDescriptor, mcpClient *mcp.Client) []round.ToolDescriptor {
	out := make([]round.ToolDescriptor, 0, len(terminalToolDescriptors)+len(builtins))
	out = append(out, terminalToolDescriptors...)
	for _, b := range builtins {
		out = append(out, round.ToolDescriptor{Name: b.Name, Description: b.Description, Parameters: b.Parameters})
	}
	if mcpClient != nil {
		for _, d := range mcpClient.Descriptors() {
			out = append(out, round.ToolDescriptor{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
		}
	}
	return out
}

// filterAllowedForPreview applies the same config∩request-names and
// a2ui/final_response exclusivity rules as round.buildCatalog (§4.7 step 3),
// re-implemented here rather than exported from internal/round: this is a
// side-effect-free text preview (`build_system_prompt`), not the actual
// tool-calling schema compilation, so it doesn't need sanitizeFunctionName
// or the rest of that package's per-round state.
func filterAllowedForPreview(available []round.ToolDescriptor, requestedNames []string, defaultMode bool) []round.ToolDescriptor {
	var allowed []round.ToolDescriptor
	if len(requestedNames) == 0 {
		allowed = available
	} else {
		allow := make(map[string]bool, len(requestedNames))
		for _, n := range requestedNames {
			allow[n] = true
		}
		for _, d := range available {
			if allow[d.Name] {
				allowed = append(allowed, d)
			}
		}
	}

	hasA2UI := false
	for _, d := range allowed {
		if d.Name == "a2ui" {
			hasA2UI = true
			break
		}
	}

	var out []round.ToolDescriptor
	for _, d := range allowed {
		if defaultMode && d.Name == "a2ui" {
			continue
		}
		if !defaultMode && hasA2UI && (d.Name == "final_response" || d.Name == "最终回复") {
			continue
		}
		out = append(out, d)
	}
	return out
}
