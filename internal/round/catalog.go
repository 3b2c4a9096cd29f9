package round

import (
	"fmt"
	"strings"

	"orchestrion/internal/llm"
	"orchestrion/internal/modelconfig"
)

const (
	toolCallModeFunction = "function_call"
	toolCallModePrompt   = "prompt_based"
)

// resolveToolCallMode picks function_call vs. prompt_based per §4.7 step 4:
// an explicit override wins; otherwise it follows the model's
// SupportsTools capability. Note: neither provider this module ships
// (internal/llm/providers/{anthropic,openrouter}) currently forwards
// CallRequest.Tools into a native function-calling request — see their own
// doc comments — so buildSystemPrompt folds the tool catalog into the
// system prompt in both modes and the round loop always also tries the
// inline-marker fallback (resolveToolCalls); the mode is still resolved
// and recorded here so a provider that does wire native calling later has
// a value to branch on.
func resolveToolCallMode(caps *modelconfig.ModelCapabilities, override string) string {
	switch override {
	case toolCallModeFunction, toolCallModePrompt:
		return override
	}
	if caps != nil && caps.SupportsTools {
		return toolCallModeFunction
	}
	return toolCallModePrompt
}

// toolCatalog is the allowed tool set for one round, after §4.7 step 3's
// config ∩ request.tool_names intersection and a2ui/final_response
// mutual-exclusion handling, with §4.7 step 4's name sanitization applied.
type toolCatalog struct {
	byOriginal map[string]ToolDescriptor
	original   map[string]string // sanitized name -> original name
	sanitized  map[string]string // original name -> sanitized name
	order      []string          // original names, in catalog order
}

func buildCatalog(available []ToolDescriptor, requestedNames []string, defaultMode bool) *toolCatalog {
	allowed := intersectToolNames(available, requestedNames)
	allowed = applyTerminalToolExclusivity(allowed, defaultMode)

	cat := &toolCatalog{
		byOriginal: make(map[string]ToolDescriptor, len(allowed)),
		original:   make(map[string]string, len(allowed)),
		sanitized:  make(map[string]string, len(allowed)),
	}
	taken := make(map[string]bool, len(allowed))
	for _, d := range allowed {
		name := sanitizeFunctionName(d.Name, func(s string) bool { return taken[s] })
		taken[name] = true
		cat.byOriginal[d.Name] = d
		cat.original[name] = d.Name
		cat.sanitized[d.Name] = name
		cat.order = append(cat.order, d.Name)
	}
	return cat
}

// intersectToolNames restricts available to requestedNames when the caller
// supplied an explicit allow-list; an empty list means "allow everything
// available".
func intersectToolNames(available []ToolDescriptor, requestedNames []string) []ToolDescriptor {
	if len(requestedNames) == 0 {
		return available
	}
	allow := make(map[string]bool, len(requestedNames))
	for _, n := range requestedNames {
		allow[n] = true
	}
	var out []ToolDescriptor
	for _, d := range available {
		if allow[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// applyTerminalToolExclusivity implements §4.7 step 3's last sentence: in
// default mode, a2ui never appears in the allowed set; otherwise, if a2ui
// is present, final_response/最终回复 are dropped since the two terminal
// conventions are mutually exclusive.
func applyTerminalToolExclusivity(allowed []ToolDescriptor, defaultMode bool) []ToolDescriptor {
	hasA2UI := false
	for _, d := range allowed {
		if d.Name == a2uiTool {
			hasA2UI = true
			break
		}
	}

	var out []ToolDescriptor
	for _, d := range allowed {
		if defaultMode && d.Name == a2uiTool {
			continue
		}
		if !defaultMode && hasA2UI && (d.Name == finalResponseTool || d.Name == finalResponseAlias) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// originalName maps a name the model used (sanitized, or already original
// when running in prompt_based mode where sanitization is cosmetic only)
// back to the catalog's original tool name. Unknown names pass through
// unchanged so the executor's own unknown-tool handling can report them.
func (c *toolCatalog) originalName(name string) string {
	if orig, ok := c.original[name]; ok {
		return orig
	}
	return name
}

func (c *toolCatalog) validationSchema(originalName string) map[string]interface{} {
	if d, ok := c.byOriginal[originalName]; ok {
		return d.Parameters
	}
	return nil
}

// schemas compiles the catalog into the function-calling schema list for
// CallOptions.Tools (§4.7 step 4, function_call mode).
func (c *toolCatalog) schemas() []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(c.order))
	for _, name := range c.order {
		d := c.byOriginal[name]
		out = append(out, llm.ToolSchema{
			Name:        c.sanitized[name],
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}

// buildSystemPrompt appends a textual tool catalog and the inline-marker
// calling convention to base whenever there are allowed tools. function_
// call mode still receives this (see resolveToolCallMode's doc comment on
// why), but it is skipped entirely for an empty catalog so a tool-less
// round's prompt is untouched.
func buildSystemPrompt(base string, catalog *toolCatalog, mode string) string {
	if len(catalog.order) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	if base != "" {
		b.WriteString("\n\n")
	}
	b.WriteString("Available tools:\n")
	for _, name := range catalog.order {
		d := catalog.byOriginal[name]
		b.WriteString(fmt.Sprintf("- %s: %s\n", catalog.sanitized[name], d.Description))
	}
	if mode == toolCallModePrompt {
		b.WriteString("\nTo call a tool, emit exactly one block per call: ")
		b.WriteString(`<tool_call>{"name": "<tool>", "arguments": {...}}</tool_call>`)
		b.WriteString(". Otherwise respond normally with your final answer.\n")
	}
	return b.String()
}
