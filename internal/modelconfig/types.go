// Package modelconfig is the model/tool capability registry referenced by
// §4.5's config resolution and §4.6's tool timeout resolution. Adapted from
// the teacher's internal/capabilities package (embedded per-provider YAML,
// lazy-loaded into an in-memory registry) and generalized from
// chat-specific pricing metadata to the generic tunables the LLM invoker
// and tool executor need.
package modelconfig

// ToolCallQuality is an informational hint about how reliably a model
// follows function-calling conventions; it is loaded from the capability
// YAML, and neither the round loop nor BuildSystemPrompt reads it.
type ToolCallQuality string

const (
	ToolCallQualityExcellent ToolCallQuality = "excellent"
	ToolCallQualityGood      ToolCallQuality = "good"
	ToolCallQualityBasic     ToolCallQuality = "basic"
)

// ModelCapabilities is the per-model metadata loaded from the capability
// YAML. SupportsTools drives the round loop's tool_call_mode choice; the
// context/output limits are loaded and returned but no component of this
// module enforces them.
type ModelCapabilities struct {
	DisplayName      string          `yaml:"display_name"`
	SupportsTools    bool            `yaml:"supports_tools"`
	SupportsThinking bool            `yaml:"supports_thinking"`
	RequiresThinking bool            `yaml:"requires_thinking"`
	ToolCallQuality  ToolCallQuality `yaml:"tool_call_quality"`
	ContextWindow    int             `yaml:"context_window"`
	MaxOutput        int             `yaml:"max_output"`
	DefaultTimeoutS  float64         `yaml:"default_timeout_s"`
}

// ProviderCapabilities is all models for one provider.
type ProviderCapabilities struct {
	Provider string                       `yaml:"provider"`
	Models   map[string]ModelCapabilities `yaml:"models"`
}

// ToolCapability is the per-tool tunable the executor consults when
// resolving a call's timeout (§4.6, grounded on the original's
// tool_exec.rs resolve_tool_timeout precedence: explicit override > tool
// default > global default).
type ToolCapability struct {
	DefaultTimeoutS float64 `yaml:"default_timeout_s"`
	Sandbox         bool    `yaml:"sandbox"`
}
