package orchestrator

import "orchestrion/internal/llm"

// DefaultLLMConfig is the deployment-wide fallback model config, used when a
// request carries no provider/model override (§4.5 step 2's "config" side
// of "override ?? config").
type DefaultLLMConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int
}

// mergeOverrides implements the Open Question decision recorded in
// DESIGN.md for config override precedence: recursive key-wise merge,
// override wins on scalar conflict, a nil override value leaves the base
// value untouched — ported from
// original_source/src/orchestrator/config.rs::merge_json's semantics, applied
// here to the plain map[string]interface{} shape request.ConfigOverrides
// already carries rather than re-parsing JSON.
func mergeOverrides(base, override map[string]interface{}) map[string]interface{} {
	if len(override) == 0 {
		return base
	}
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseChild, ok := merged[k].(map[string]interface{}); ok {
			if overrideChild, ok := v.(map[string]interface{}); ok {
				merged[k] = mergeOverrides(baseChild, overrideChild)
				continue
			}
		}
		merged[k] = v
	}
	return merged
}

// resolveLLMConfig builds the effective per-call llm.Config by merging
// request.ConfigOverrides onto the deployment default, then pulling out the
// fields llm.Config understands. Unrecognized override keys are accepted
// without error since callers may carry extra fields for language bindings
// this core doesn't otherwise interpret.
func resolveLLMConfig(def DefaultLLMConfig, requestedModel string, overrides map[string]interface{}) llm.Config {
	base := map[string]interface{}{
		"provider":   def.Provider,
		"model":      def.Model,
		"base_url":   def.BaseURL,
		"api_key":    def.APIKey,
		"max_tokens": def.MaxTokens,
	}
	if requestedModel != "" {
		base["model"] = requestedModel
	}
	merged := mergeOverrides(base, overrides)

	cfg := llm.Config{
		Provider:  def.Provider,
		Model:     def.Model,
		BaseURL:   def.BaseURL,
		APIKey:    def.APIKey,
		MaxTokens: def.MaxTokens,
	}
	if v, ok := merged["provider"].(string); ok && v != "" {
		cfg.Provider = v
	}
	if v, ok := merged["model"].(string); ok && v != "" {
		cfg.Model = v
	}
	if v, ok := merged["base_url"].(string); ok {
		cfg.BaseURL = v
	}
	if v, ok := merged["api_key"].(string); ok {
		cfg.APIKey = v
	}
	switch v := merged["max_tokens"].(type) {
	case int:
		cfg.MaxTokens = v
	case float64:
		cfg.MaxTokens = int(v)
	}
	return cfg
}
