package modelconfig

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// toolsFile is the on-disk shape of config/tools.yaml.
type toolsFile struct {
	Tools map[string]ToolCapability `yaml:"tools"`
}

// Registry resolves model and tool capabilities loaded from embedded YAML.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderCapabilities
	tools     map[string]ToolCapability
}

// NewRegistry loads the embedded provider and tool capability files.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		providers: make(map[string]*ProviderCapabilities),
		tools:     make(map[string]ToolCapability),
	}

	for _, provider := range []string{"anthropic", "openrouter"} {
		if err := r.loadProviderFile(provider); err != nil {
			return nil, fmt.Errorf("load %s capabilities: %w", provider, err)
		}
	}
	if err := r.loadToolsFile(); err != nil {
		return nil, fmt.Errorf("load tool capabilities: %w", err)
	}
	return r, nil
}

func (r *Registry) loadProviderFile(provider string) error {
	data, err := configFiles.ReadFile(fmt.Sprintf("config/%s.yaml", provider))
	if err != nil {
		return err
	}
	var caps ProviderCapabilities
	if err := yaml.Unmarshal(data, &caps); err != nil {
		return err
	}
	r.mu.Lock()
	r.providers[provider] = &caps
	r.mu.Unlock()
	return nil
}

func (r *Registry) loadToolsFile() error {
	data, err := configFiles.ReadFile("config/tools.yaml")
	if err != nil {
		return err
	}
	var tf toolsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return err
	}
	r.mu.Lock()
	r.tools = tf.Tools
	r.mu.Unlock()
	return nil
}

// GetModelCapabilities looks up a single model by provider + model name.
func (r *Registry) GetModelCapabilities(provider, model string) (*ModelCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	caps, ok := providerCaps.Models[model]
	if !ok {
		return nil, fmt.Errorf("unknown model %s for provider %s", model, provider)
	}
	return &caps, nil
}

// ListProviderModels returns every model name registered for provider.
func (r *Registry) ListProviderModels(provider string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	names := make([]string, 0, len(providerCaps.Models))
	for name := range providerCaps.Models {
		names = append(names, name)
	}
	return names, nil
}

// ResolveToolTimeout applies the precedence explicit override > tool
// default > global default, per the original's tool_exec.rs
// resolve_tool_timeout.
func (r *Registry) ResolveToolTimeout(toolName string, overrideSeconds *float64) float64 {
	if overrideSeconds != nil && *overrideSeconds > 0 {
		return *overrideSeconds
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tc, ok := r.tools[toolName]; ok && tc.DefaultTimeoutS > 0 {
		return tc.DefaultTimeoutS
	}
	if def, ok := r.tools["default"]; ok && def.DefaultTimeoutS > 0 {
		return def.DefaultTimeoutS
	}
	return 30
}

// ConfiguredToolTimeout returns the YAML-configured timeout of toolName's
// own entry, or 0 if it has none. Used by internal/tools.ResolveTimeout as
// the per-tool override tier, layered ahead of the transport-category
// fallback; unlike ResolveToolTimeout it consults neither the "default"
// entry nor the hardcoded 30s floor, so a tool without its own entry falls
// through to the caller's category defaults.
func (r *Registry) ConfiguredToolTimeout(toolName string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tc, ok := r.tools[toolName]; ok && tc.DefaultTimeoutS > 0 {
		return tc.DefaultTimeoutS
	}
	return 0
}

// IsSandboxed reports whether a tool's result envelope should be marked
// sandboxed by default (§ ToolResult.Sandbox).
func (r *Registry) IsSandboxed(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tc, ok := r.tools[toolName]
	return ok && tc.Sandbox
}
