package tools

import (
	"strconv"
	"strings"
	"time"

	"orchestrion/internal/config"
)

// isA2AWait / isA2AObserve / isMCP / routing are shared between timeout
// resolution and dispatch so both agree on where a tool name routes.
func isA2AWait(toolName string) bool { return toolName == "a2a_wait" }

func isA2AObserve(toolName string) bool {
	return toolName == "a2a_observe" || strings.HasPrefix(toolName, "a2a@")
}

func isMCP(toolName string) bool { return strings.Contains(toolName, "@") }

// ResolveTimeout applies the precedence explicit args["timeout_s"] (and, for
// a2a_wait, args["wait_s"]) > per-tool YAML override (modelconfig.Registry,
// perToolTimeoutS; 0 when the tool has none configured) > transport-category
// default (A2A/MCP/sandbox) > the global default, floored at
// MinToolTimeoutS. Grounded on tool_exec.rs's resolve_tool_timeout; the
// per-tool YAML tier is this module's own addition, layered in ahead of the
// category fallback rather than replacing it. A zero/negative result means
// "no timeout" (every tier resolved to zero or below) and is returned as-is,
// without the MinToolTimeoutS floor — callers must treat <= 0 as unbounded.
func ResolveTimeout(toolName string, args map[string]interface{}, tunables config.Tunables, perToolTimeoutS float64) time.Duration {
	timeoutS := parseTimeoutSeconds(args["timeout_s"])

	switch {
	case isA2AWait(toolName):
		waitS := parseTimeoutSeconds(args["wait_s"])
		if waitS > timeoutS {
			timeoutS = waitS
		}
		if timeoutS <= 0 {
			timeoutS = firstPositive(perToolTimeoutS, tunables.A2ATimeoutS)
		}
	case isA2AObserve(toolName):
		if timeoutS <= 0 {
			timeoutS = firstPositive(perToolTimeoutS, tunables.A2ATimeoutS)
		}
	case isMCP(toolName):
		if timeoutS <= 0 {
			fallback := tunables.DefaultToolTimeoutS
			if perToolTimeoutS > 0 {
				timeoutS = max(perToolTimeoutS, fallback)
			} else if tunables.MCPTimeoutS > 0 {
				timeoutS = max(tunables.MCPTimeoutS, fallback)
			} else {
				timeoutS = fallback
			}
		}
	default:
		if timeoutS <= 0 {
			fallback := tunables.DefaultToolTimeoutS
			sandboxTimeout := 0.0
			if tunables.SandboxEnabled {
				sandboxTimeout = tunables.SandboxTimeoutS
			}
			switch {
			case perToolTimeoutS > 0:
				timeoutS = max(perToolTimeoutS, fallback)
			case sandboxTimeout > 0:
				timeoutS = max(sandboxTimeout, fallback)
			default:
				timeoutS = fallback
			}
		}
	}

	if timeoutS <= 0 {
		return 0
	}
	if timeoutS < tunables.MinToolTimeoutS {
		timeoutS = tunables.MinToolTimeoutS
	}
	return time.Duration(timeoutS * float64(time.Second))
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func parseTimeoutSeconds(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return 0
	}
}
