package models

// Request is the orchestrator facade's inbound request, per §4.1 "Request
// preparation". SessionID, ModelName, and AgentID are optional — the facade
// fills in defaults/UUIDs for the ones left empty.
type Request struct {
	UserID          string
	SessionID       string
	Question        string
	ToolNames       []string
	SkipToolCalls   bool
	ModelName       string
	ConfigOverrides map[string]interface{}
	AgentPrompt     string
	AgentID         string
	// Stream defaults to true (§4.1) when the caller omits it; nil is
	// "omitted", distinct from an explicit false.
	Stream       *bool
	DebugPayload bool
	Attachments  []Attachment
	Language     string
	AllowQueue   bool
}

// Attachment is an opaque, already-uploaded artifact reference attached to a
// request. The orchestrator does not interpret attachment contents — that is
// tool-implementation/workspace territory (Non-goal).
type Attachment struct {
	ID   string
	Kind string
	URI  string
}

// Response is the orchestrator facade's non-streaming result, per §4.1
// `run(request) → response`.
type Response struct {
	SessionID  string
	Answer     string
	Usage      *TokenUsage
	StopReason string
}

// ToolResult is the normalized envelope shape described in §4.6 "Result
// envelope". If the tool returned an object shaped {ok, data, error?,
// sandbox?} it is adopted verbatim; anything else is wrapped into this
// shape by the tool executor.
type ToolResult struct {
	OK      bool
	Data    map[string]interface{}
	Error   string
	Sandbox bool
}
