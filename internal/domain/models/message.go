package models

// Role is the speaker of a Message, per §3's Message invariant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ObservationPrefix marks a user-role message body as a textualized tool
// observation rather than genuine user input (Glossary: "Observation
// sentinel").
const ObservationPrefix = "[observation] "

// ToolCall is a single function invocation requested by the assistant. ID is
// optional: some providers omit call ids entirely, in which case pairing
// with its result falls back to positional matching (§4.4).
type ToolCall struct {
	ID   *string                `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Message is one entry in the normalized conversation history.
type Message struct {
	Role             Role       `json:"role"`
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       *string    `json:"tool_call_id,omitempty"`
}

// IsObservation reports whether a user-role message is a textualized tool
// result rather than genuine user input.
func (m Message) IsObservation() bool {
	return m.Role == RoleUser && len(m.Content) >= len(ObservationPrefix) && m.Content[:len(ObservationPrefix)] == ObservationPrefix
}
