package types

// Tool definition
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  JSONSchema `json:"parameters"`
}

// ToolCall represents an invocation request from LLM.
// It serializes in the OpenAI chat format so it can be echoed back to
// clients as conversation history.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the name and JSON argument string of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// NewToolCall builds a function-type tool call.
func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{
		ID:       id,
		Type:     "function",
		Function: FunctionCall{Name: name, Arguments: arguments},
	}
}

// Message is a single chat message exchanged with the model.
type Message struct {
	Role    string `json:"role"` // system/user/assistant/tool
	Content string `json:"content"`

	// Assistant: Tool Calls
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool: Result
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"` // Required for Gemini
}

// Clone creates a deep copy of the Message
func (m Message) Clone() Message {
	clone := m
	if m.ToolCalls != nil {
		clone.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(clone.ToolCalls, m.ToolCalls)
	}
	return clone
}
