package types

import "encoding/json"

// EventType tags the variants of StreamEvent.
type EventType string

const (
	EventToken           EventType = "token"
	EventToolCall        EventType = "tool_call"
	EventToolStart       EventType = "tool_start"
	EventToolResult      EventType = "tool_result"
	EventMessageComplete EventType = "message_complete"
	EventComplete        EventType = "complete"
	EventError           EventType = "error"
)

// StreamEvent is one record of a chat stream. The set of implementations is
// closed; consumers switch on the concrete type or on EventType().
type StreamEvent interface {
	EventType() EventType
	isStreamEvent()
}

// TokenEvent carries one text fragment exactly as the model streamed it.
type TokenEvent struct {
	Content   string `json:"content"`
	Iteration int    `json:"iteration"`
}

// ToolCallEvent announces the tool calls requested in an iteration.
// Arguments may still be partial when the announcement is early.
type ToolCallEvent struct {
	ToolCalls []ToolCall `json:"tool_calls"`
	Iteration int        `json:"iteration"`
}

// ToolStartEvent is emitted right before a tool runs.
type ToolStartEvent struct {
	ToolCallID string          `json:"tool_call_id"`
	Function   string          `json:"function"`
	Arguments  json.RawMessage `json:"arguments"`
	Iteration  int             `json:"iteration"`
}

// ToolResultEvent carries the structured result of a tool run.
type ToolResultEvent struct {
	ToolCallID string `json:"tool_call_id"`
	Function   string `json:"function"`
	Result     any    `json:"result"`
	Iteration  int    `json:"iteration"`
}

// MessageCompleteEvent carries the final assistant message of a chat.
type MessageCompleteEvent struct {
	Message   Message `json:"message"`
	Iteration int     `json:"iteration"`
}

// CompleteEvent closes a chat and lists every message it produced.
type CompleteEvent struct {
	Messages              []Message `json:"messages"`
	Iterations            int       `json:"iterations"`
	EstimatedPromptTokens int       `json:"estimated_prompt_tokens,omitempty"`
}

// ErrorEvent reports a failure of the chat loop.
type ErrorEvent struct {
	Error string `json:"error"`
}

func (TokenEvent) EventType() EventType           { return EventToken }
func (ToolCallEvent) EventType() EventType        { return EventToolCall }
func (ToolStartEvent) EventType() EventType       { return EventToolStart }
func (ToolResultEvent) EventType() EventType      { return EventToolResult }
func (MessageCompleteEvent) EventType() EventType { return EventMessageComplete }
func (CompleteEvent) EventType() EventType        { return EventComplete }
func (ErrorEvent) EventType() EventType           { return EventError }

func (TokenEvent) isStreamEvent()           {}
func (ToolCallEvent) isStreamEvent()        {}
func (ToolStartEvent) isStreamEvent()       {}
func (ToolResultEvent) isStreamEvent()      {}
func (MessageCompleteEvent) isStreamEvent() {}
func (CompleteEvent) isStreamEvent()        {}
func (ErrorEvent) isStreamEvent()           {}

// RawArguments returns args as JSON when it parses, or as a JSON string
// holding the raw text otherwise.
func RawArguments(args string) json.RawMessage {
	if args == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(args)
	return quoted
}
