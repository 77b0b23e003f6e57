package llm

import (
	"context"

	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

// Provider defines the interface for an LLM provider (e.g., OpenAI, Gemini)
type Provider interface {
	// ID returns the unique identifier of the provider
	ID() string

	// Stream starts a streaming chat request. The stream yields chunks until
	// Recv returns io.EOF.
	Stream(ctx context.Context, req *ProviderRequest) (Stream, error)
}

// ToolChoiceAuto lets the model decide whether to call tools.
const ToolChoiceAuto = "auto"

type ProviderRequest struct {
	Model    string
	Messages []types.Message
	Tools    []types.Tool
	// ToolChoice is sent only when tools are present.
	ToolChoice string
	// Temperature is omitted from the request when nil.
	Temperature *float64
}

// Stream is an open streaming response.
type Stream interface {
	// Recv returns the next chunk, or io.EOF once the response is complete.
	Recv() (*Chunk, error)
	Close() error
}

// Chunk is one streamed delta.
type Chunk struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// ToolCallDelta is a fragment of a tool call. Fragments with the same Index
// belong to the same call; ID and Name usually arrive once while Arguments
// is split across many fragments.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}
