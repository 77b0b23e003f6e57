// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/yinzara/ha-config-ai-agent/pkg/llm"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

// ErrScriptExhausted is returned when more turns are requested than scripted.
var ErrScriptExhausted = errors.New("mock: no scripted turn left")

// Turn is the scripted response to one request. A non-nil Err is returned
// after all chunks were delivered.
type Turn struct {
	Chunks []llm.Chunk
	Err    error
}

// Provider replays Turns in order. With Repeat set, the last turn is
// replayed forever.
type Provider struct {
	Turns  []Turn
	Repeat bool

	mu       sync.Mutex
	requests []llm.ProviderRequest
}

func New(turns ...Turn) *Provider {
	return &Provider{Turns: turns}
}

func (p *Provider) ID() string { return "mock" }

func (p *Provider) Stream(ctx context.Context, req *llm.ProviderRequest) (llm.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := *req
	snapshot.Messages = make([]types.Message, len(req.Messages))
	for i, m := range req.Messages {
		snapshot.Messages[i] = m.Clone()
	}
	p.requests = append(p.requests, snapshot)

	n := len(p.requests) - 1
	if n >= len(p.Turns) {
		if !p.Repeat || len(p.Turns) == 0 {
			return nil, ErrScriptExhausted
		}
		n = len(p.Turns) - 1
	}
	return &stream{ctx: ctx, turn: p.Turns[n]}, nil
}

// Requests returns copies of every request received so far.
func (p *Provider) Requests() []llm.ProviderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ProviderRequest(nil), p.requests...)
}

type stream struct {
	ctx  context.Context
	turn Turn
	pos  int
}

func (s *stream) Recv() (*llm.Chunk, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos < len(s.turn.Chunks) {
		c := s.turn.Chunks[s.pos]
		s.pos++
		return &c, nil
	}
	if s.turn.Err != nil {
		return nil, s.turn.Err
	}
	return nil, io.EOF
}

func (s *stream) Close() error { return nil }

// Text builds a turn streaming the given fragments and finishing normally.
func Text(fragments ...string) Turn {
	t := Turn{}
	for _, f := range fragments {
		t.Chunks = append(t.Chunks, llm.Chunk{Content: f})
	}
	t.Chunks = append(t.Chunks, llm.Chunk{FinishReason: "stop"})
	return t
}

// ToolCall builds a turn requesting one tool call, with the arguments split
// across two fragments.
func ToolCall(id, name, arguments string) Turn {
	half := len(arguments) / 2
	return Turn{Chunks: []llm.Chunk{
		{ToolCalls: []llm.ToolCallDelta{{Index: 0, ID: id, Name: name, Arguments: arguments[:half]}}},
		{ToolCalls: []llm.ToolCallDelta{{Index: 0, Arguments: arguments[half:]}}},
		{FinishReason: "tool_calls"},
	}}
}
