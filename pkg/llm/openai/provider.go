package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/yinzara/ha-config-ai-agent/pkg/llm"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

type Provider struct {
	client *openai.Client
	config Config
}

type Config struct {
	APIKey  string
	BaseURL string
}

func New(cfg Config) *Provider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

func (p *Provider) ID() string {
	return "openai"
}

func (p *Provider) Stream(ctx context.Context, req *llm.ProviderRequest) (llm.Stream, error) {
	openAIReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertMessages(req.Messages),
		Tools:    convertTools(req.Tools),
		Stream:   true,
	}
	if len(openAIReq.Tools) > 0 && req.ToolChoice != "" {
		openAIReq.ToolChoice = req.ToolChoice
	}
	if req.Temperature != nil {
		openAIReq.Temperature = temperature(*req.Temperature)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, openAIReq)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	return &chunkStream{stream: stream}, nil
}

// temperature maps t onto the request field. The field is omitted when
// zero, so an explicit 0 is sent as the smallest positive float32.
func temperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

type chunkStream struct {
	stream *openai.ChatCompletionStream
}

func (s *chunkStream) Recv() (*llm.Chunk, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("openai stream: %w", err)
		}
		// Usage-only chunks carry no choices.
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		chunk := &llm.Chunk{
			Content:      choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}
		for i, tc := range choice.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			chunk.ToolCalls = append(chunk.ToolCalls, llm.ToolCallDelta{
				Index:     idx,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return chunk, nil
	}
}

func (s *chunkStream) Close() error {
	return s.stream.Close()
}

// Helpers

func convertMessages(msgs []types.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		msg := openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}

		// If tool result, we need ToolCallID
		if m.Role == types.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}

		// If assistant has tool calls
		if len(m.ToolCalls) > 0 {
			msg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				msg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}

		result = append(result, msg)
	}
	return result
}

func convertTools(tools []types.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  map[string]any(t.Parameters),
			},
		}
	}
	return result
}
