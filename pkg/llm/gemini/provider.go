package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"google.golang.org/genai"

	"github.com/yinzara/ha-config-ai-agent/pkg/llm"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

// Config contains Gemini-specific configuration.
type Config struct {
	APIKey    string
	ProjectID string
	Location  string
	Model     string
}

type Provider struct {
	client *genai.Client
	config Config
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI, // Default to Gemini API
	}

	if cfg.ProjectID != "" && cfg.Location != "" {
		clientConfig.Backend = genai.BackendVertexAI
		clientConfig.Project = cfg.ProjectID
		clientConfig.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Provider{
		client: client,
		config: cfg,
	}, nil
}

func (p *Provider) ID() string {
	return "gemini"
}

func (p *Provider) Stream(ctx context.Context, req *llm.ProviderRequest) (llm.Stream, error) {
	// 1. Separate System Prompt
	var systemInstruction *genai.Content
	var contents []*genai.Content

	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			systemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
			continue
		}

		content, err := convertMessage(m)
		if err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}

	// 2. Prepare Config
	conf := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             convertTools(req.Tools),
	}
	if req.Temperature != nil {
		conf.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if len(conf.Tools) > 0 && req.ToolChoice == llm.ToolChoiceAuto {
		conf.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.config.Model
	}

	next, stop := iter.Pull2(p.client.Models.GenerateContentStream(ctx, modelName, contents, conf))
	return &chunkStream{next: next, stop: stop}, nil
}

// chunkStream adapts the response iterator. Gemini sends whole function
// calls, so each call becomes a single delta with its own index.
type chunkStream struct {
	next  func() (*genai.GenerateContentResponse, error, bool)
	stop  func()
	calls int
}

func (s *chunkStream) Recv() (*llm.Chunk, error) {
	for {
		resp, err, ok := s.next()
		if !ok {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("gemini stream: %w", err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		cand := resp.Candidates[0]

		chunk := &llm.Chunk{FinishReason: string(cand.FinishReason)}
		for _, part := range cand.Content.Parts {
			if part.Text != "" && !part.Thought {
				chunk.Content += part.Text
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, fmt.Errorf("encode function args: %w", err)
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", s.calls)
				}
				chunk.ToolCalls = append(chunk.ToolCalls, llm.ToolCallDelta{
					Index:     s.calls,
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				})
				s.calls++
			}
		}
		return chunk, nil
	}
}

func (s *chunkStream) Close() error {
	s.stop()
	return nil
}

// Helpers

func convertMessage(m types.Message) (*genai.Content, error) {
	role := genai.RoleUser
	if m.Role == types.RoleAssistant {
		role = genai.RoleModel
	}

	var parts []*genai.Part

	// 1. Text Content (tool output goes into the function response below)
	if m.Content != "" && m.Role != types.RoleTool {
		parts = append(parts, &genai.Part{Text: m.Content})
	}

	// 2. Tool Calls (Assistant -> FunctionCall)
	for _, tc := range m.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		parts = append(parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			},
		})
	}

	// 3. Tool Results (Tool -> FunctionResponse)
	if m.Role == types.RoleTool {
		response := map[string]any{}
		if err := json.Unmarshal([]byte(m.Content), &response); err != nil {
			response = map[string]any{"result": m.Content}
		}
		parts = append(parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: response,
			},
		})
	}

	return &genai.Content{
		Role:  role,
		Parts: parts,
	}, nil
}

func convertTools(tools []types.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		fds = append(fds, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	valType, _ := schema["type"].(string)

	s := &genai.Schema{
		Type:        toGenaiType(valType),
		Description: getString(schema, "description"),
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema)
		for k, v := range props {
			if vMap, ok := v.(map[string]any); ok {
				s.Properties[k] = convertSchema(vMap)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = convertSchema(items)
	}

	switch req := schema["required"].(type) {
	case []string:
		s.Required = append(s.Required, req...)
	case []any:
		for _, r := range req {
			if str, ok := r.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}

	return s
}

func toGenaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func getString(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}
