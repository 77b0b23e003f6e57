package gemini

import (
	"testing"

	"google.golang.org/genai"

	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

func TestConvertSchema(t *testing.T) {
	s := convertSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"changes": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object", "description": "one change"},
			},
			"count": map[string]any{"type": "integer"},
		},
		"required": []any{"changes"},
	})

	if s.Type != genai.TypeObject || len(s.Properties) != 2 {
		t.Fatalf("unexpected schema %+v", s)
	}
	changes := s.Properties["changes"]
	if changes.Type != genai.TypeArray || changes.Items == nil || changes.Items.Description != "one change" {
		t.Fatalf("unexpected array schema %+v", changes)
	}
	if s.Properties["count"].Type != genai.TypeInteger {
		t.Fatalf("unexpected integer schema")
	}
	if len(s.Required) != 1 || s.Required[0] != "changes" {
		t.Fatalf("unexpected required %v", s.Required)
	}
}

func TestConvertMessageRoles(t *testing.T) {
	c, err := convertMessage(types.Message{
		Role:      types.RoleAssistant,
		Content:   "looking",
		ToolCalls: []types.ToolCall{types.NewToolCall("call_1", "search_config_files", `{"search_pattern":"light"}`)},
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if c.Role != genai.RoleModel || len(c.Parts) != 2 {
		t.Fatalf("unexpected content %+v", c)
	}
	fc := c.Parts[1].FunctionCall
	if fc == nil || fc.Name != "search_config_files" || fc.Args["search_pattern"] != "light" {
		t.Fatalf("unexpected function call %+v", fc)
	}

	c, err = convertMessage(types.Message{Role: types.RoleTool, ToolCallID: "call_1", Name: "search_config_files", Content: `{"success":true}`})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(c.Parts) != 1 || c.Parts[0].FunctionResponse == nil {
		t.Fatalf("expected a single function response part, got %+v", c.Parts)
	}
	if c.Parts[0].FunctionResponse.Response["success"] != true {
		t.Fatalf("unexpected response %+v", c.Parts[0].FunctionResponse.Response)
	}

	c, _ = convertMessage(types.Message{Role: types.RoleTool, Name: "x", Content: "plain text"})
	if c.Parts[0].FunctionResponse.Response["result"] != "plain text" {
		t.Fatalf("non-JSON tool output should be wrapped")
	}

	if _, err := convertMessage(types.Message{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{types.NewToolCall("c", "x", "{bad")}}); err == nil {
		t.Fatalf("expected error for malformed arguments")
	}
}
