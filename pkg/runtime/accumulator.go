package runtime

import (
	"sort"

	"github.com/yinzara/ha-config-ai-agent/pkg/llm"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

// ToolCallAccumulator assembles streamed tool-call fragments by index.
type ToolCallAccumulator struct {
	calls map[int]*types.ToolCall
}

func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: make(map[int]*types.ToolCall)}
}

// Add merges one fragment. IDs and names replace, arguments append.
func (a *ToolCallAccumulator) Add(d llm.ToolCallDelta) {
	tc, ok := a.calls[d.Index]
	if !ok {
		call := types.NewToolCall("", "", "")
		tc = &call
		a.calls[d.Index] = tc
	}
	if d.ID != "" {
		tc.ID = d.ID
	}
	if d.Name != "" {
		tc.Function.Name = d.Name
	}
	tc.Function.Arguments += d.Arguments
}

// HasNamed reports whether any call already knows its function name.
func (a *ToolCallAccumulator) HasNamed() bool {
	for _, tc := range a.calls {
		if tc.Function.Name != "" {
			return true
		}
	}
	return false
}

// Calls returns copies of the calls ordered by index.
func (a *ToolCallAccumulator) Calls() []types.ToolCall {
	idx := make([]int, 0, len(a.calls))
	for i := range a.calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]types.ToolCall, len(idx))
	for n, i := range idx {
		out[n] = *a.calls[i]
	}
	return out
}
