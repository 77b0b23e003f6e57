package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

// getCodec returns the cl100k_base tokenizer
func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens returns an approximate token count for the given text.
func EstimateTokens(text string) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, err
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// EstimateRequestTokens approximates the prompt size of a request: message
// contents, tool call arguments and tool schemas. Returns 0 when the
// tokenizer is unavailable.
func EstimateRequestTokens(req *ProviderRequest) int {
	total := 0
	add := func(s string) {
		if s == "" {
			return
		}
		n, err := EstimateTokens(s)
		if err != nil {
			return
		}
		total += n
	}
	for _, m := range req.Messages {
		add(m.Content)
		for _, tc := range m.ToolCalls {
			add(tc.Function.Name)
			add(tc.Function.Arguments)
		}
	}
	for _, t := range req.Tools {
		add(toolText(t))
	}
	return total
}

func toolText(t types.Tool) string {
	return t.Name + " " + t.Description
}
