package factory

import (
	"context"
	"fmt"

	"github.com/yinzara/ha-config-ai-agent/pkg/config"
	"github.com/yinzara/ha-config-ai-agent/pkg/llm"
	"github.com/yinzara/ha-config-ai-agent/pkg/llm/gemini"
	"github.com/yinzara/ha-config-ai-agent/pkg/llm/openai"
)

// NewProvider creates an LLM provider based on configuration. It returns a
// nil provider without error when no provider has credentials.
func NewProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	active, err := cfg.ResolveProvider()
	if err != nil {
		return nil, err
	}

	switch active {
	case "":
		return nil, nil
	case config.ProviderGemini:
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:    cfg.Gemini.APIKey,
			ProjectID: cfg.Gemini.ProjectID,
			Location:  cfg.Gemini.Location,
			Model:     cfg.Gemini.Model,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", active)
	}
}
