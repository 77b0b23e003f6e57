package factory

import (
	"context"
	"testing"

	"github.com/yinzara/ha-config-ai-agent/pkg/config"
)

func TestNewProviderSelectsOpenAI(t *testing.T) {
	cfg := &config.Config{ActiveProvider: "openai", OpenAI: config.OpenAIConfig{APIKey: "test"}}
	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected provider, got error %v", err)
	}
	if provider.ID() != "openai" {
		t.Fatalf("expected openai provider, got %s", provider.ID())
	}
}

func TestNewProviderPicksConfiguredKey(t *testing.T) {
	cfg := &config.Config{OpenAI: config.OpenAIConfig{APIKey: "sk-test"}}
	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected provider, got error %v", err)
	}
	if provider == nil || provider.ID() != "openai" {
		t.Fatalf("expected openai provider, got %v", provider)
	}
}

func TestNewProviderWithoutCredentials(t *testing.T) {
	provider, err := NewProvider(context.Background(), &config.Config{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if provider != nil {
		t.Fatalf("expected no provider, got %s", provider.ID())
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider(context.Background(), &config.Config{ActiveProvider: "llama"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
