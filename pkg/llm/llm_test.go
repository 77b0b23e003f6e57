package llm_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/yinzara/ha-config-ai-agent/pkg/llm"
	"github.com/yinzara/ha-config-ai-agent/pkg/llm/mock"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

func TestGatewayWithoutProvider(t *testing.T) {
	g := llm.NewGateway(nil, nil)
	if g.Configured() {
		t.Fatalf("gateway without provider must not be configured")
	}
	if _, err := g.Stream(context.Background(), &llm.ProviderRequest{}); !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGatewayStreamsFromProvider(t *testing.T) {
	p := mock.New(mock.Text("Hel", "lo"))
	g := llm.NewGateway(p, nil)
	if g.ProviderID() != "mock" {
		t.Fatalf("unexpected provider id %q", g.ProviderID())
	}

	s, err := g.Stream(context.Background(), &llm.ProviderRequest{Model: "m"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer s.Close()

	var text string
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		text += c.Content
	}
	if text != "Hello" {
		t.Fatalf("expected Hello, got %q", text)
	}
	if len(p.Requests()) != 1 || p.Requests()[0].Model != "m" {
		t.Fatalf("request not recorded")
	}
}

func TestEstimateTokens(t *testing.T) {
	n, err := llm.EstimateTokens("hello world")
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tokens, got %d", n)
	}

	req := &llm.ProviderRequest{
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "You are helpful."},
			{Role: types.RoleUser, Content: "hello world"},
		},
	}
	if got := llm.EstimateRequestTokens(req); got < n {
		t.Fatalf("request estimate %d smaller than message estimate %d", got, n)
	}
}
