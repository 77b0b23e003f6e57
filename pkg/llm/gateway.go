package llm

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNotConfigured is returned when no provider is available.
var ErrNotConfigured = errors.New("LLM provider not configured")

// Gateway fronts a Provider and logs every request.
type Gateway struct {
	provider Provider
	log      *slog.Logger
}

// NewGateway wraps provider. A nil provider yields a gateway whose Stream
// always fails with ErrNotConfigured.
func NewGateway(provider Provider, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		provider: provider,
		log:      log,
	}
}

// Configured reports whether a provider is set.
func (g *Gateway) Configured() bool {
	return g != nil && g.provider != nil
}

// ProviderID returns the provider id, or "" when unconfigured.
func (g *Gateway) ProviderID() string {
	if !g.Configured() {
		return ""
	}
	return g.provider.ID()
}

func (g *Gateway) Stream(ctx context.Context, req *ProviderRequest) (Stream, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	g.log.Debug("llm request",
		"provider", g.provider.ID(),
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)
	return g.provider.Stream(ctx, req)
}
