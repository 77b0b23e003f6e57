// Package app assembles the agent from its configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/yinzara/ha-config-ai-agent/pkg/agent/tools"
	"github.com/yinzara/ha-config-ai-agent/pkg/changeset"
	"github.com/yinzara/ha-config-ai-agent/pkg/config"
	"github.com/yinzara/ha-config-ai-agent/pkg/configstore"
	"github.com/yinzara/ha-config-ai-agent/pkg/homeassistant"
	"github.com/yinzara/ha-config-ai-agent/pkg/llm"
	"github.com/yinzara/ha-config-ai-agent/pkg/llm/factory"
	"github.com/yinzara/ha-config-ai-agent/pkg/prompt"
	"github.com/yinzara/ha-config-ai-agent/pkg/runtime"
	"github.com/yinzara/ha-config-ai-agent/pkg/tool"
)

// App is the application context shared by the inbound protocols.
type App struct {
	Config     *config.Config
	HA         *homeassistant.Client
	Store      *configstore.Store
	Changesets *changeset.Store
	Toolset    *tools.Toolset
	Executor   *tool.Executor
	Gateway    *llm.Gateway
	Runtime    *runtime.Runtime
	Approver   *runtime.Approver
	Prompt     prompt.Source

	log     *slog.Logger
	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	provider    llm.Provider
	hasProvider bool
	clock       func() time.Time
}

// WithProvider uses p instead of the provider selected by the configuration.
func WithProvider(p llm.Provider) Option {
	return func(o *options) {
		o.provider = p
		o.hasProvider = true
	}
}

// WithClock sets the clock of the changeset and file stores.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// OpenStore builds the Home Assistant client and the file store on top of
// it. It is enough for backup maintenance without a model provider.
func OpenStore(cfg *config.Config, log *slog.Logger, opts ...configstore.Option) (*configstore.Store, *homeassistant.Client, error) {
	if log == nil {
		log = slog.Default()
	}
	ha := homeassistant.NewClient(homeassistant.Config{
		URL:     cfg.HomeAssistant.WebSocketURL,
		Token:   cfg.HomeAssistant.Token,
		Timeout: cfg.HomeAssistant.Timeout,
	}, log.With("component", "homeassistant"))
	validator := homeassistant.NewValidator(homeassistant.ValidatorConfig{
		APIURL:  cfg.HomeAssistant.APIURL,
		Token:   cfg.HomeAssistant.Token,
		Timeout: cfg.HomeAssistant.Timeout,
	}, log.With("component", "validator"))

	store, err := configstore.New(configstore.Config{
		ConfigDir:  cfg.Storage.ConfigDir,
		BackupDir:  cfg.Storage.BackupDir,
		MaxBackups: cfg.Storage.MaxBackups,
	}, ha, validator, log.With("component", "configstore"), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("open config store: %w", err)
	}
	return store, ha, nil
}

// New wires every component. A missing model provider is not an error: chat
// requests then fail with llm.ErrNotConfigured.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var storeOpts []configstore.Option
	var changesetOpts []changeset.Option
	if o.clock != nil {
		storeOpts = append(storeOpts, configstore.WithClock(o.clock))
		changesetOpts = append(changesetOpts, changeset.WithClock(o.clock))
	}

	store, ha, err := OpenStore(cfg, log, storeOpts...)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		HA:         ha,
		Store:      store,
		Changesets: changeset.NewStore(cfg.Agent.ChangesetTTL, log.With("component", "changeset"), changesetOpts...),
		log:        log,
	}

	a.Toolset = tools.New(store, ha, a.Changesets, log.With("component", "tools"))
	registry := tool.NewRegistry()
	a.Executor = tool.NewExecutor(registry, log.With("component", "executor"))
	if err := a.Toolset.Register(registry, a.Executor); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	provider := o.provider
	if !o.hasProvider {
		provider, err = factory.NewProvider(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create llm provider: %w", err)
		}
	}
	a.Gateway = llm.NewGateway(provider, log.With("component", "llm"))
	providerID := a.Gateway.ProviderID()
	if !a.Gateway.Configured() {
		log.Warn("no LLM provider configured, chat is disabled")
	}

	a.Prompt = a.openPrompt(ctx)

	rtCfg := runtime.DefaultConfig
	rtCfg.Model = cfg.Model(providerID)
	rtCfg.MaxIterations = cfg.Agent.MaxIterations
	rtCfg.Temperature = cfg.OpenAI.Temperature
	a.Runtime = runtime.New(rtCfg, a.Gateway, a.Executor, a.Prompt, log.With("component", "runtime"))

	a.Approver = runtime.NewApprover(a.Changesets, store, ha, log.With("component", "approval"))
	a.Approver.OnApplied(func(paths []string) {
		if slices.Contains(paths, configstore.DashboardPath) {
			a.Toolset.InvalidateDashboard()
		}
	})

	log.Info("agent initialized",
		"provider", providerID,
		"model", rtCfg.Model,
		"max_iterations", rtCfg.MaxIterations,
		"ha_token", ha.Available(),
	)
	return a, nil
}

func (a *App) openPrompt(ctx context.Context) prompt.Source {
	path := a.Config.Agent.SystemPromptFile
	if path == "" {
		return prompt.Static("")
	}
	src := prompt.NewFileSource(path, a.log.With("component", "prompt"))
	if err := src.Watch(ctx); err != nil {
		a.log.Warn("system prompt hot reload disabled", "path", path, "error", err)
		return src
	}
	a.closers = append(a.closers, src.Close)
	return src
}

// RunJanitor drops expired changesets every interval until ctx is done.
// Approving a purged changeset still reports it as expired.
func (a *App) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Changesets.PurgeExpired(a.Changesets.Now())
		}
	}
}

// Close releases background resources.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
