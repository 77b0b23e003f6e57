// Package tools implements the operations the assistant can call: searching
// configuration resources and proposing changesets.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yinzara/ha-config-ai-agent/pkg/changeset"
	"github.com/yinzara/ha-config-ai-agent/pkg/configstore"
	"github.com/yinzara/ha-config-ai-agent/pkg/homeassistant"
	"github.com/yinzara/ha-config-ai-agent/pkg/tool"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

// RegistryReader is the read side of the Home Assistant client.
type RegistryReader interface {
	Available() bool
	ListDevices(ctx context.Context) ([]homeassistant.Record, error)
	ListEntities(ctx context.Context) ([]homeassistant.Record, error)
	ListAreas(ctx context.Context) ([]homeassistant.Record, error)
	GetDashboardYAML(ctx context.Context) (string, error)
}

// Toolset binds the tool operations to their stores.
type Toolset struct {
	store      *configstore.Store
	registry   RegistryReader
	changesets *changeset.Store
	log        *slog.Logger

	dashboardMu    sync.Mutex
	dashboardCache string
}

// New creates a Toolset. registry may be nil, in which case registry-backed
// resources are left out of searches.
func New(store *configstore.Store, registry RegistryReader, changesets *changeset.Store, log *slog.Logger) *Toolset {
	if log == nil {
		log = slog.Default()
	}
	return &Toolset{
		store:      store,
		registry:   registry,
		changesets: changesets,
		log:        log,
	}
}

// Register adds both tools to reg and binds their handlers on exec.
func (t *Toolset) Register(reg *tool.Registry, exec *tool.Executor) error {
	for _, b := range []struct {
		def     types.Tool
		handler tool.Handler
	}{
		{SearchConfigFilesTool, t.handleSearch},
		{ProposeConfigChangesTool, t.handlePropose},
	} {
		if err := reg.Register(b.def); err != nil {
			return err
		}
		exec.RegisterHandler(b.def.Name, b.handler)
	}
	exec.OnArgumentError(ProposeConfigChangesName, proposeArgumentError)
	return nil
}

func proposeArgumentError(raw string, _ error) string {
	return "ERROR: propose_config_changes requires a 'changes' parameter with a list of file changes. " +
		"Each change must have 'file_path' and 'new_content'. " +
		"You MUST first read files with search_config_files, then provide all modified content. " +
		"Received args: " + raw
}

type searchArgs struct {
	SearchPattern string `json:"search_pattern"`
}

func (t *Toolset) handleSearch(ctx context.Context, args json.RawMessage) (any, error) {
	var in searchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return t.SearchConfigFiles(ctx, in.SearchPattern), nil
}

type proposeArgs struct {
	Changes []ChangeRequest `json:"changes"`
}

func (t *Toolset) handlePropose(ctx context.Context, args json.RawMessage) (any, error) {
	var in proposeArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return t.ProposeConfigChanges(ctx, in.Changes), nil
}

func (t *Toolset) registryAvailable() bool {
	return t.registry != nil && t.registry.Available()
}

// dashboardYAML returns the dashboard document as YAML, or "" when it cannot
// be retrieved. A successful fetch is cached for the process lifetime.
func (t *Toolset) dashboardYAML(ctx context.Context) string {
	if !t.registryAvailable() {
		t.log.Debug("no token available, skipping dashboard")
		return ""
	}

	t.dashboardMu.Lock()
	defer t.dashboardMu.Unlock()
	if t.dashboardCache != "" {
		return t.dashboardCache
	}

	text, err := t.registry.GetDashboardYAML(ctx)
	if err != nil {
		t.log.Debug("failed to get dashboard config", "error", err)
		return ""
	}
	t.dashboardCache = text
	t.log.Info("retrieved dashboard config")
	return text
}

// InvalidateDashboard drops the cached dashboard document.
func (t *Toolset) InvalidateDashboard() {
	t.dashboardMu.Lock()
	t.dashboardCache = ""
	t.dashboardMu.Unlock()
}

func (t *Toolset) listDevices(ctx context.Context) []homeassistant.Record {
	if !t.registryAvailable() {
		return nil
	}
	recs, err := t.registry.ListDevices(ctx)
	if err != nil {
		t.log.Debug("failed to get devices", "error", err)
		return nil
	}
	return recs
}

func (t *Toolset) listEntities(ctx context.Context) []homeassistant.Record {
	if !t.registryAvailable() {
		return nil
	}
	recs, err := t.registry.ListEntities(ctx)
	if err != nil {
		t.log.Debug("failed to get entities", "error", err)
		return nil
	}
	return recs
}

func (t *Toolset) listAreas(ctx context.Context) []homeassistant.Record {
	if !t.registryAvailable() {
		return nil
	}
	recs, err := t.registry.ListAreas(ctx)
	if err != nil {
		t.log.Debug("failed to get areas", "error", err)
		return nil
	}
	return recs
}

func prettyJSON(rec homeassistant.Record) (string, error) {
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
