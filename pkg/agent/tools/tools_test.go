package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yinzara/ha-config-ai-agent/pkg/changeset"
	"github.com/yinzara/ha-config-ai-agent/pkg/configstore"
	"github.com/yinzara/ha-config-ai-agent/pkg/homeassistant"
	"github.com/yinzara/ha-config-ai-agent/pkg/tool"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

type fakeRegistry struct {
	available      bool
	devices        []homeassistant.Record
	entities       []homeassistant.Record
	areas          []homeassistant.Record
	dashboard      string
	dashboardErr   error
	dashboardCalls int
}

func (f *fakeRegistry) Available() bool { return f.available }

func (f *fakeRegistry) ListDevices(context.Context) ([]homeassistant.Record, error) {
	return f.devices, nil
}

func (f *fakeRegistry) ListEntities(context.Context) ([]homeassistant.Record, error) {
	return f.entities, nil
}

func (f *fakeRegistry) ListAreas(context.Context) ([]homeassistant.Record, error) {
	return f.areas, nil
}

func (f *fakeRegistry) GetDashboardYAML(context.Context) (string, error) {
	f.dashboardCalls++
	return f.dashboard, f.dashboardErr
}

func newRegistry() *fakeRegistry {
	return &fakeRegistry{
		available: true,
		devices:   []homeassistant.Record{{"id": "dev1", "name": "Kitchen Sensor"}},
		entities:  []homeassistant.Record{{"entity_id": "light.kitchen", "name": "Kitchen Light"}},
		areas:     []homeassistant.Record{{"area_id": "kitchen", "name": "Kitchen"}},
		dashboard: "views:\n- title: Kitchen\n",
	}
}

type fixture struct {
	toolset    *Toolset
	registry   *fakeRegistry
	changesets *changeset.Store
	dir        string
}

func newFixture(t *testing.T, reg *fakeRegistry) *fixture {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "config")
	files := map[string]string{
		"configuration.yaml":                     "homeassistant:\n  name: Home\nlight: !include lights.yaml\n",
		"lights.yaml":                            "- platform: template\n",
		"automations.yaml":                       "- alias: Kitchen motion\n",
		"secrets.yaml":                           "api_key: kitchen-secret\n",
		"packages/heating.yaml":                  "climate:\n",
		"custom_components/foo/kitchen.yaml":     "kitchen: true\n",
		"packages/nested/deep/kitchen_fans.yaml": "fan:\n",
		"notes.txt":                              "kitchen",
	}
	for p, c := range files {
		full := filepath.Join(dir, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(c), 0o644))
	}

	store, err := configstore.New(configstore.Config{
		ConfigDir:  dir,
		BackupDir:  filepath.Join(root, "backup"),
		MaxBackups: 10,
	}, nil, nil, nil)
	require.NoError(t, err)

	cs := changeset.NewStore(0, nil)
	var rr RegistryReader
	if reg != nil {
		rr = reg
	}
	return &fixture{
		toolset:    New(store, rr, cs, nil),
		registry:   reg,
		changesets: cs,
		dir:        store.ConfigDir(),
	}
}

func paths(files []FileResult) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestSearchWithoutPattern(t *testing.T) {
	f := newFixture(t, newRegistry())
	res := f.toolset.SearchConfigFiles(context.Background(), "")

	require.True(t, res.Success)
	assert.Equal(t, []string{
		"automations.yaml",
		"configuration.yaml",
		"lights.yaml",
		"packages/heating.yaml",
		"packages/nested/deep/kitchen_fans.yaml",
		"lovelace.yaml",
	}, paths(res.Files))
	assert.Equal(t, len(res.Files), res.Count)
	assert.Empty(t, res.SearchPattern)
	for _, file := range res.Files {
		assert.Zero(t, file.Matches, file.Path)
		assert.False(t, strings.HasPrefix(file.Path, "devices/"))
	}
}

func TestSearchWithPattern(t *testing.T) {
	f := newFixture(t, newRegistry())
	res := f.toolset.SearchConfigFiles(context.Background(), "KITCHEN")

	require.True(t, res.Success)
	assert.Equal(t, "KITCHEN", res.SearchPattern)
	got := map[string]int{}
	for _, file := range res.Files {
		got[file.Path] = file.Matches
	}
	assert.Equal(t, map[string]int{
		"automations.yaml":                       1,
		"packages/nested/deep/kitchen_fans.yaml": 1,
		"devices/dev1.json":                      1,
		"entities/light.kitchen.json":            3,
		"areas/kitchen.json":                     3,
		"lovelace.yaml":                          1,
	}, got)
}

func TestSearchWithoutToken(t *testing.T) {
	reg := newRegistry()
	reg.available = false
	f := newFixture(t, reg)

	res := f.toolset.SearchConfigFiles(context.Background(), "kitchen")
	require.True(t, res.Success)
	for _, file := range res.Files {
		assert.False(t, configstore.IsVirtual(file.Path), file.Path)
	}
	assert.Zero(t, reg.dashboardCalls)
}

func TestSearchGlob(t *testing.T) {
	f := newFixture(t, newRegistry())
	ctx := context.Background()

	res := f.toolset.SearchConfigFiles(ctx, "/packages/**/*.yaml")
	require.True(t, res.Success)
	assert.Equal(t, []string{"packages/heating.yaml", "packages/nested/deep/kitchen_fans.yaml"}, paths(res.Files))
	for _, file := range res.Files {
		assert.Equal(t, 1, file.Matches)
	}

	res = f.toolset.SearchConfigFiles(ctx, "/*.yaml")
	assert.Equal(t, []string{"automations.yaml", "configuration.yaml", "lights.yaml"}, paths(res.Files))

	res = f.toolset.SearchConfigFiles(ctx, "/**/kitchen.yaml")
	assert.Empty(t, res.Files)
}

func TestDashboardIsCached(t *testing.T) {
	reg := newRegistry()
	f := newFixture(t, reg)
	ctx := context.Background()

	f.toolset.SearchConfigFiles(ctx, "")
	f.toolset.SearchConfigFiles(ctx, "kitchen")
	assert.Equal(t, 1, reg.dashboardCalls)

	f.toolset.InvalidateDashboard()
	f.toolset.SearchConfigFiles(ctx, "")
	assert.Equal(t, 2, reg.dashboardCalls)
}

func TestDashboardFailureIsSkipped(t *testing.T) {
	reg := newRegistry()
	reg.dashboard = ""
	reg.dashboardErr = errors.New("unavailable")
	f := newFixture(t, reg)

	res := f.toolset.SearchConfigFiles(context.Background(), "")
	require.True(t, res.Success)
	assert.NotContains(t, paths(res.Files), "lovelace.yaml")
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		glob, name string
		want       bool
	}{
		{"*.yaml", "a.yaml", true},
		{"*.yaml", "dir/a.yaml", false},
		{"**/*.yaml", "a.yaml", true},
		{"**/*.yaml", "dir/sub/a.yaml", true},
		{"dir/**", "dir/sub/a.yaml", true},
		{"dir/**/a.yaml", "dir/a.yaml", true},
		{"dir/**/b.yaml", "dir/sub/a.yaml", false},
		{"[", "a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchGlob(tt.glob, tt.name), "%s vs %s", tt.glob, tt.name)
	}
}

func TestProposeAllInvalid(t *testing.T) {
	f := newFixture(t, newRegistry())
	res := f.toolset.ProposeConfigChanges(context.Background(), []ChangeRequest{
		{FilePath: "a.yaml", NewContent: "bad: [unterminated"},
	})

	assert.False(t, res.Success)
	assert.Equal(t, "All 1 file(s) failed to process", res.Error)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "a.yaml", res.Errors[0].FilePath)
	assert.True(t, strings.HasPrefix(res.Errors[0].Error, "Invalid YAML in new_content:"), res.Errors[0].Error)
	assert.Zero(t, f.changesets.Len())
}

func TestProposeMixedResults(t *testing.T) {
	f := newFixture(t, newRegistry())
	res := f.toolset.ProposeConfigChanges(context.Background(), []ChangeRequest{
		{FilePath: "entities/light.kitchen.json", NewContent: `{"name":"Island Light"}`},
		{FilePath: "entities/light.kitchen.json", NewContent: `{"name":`},
	})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.TotalFiles)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error, "Invalid JSON in new_content")
	assert.Equal(t, "Successfully proposed changeset with 1 file(s). Awaiting user approval.", res.Message)

	cs, ok := f.changesets.Get(res.ChangesetID)
	require.True(t, ok)
	require.Len(t, cs.FileChanges, 1)
	assert.Equal(t, `{"name":"Island Light"}`, cs.FileChanges[0].NewContent)
}

func TestProposePerItemErrors(t *testing.T) {
	f := newFixture(t, newRegistry())
	res := f.toolset.ProposeConfigChanges(context.Background(), []ChangeRequest{
		{FilePath: "", NewContent: "a: 1"},
		{FilePath: "b.yaml", NewContent: ""},
		{FilePath: "devices/missing.json", NewContent: `{}`},
		{FilePath: "entities/light.nope.json", NewContent: `{}`},
		{FilePath: "areas/garage.json", NewContent: `{"icon":"mdi:garage"}`},
		{FilePath: "../escape.yaml", NewContent: "a: 1"},
		{FilePath: "areas/office.json", NewContent: `{"name":"Office"}`},
		{FilePath: "configuration.yaml", NewContent: "homeassistant:\n  name: House\nlight: !include lights.yaml\n"},
		{FilePath: "new/file.yaml", NewContent: "sensor: []\n"},
	})

	require.True(t, res.Success)
	assert.Equal(t, []string{"areas/office.json", "configuration.yaml", "new/file.yaml"}, res.Files)

	msgs := map[string]string{}
	for _, e := range res.Errors {
		msgs[e.FilePath] = e.Error
	}
	assert.Equal(t, "Missing file_path or new_content", msgs["unknown"])
	assert.Equal(t, "Missing file_path or new_content", msgs["b.yaml"])
	assert.Equal(t, "Device missing not found in registry", msgs["devices/missing.json"])
	assert.Equal(t, "Entity light.nope not found in registry", msgs["entities/light.nope.json"])
	assert.Equal(t, "Cannot create area: 'name' field is required", msgs["areas/garage.json"])
	assert.Contains(t, msgs["../escape.yaml"], "outside")

	assert.Contains(t, res.Diffs["configuration.yaml"], "House")
	assert.Equal(t, ChangeStats{Added: 1}, res.Stats["new/file.yaml"])
	assert.Positive(t, res.Stats["configuration.yaml"].Added)
	assert.NotEmpty(t, res.ExpiresAt)

	// Nothing is written by a proposal.
	data, err := os.ReadFile(filepath.Join(f.dir, "configuration.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: Home")
}

func TestProposeDashboardNeedsCurrentConfig(t *testing.T) {
	reg := newRegistry()
	reg.available = false
	f := newFixture(t, reg)

	res := f.toolset.ProposeConfigChanges(context.Background(), []ChangeRequest{
		{FilePath: "lovelace.yaml", NewContent: "views: []\n"},
	})
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Could not retrieve current Lovelace config", res.Errors[0].Error)
}

func TestRegisterAndExecute(t *testing.T) {
	f := newFixture(t, newRegistry())
	reg := tool.NewRegistry()
	exec := tool.NewExecutor(reg, nil)
	require.NoError(t, f.toolset.Register(reg, exec))
	ctx := context.Background()

	res := exec.Execute(ctx, types.NewToolCall("c1", SearchConfigFilesName, `{"search_pattern":"alias"}`))
	sr, ok := res.(*SearchResult)
	require.True(t, ok, "%#v", res)
	assert.Equal(t, 1, sr.Count)

	res = exec.Execute(ctx, types.NewToolCall("c2", ProposeConfigChangesName, `{"file_path":"a.yaml"}`))
	failure, ok := res.(tool.Failure)
	require.True(t, ok, "%#v", res)
	assert.True(t, strings.HasPrefix(failure.Error, "ERROR: propose_config_changes requires a 'changes' parameter"))
	assert.True(t, strings.HasSuffix(failure.Error, `Received args: {"file_path":"a.yaml"}`))
	assert.Zero(t, f.changesets.Len())

	args, _ := json.Marshal(map[string]any{"changes": []map[string]string{{"file_path": "x.yaml", "new_content": "a: 1\n"}}})
	res = exec.Execute(ctx, types.NewToolCall("c3", ProposeConfigChangesName, string(args)))
	pr, ok := res.(*ProposeResult)
	require.True(t, ok, "%#v", res)
	assert.True(t, pr.Success)
	assert.Equal(t, 1, f.changesets.Len())
}
