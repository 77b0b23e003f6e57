package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yinzara/ha-config-ai-agent/pkg/changeset"
	"github.com/yinzara/ha-config-ai-agent/pkg/configstore"
	"github.com/yinzara/ha-config-ai-agent/pkg/homeassistant"
)

// ChangeRequest is one entry of a proposal as sent by the model.
type ChangeRequest struct {
	FilePath   string `json:"file_path"`
	NewContent string `json:"new_content"`
}

// ItemError reports why one entry was left out of the changeset.
type ItemError struct {
	FilePath string `json:"file_path"`
	Error    string `json:"error"`
}

// ChangeStats counts the lines a proposed entry adds and removes.
type ChangeStats struct {
	Added   int `json:"lines_added"`
	Removed int `json:"lines_removed"`
}

// ProposeResult is the result of propose_config_changes.
type ProposeResult struct {
	Success     bool                   `json:"success"`
	ChangesetID string                 `json:"changeset_id,omitempty"`
	Files       []string               `json:"files,omitempty"`
	TotalFiles  int                    `json:"total_files,omitempty"`
	ExpiresAt   string                 `json:"expires_at,omitempty"`
	Errors      []ItemError            `json:"errors,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Diffs       map[string]string      `json:"diffs,omitempty"`
	Stats       map[string]ChangeStats `json:"stats,omitempty"`
}

// ProposeConfigChanges validates every entry and stores the valid ones as a
// single changeset awaiting approval. Nothing is written.
func (t *Toolset) ProposeConfigChanges(ctx context.Context, changes []ChangeRequest) *ProposeResult {
	t.log.Info("proposing changes", "files", len(changes))

	var (
		accepted []changeset.FileChange
		errs     []ItemError
		diffs    = map[string]string{}
		stats    = map[string]ChangeStats{}
	)
	for _, ch := range changes {
		if ch.FilePath == "" || ch.NewContent == "" {
			name := ch.FilePath
			if name == "" {
				name = "unknown"
			}
			errs = append(errs, ItemError{FilePath: name, Error: "Missing file_path or new_content"})
			continue
		}

		current, err := t.currentContent(ctx, ch)
		if err == nil {
			err = validateSyntax(ch.FilePath, ch.NewContent)
		}
		if err != nil {
			t.log.Warn("rejected proposed change", "path", ch.FilePath, "error", err)
			errs = append(errs, ItemError{FilePath: ch.FilePath, Error: err.Error()})
			continue
		}

		if d := configstore.Diff(current, ch.NewContent); d != "" {
			diffs[ch.FilePath] = d
		}
		added, removed := configstore.DiffStats(current, ch.NewContent)
		stats[ch.FilePath] = ChangeStats{Added: added, Removed: removed}
		accepted = append(accepted, changeset.FileChange{FilePath: ch.FilePath, NewContent: ch.NewContent})
	}

	if len(accepted) == 0 && len(errs) > 0 {
		return &ProposeResult{
			Success: false,
			Error:   fmt.Sprintf("All %d file(s) failed to process", len(errs)),
			Errors:  errs,
		}
	}
	if len(accepted) == 0 {
		return &ProposeResult{Success: false, Error: "No changes provided"}
	}

	cs, err := t.changesets.Create("", accepted)
	if err != nil {
		return &ProposeResult{Success: false, Error: err.Error(), Errors: errs}
	}
	return &ProposeResult{
		Success:     true,
		ChangesetID: cs.ID,
		Files:       cs.FilePaths(),
		TotalFiles:  len(accepted),
		ExpiresAt:   cs.ExpiresAt.Format(time.RFC3339),
		Errors:      errs,
		Message:     fmt.Sprintf("Successfully proposed changeset with %d file(s). Awaiting user approval.", len(accepted)),
		Diffs:       diffs,
		Stats:       stats,
	}
}

// currentContent resolves what the entry would replace. New files and new
// areas resolve to empty content.
func (t *Toolset) currentContent(ctx context.Context, ch ChangeRequest) (string, error) {
	kind, id := configstore.ParseVirtual(ch.FilePath)
	switch kind {
	case configstore.KindDashboard:
		current := t.dashboardYAML(ctx)
		if current == "" {
			return "", errors.New("Could not retrieve current Lovelace config")
		}
		return current, nil

	case configstore.KindDevice:
		rec := findRecord(t.listDevices(ctx), "id", id)
		if rec == nil {
			return "", fmt.Errorf("Device %s not found in registry", id)
		}
		return prettyJSON(rec)

	case configstore.KindEntity:
		rec := findRecord(t.listEntities(ctx), "entity_id", id)
		if rec == nil {
			return "", fmt.Errorf("Entity %s not found in registry", id)
		}
		return prettyJSON(rec)

	case configstore.KindArea:
		if rec := findRecord(t.listAreas(ctx), "area_id", id); rec != nil {
			return prettyJSON(rec)
		}
		var proposed homeassistant.AreaUpdate
		if err := json.Unmarshal([]byte(ch.NewContent), &proposed); err != nil {
			return "", fmt.Errorf("Invalid JSON in new_content: %v", err)
		}
		if !proposed.HasName() {
			return "", errors.New("Cannot create area: 'name' field is required")
		}
		t.log.Info("area will be created", "area_id", id, "name", *proposed.Name)
		return "{}", nil

	default:
		current, found, err := t.store.ReadRawOptional(ctx, ch.FilePath)
		if err != nil {
			return "", err
		}
		if !found {
			t.log.Info("file will be created", "path", ch.FilePath)
		}
		return current, nil
	}
}

func findRecord(recs []homeassistant.Record, key, id string) homeassistant.Record {
	for _, r := range recs {
		if r.String(key) == id {
			return r
		}
	}
	return nil
}

// validateSyntax parses content as JSON for .json paths and as YAML
// otherwise. Every YAML document of a stream is checked.
func validateSyntax(path, content string) error {
	if strings.HasSuffix(path, ".json") {
		var v any
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return fmt.Errorf("Invalid JSON in new_content: %v", err)
		}
		return nil
	}

	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("Invalid YAML in new_content: %v", err)
		}
	}
}
