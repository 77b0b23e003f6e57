package tools

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yinzara/ha-config-ai-agent/pkg/configstore"
	"github.com/yinzara/ha-config-ai-agent/pkg/homeassistant"
)

const (
	excludedDir  = "custom_components"
	secretsFile  = "secrets.yaml"
	yamlFileGlob = "**/*.yaml"
)

// FileResult is one configuration resource returned by a search.
type FileResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Matches int    `json:"matches,omitempty"`
}

// SearchResult is the result of search_config_files.
type SearchResult struct {
	Success       bool         `json:"success"`
	Files         []FileResult `json:"files"`
	Count         int          `json:"count"`
	SearchPattern string       `json:"search_pattern,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// SearchConfigFiles returns configuration resources matching pattern.
//
// A pattern starting with "/" is a glob over real files relative to the
// configuration root and every hit reports one match. Any other non-empty
// pattern is a case-insensitive substring searched in every YAML file and
// registry resource; the dashboard is always included when the pattern is
// empty.
func (t *Toolset) SearchConfigFiles(ctx context.Context, pattern string) *SearchResult {
	t.log.Info("searching config files", "pattern", pattern)

	var (
		files []FileResult
		err   error
	)
	if strings.HasPrefix(pattern, "/") {
		files, err = t.globFiles(ctx, strings.TrimPrefix(pattern, "/"))
	} else {
		files, err = t.searchFiles(ctx, pattern)
	}
	if err != nil {
		t.log.Error("search failed", "pattern", pattern, "error", err)
		return &SearchResult{
			Success:       false,
			Files:         []FileResult{},
			Error:         "Error searching files: " + err.Error(),
			SearchPattern: pattern,
		}
	}

	t.log.Info("search finished", "pattern", pattern, "files", len(files))
	return &SearchResult{
		Success:       true,
		Files:         files,
		Count:         len(files),
		SearchPattern: pattern,
	}
}

func (t *Toolset) globFiles(ctx context.Context, glob string) ([]FileResult, error) {
	paths, err := t.walk(glob)
	if err != nil {
		return nil, err
	}
	files := []FileResult{}
	for _, rel := range paths {
		content, err := t.store.ReadRaw(ctx, rel)
		if err != nil {
			t.log.Warn("could not read file", "path", rel, "error", err)
			continue
		}
		files = append(files, FileResult{Path: rel, Content: content, Matches: 1})
	}
	return files, nil
}

func (t *Toolset) searchFiles(ctx context.Context, pattern string) ([]FileResult, error) {
	paths, err := t.walk(yamlFileGlob)
	if err != nil {
		return nil, err
	}

	files := []FileResult{}
	add := func(p, content string) {
		if pattern == "" {
			files = append(files, FileResult{Path: p, Content: content})
			return
		}
		if n := countMatches(content, pattern) + countMatches(p, pattern); n > 0 {
			files = append(files, FileResult{Path: p, Content: content, Matches: n})
		}
	}

	for _, rel := range paths {
		content, err := t.store.ReadRaw(ctx, rel)
		if err != nil {
			t.log.Warn("could not read file", "path", rel, "error", err)
			continue
		}
		add(rel, content)
	}

	if pattern != "" {
		t.addRecords(t.listDevices(ctx), "id", configstore.DevicePath, add)
		t.addRecords(t.listEntities(ctx), "entity_id", configstore.EntityPath, add)
		t.addRecords(t.listAreas(ctx), "area_id", configstore.AreaPath, add)
	}

	if dashboard := t.dashboardYAML(ctx); dashboard != "" {
		add(configstore.DashboardPath, dashboard)
	}
	return files, nil
}

func (t *Toolset) addRecords(recs []homeassistant.Record, idKey string, pathOf func(string) string, add func(p, content string)) {
	for _, rec := range recs {
		id := rec.String(idKey)
		if id == "" {
			id = "unknown"
		}
		content, err := prettyJSON(rec)
		if err != nil {
			t.log.Debug("could not render registry entry", "id", id, "error", err)
			continue
		}
		add(pathOf(id), content)
	}
}

// walk lists real files matching glob relative to the configuration root,
// sorted, with excluded paths removed.
func (t *Toolset) walk(glob string) ([]string, error) {
	root := t.store.ConfigDir()
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == excludedDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel := t.store.Rel(p)
		if excluded(rel) {
			return nil
		}
		if matchGlob(glob, rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func excluded(rel string) bool {
	if path.Base(rel) == secretsFile {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if part == excludedDir {
			return true
		}
	}
	return false
}

// matchGlob matches a slash-separated path against a glob where "**"
// spans any number of directories, including none.
func matchGlob(glob, name string) bool {
	return matchSegments(strings.Split(glob, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, parts []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(parts); i++ {
				if matchSegments(rest, parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		ok, err := path.Match(pat[0], parts[0])
		if err != nil || !ok {
			return false
		}
		pat, parts = pat[1:], parts[1:]
	}
	return len(parts) == 0
}

// countMatches counts case-insensitive, non-overlapping occurrences.
func countMatches(s, pattern string) int {
	if pattern == "" {
		return 0
	}
	return strings.Count(strings.ToLower(s), strings.ToLower(pattern))
}
