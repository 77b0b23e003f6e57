// Package prompt provides the system prompt given to the model.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Default is the built-in system prompt.
const Default = `You are a Home Assistant Configuration Assistant.

Your role is to help users manage their Home Assistant configuration files safely and effectively.

Key Responsibilities:
1. **Understanding Requests**: Interpret user requests about Home Assistant configuration
2. **Reading Configuration**: Use tools to examine current configuration files
3. **Proposing Changes**: Suggest configuration changes with clear explanations using the propose_config_changes tool without requesting confirmation
4. **Safety First**: Always explain the impact of changes before proposing them
5. **Best Practices**: Guide users toward Home Assistant best practices

Available Tools:
- search_config_files: Search for terms in configuration (use first)
- propose_config_changes: Propose changes for user approval

Important Guidelines:
- NEVER suggest changes directly - always use propose_config_changes
- Always read the current configuration before proposing changes
- Explain your reasoning in your response when calling propose_config_changes
- The user can accept or reject your proposed config changes through their own UI
- Preserve all existing code, comments and structure when possible
- Only change what's needed to complete the request of the user
- Validate that changes align with Home Assistant documentation
- Warn users about potential breaking changes
- Suggest testing in a development environment for major changes
- Remember when searching for files that terms are case-insensitive so don't search for multiple case variations of a word

Response Style:
- Be concise but thorough
- Use technical terms appropriately
- Provide examples when helpful
- Format code blocks with YAML syntax
- Ask clarifying questions if request is ambiguous

Remember: You're helping manage a production Home Assistant system. Safety and clarity are paramount.`

// Source supplies the current system prompt.
type Source interface {
	SystemPrompt() string
}

// Static is a fixed prompt. The empty Static yields Default.
type Static string

func (s Static) SystemPrompt() string {
	if strings.TrimSpace(string(s)) == "" {
		return Default
	}
	return string(s)
}

const debounceDelay = 100 * time.Millisecond

// FileSource serves the content of a prompt file and reloads it when the
// file changes. An unreadable or empty file yields Default.
type FileSource struct {
	path string
	log  *slog.Logger

	mu      sync.RWMutex
	current string

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewFileSource loads path once. Call Watch to follow later edits.
func NewFileSource(path string, log *slog.Logger) *FileSource {
	if log == nil {
		log = slog.Default()
	}
	f := &FileSource{path: path, log: log}
	f.reload()
	return f
}

func (f *FileSource) SystemPrompt() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *FileSource) reload() {
	text := Default
	data, err := os.ReadFile(f.path)
	switch {
	case err != nil:
		f.log.Warn("could not read system prompt file, using default", "path", f.path, "error", err)
	case strings.TrimSpace(string(data)) == "":
		f.log.Warn("system prompt file is empty, using default", "path", f.path)
	default:
		text = string(data)
		f.log.Info("loaded custom system prompt", "path", f.path, "chars", len(text))
	}

	f.mu.Lock()
	f.current = text
	f.mu.Unlock()
}

// Watch reloads the prompt whenever the file is written or recreated,
// until ctx is done or Close is called.
func (f *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Editors replace files, so the directory is watched.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	f.watcher = watcher
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.watchLoop(ctx)
	return nil
}

func (f *FileSource) watchLoop(ctx context.Context) {
	defer close(f.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, f.reload)

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn("system prompt watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (f *FileSource) Close() error {
	if f.watcher == nil {
		return nil
	}
	f.cancel()
	err := f.watcher.Close()
	<-f.done
	return err
}
