package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

// Registry holds tool definitions together with their compiled parameter
// schemas.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]types.Tool
	schemas map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]types.Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. Its parameter schema must compile.
func (r *Registry) Register(tool types.Tool) error {
	schema, err := compileSchema(tool)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	if schema != nil {
		r.schemas[tool.Name] = schema
	}
	return nil
}

func (r *Registry) Get(name string) (types.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []types.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]types.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Validate checks decoded arguments against the tool's parameter schema.
func (r *Registry) Validate(name string, args any) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()
	if schema == nil {
		return nil
	}
	return schema.Validate(args)
}

func compileSchema(tool types.Tool) (*jsonschema.Schema, error) {
	if len(tool.Parameters) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(tool.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal schema of %s: %w", tool.Name, err)
	}

	url := "mem://tools/" + tool.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema of %s: %w", tool.Name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema of %s: %w", tool.Name, err)
	}
	return schema, nil
}
