package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

// Handler implements a tool. args is the raw JSON argument object; the
// returned value is serialized as the tool result.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// ArgumentErrorFunc builds the message returned to the model when a call's
// arguments do not parse or do not match the schema.
type ArgumentErrorFunc func(raw string, err error) string

// Failure is the result of a tool call that did not reach a handler or
// whose handler returned an error.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func failure(format string, args ...any) Failure {
	return Failure{Success: false, Error: fmt.Sprintf(format, args...)}
}

type Executor struct {
	registry  *Registry
	handlers  map[string]Handler
	argErrors map[string]ArgumentErrorFunc
	log       *slog.Logger
}

func NewExecutor(registry *Registry, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		registry:  registry,
		handlers:  make(map[string]Handler),
		argErrors: make(map[string]ArgumentErrorFunc),
		log:       log,
	}
}

func (e *Executor) RegisterHandler(name string, handler Handler) {
	e.handlers[name] = handler
}

// OnArgumentError sets the message produced for malformed arguments of name.
func (e *Executor) OnArgumentError(name string, fn ArgumentErrorFunc) {
	e.argErrors[name] = fn
}

// Tools returns the definitions offered to the model.
func (e *Executor) Tools() []types.Tool {
	return e.registry.List()
}

// Execute runs one tool call. It never fails: every problem is reported as
// a Failure result so the model can react to it.
func (e *Executor) Execute(ctx context.Context, call types.ToolCall) any {
	name := call.Function.Name

	if _, ok := e.registry.Get(name); !ok {
		e.log.Warn("unknown tool requested", "tool", name)
		return failure("Unknown tool: %s", name)
	}
	handler, ok := e.handlers[name]
	if !ok {
		return failure("Unknown tool: %s", name)
	}

	raw := call.Function.Arguments
	if raw == "" {
		raw = "{}"
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return e.argumentFailure(name, call.Function.Arguments, fmt.Errorf("invalid JSON arguments: %w", err))
	}
	if err := e.registry.Validate(name, decoded); err != nil {
		return e.argumentFailure(name, call.Function.Arguments, err)
	}

	e.log.Debug("executing tool", "tool", name, "tool_call_id", call.ID)
	result, err := handler(ctx, json.RawMessage(raw))
	if err != nil {
		e.log.Error("tool failed", "tool", name, "error", err)
		return failure("%s", err.Error())
	}
	return result
}

func (e *Executor) argumentFailure(name, raw string, err error) Failure {
	e.log.Warn("rejected tool arguments", "tool", name, "error", err)
	if fn, ok := e.argErrors[name]; ok {
		return Failure{Success: false, Error: fn(raw, err)}
	}
	return failure("Invalid arguments for %s: %v", name, err)
}
