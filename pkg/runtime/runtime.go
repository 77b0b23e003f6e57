// Package runtime runs the streaming conversation loop between the user, the
// model and the configuration tools, and applies approved changesets.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/yinzara/ha-config-ai-agent/pkg/llm"
	"github.com/yinzara/ha-config-ai-agent/pkg/prompt"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

// MaxIterationsMessage is reported when the loop hits its iteration cap.
const MaxIterationsMessage = "Maximum iteration limit reached. Please try breaking down your request."

type Config struct {
	Model         string
	MaxIterations int
	// Temperature is omitted from model requests when nil.
	Temperature *float64
}

var DefaultConfig = Config{
	MaxIterations: 10,
}

// LLMGateway streams model turns.
type LLMGateway interface {
	Configured() bool
	Stream(ctx context.Context, req *llm.ProviderRequest) (llm.Stream, error)
}

// ToolExecutor advertises and runs tools. Execute never fails; problems are
// part of the returned result.
type ToolExecutor interface {
	Tools() []types.Tool
	Execute(ctx context.Context, call types.ToolCall) any
}

// ChatRequest is one user turn with the conversation so far.
type ChatRequest struct {
	Message string          `json:"message"`
	History []types.Message `json:"conversation_history,omitempty"`
}

type Runtime struct {
	config Config
	llm    LLMGateway
	tools  ToolExecutor
	prompt prompt.Source
	log    *slog.Logger
}

func New(cfg Config, gateway LLMGateway, tools ToolExecutor, source prompt.Source, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig.MaxIterations
	}
	if source == nil {
		source = prompt.Static("")
	}
	return &Runtime{
		config: cfg,
		llm:    gateway,
		tools:  tools,
		prompt: source,
		log:    logger,
	}
}

// Configured reports whether a model provider is available.
func (r *Runtime) Configured() bool {
	return r.llm != nil && r.llm.Configured()
}

// Chat runs one user turn and returns its event stream. The channel is
// closed after the last event. When ctx is cancelled the remaining events
// are dropped; a tool that is already running still completes.
func (r *Runtime) Chat(ctx context.Context, req ChatRequest) <-chan types.StreamEvent {
	events := make(chan types.StreamEvent, 16)
	go func() {
		defer close(events)
		emit := func(ev types.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		r.run(ctx, req, emit)
	}()
	return events
}

type emitFunc func(types.StreamEvent) bool

type turn struct {
	content   string
	calls     []types.ToolCall
	announced bool
}

func (r *Runtime) run(ctx context.Context, req ChatRequest, emit emitFunc) {
	if !r.Configured() {
		emit(types.ErrorEvent{Error: llm.ErrNotConfigured.Error()})
		return
	}

	r.log.Info("chat started", "message_chars", len(req.Message), "history", len(req.History))

	messages := make([]types.Message, 0, len(req.History)+2)
	messages = append(messages, types.Message{Role: types.RoleSystem, Content: r.prompt.SystemPrompt()})
	for _, m := range req.History {
		messages = append(messages, m.Clone())
	}
	messages = append(messages, types.Message{Role: types.RoleUser, Content: req.Message})

	var (
		produced  []types.Message
		estimated int
	)
	for iteration := 1; iteration <= r.config.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			r.log.Info("chat cancelled", "iteration", iteration)
			return
		}

		provReq := &llm.ProviderRequest{
			Model:       r.config.Model,
			Messages:    messages,
			Tools:       r.tools.Tools(),
			ToolChoice:  llm.ToolChoiceAuto,
			Temperature: r.config.Temperature,
		}
		if iteration == 1 {
			estimated = llm.EstimateRequestTokens(provReq)
			r.log.Debug("estimated prompt size", "tokens", estimated)
		}

		r.log.Info("calling model", "iteration", iteration)
		t, err := r.streamTurn(ctx, provReq, iteration, emit)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("chat cancelled", "iteration", iteration)
				return
			}
			r.log.Error("chat failed", "iteration", iteration, "error", err)
			emit(types.ErrorEvent{Error: err.Error()})
			return
		}

		if len(t.calls) == 0 {
			r.log.Info("final response received", "iteration", iteration)
			final := types.Message{Role: types.RoleAssistant, Content: t.content}
			produced = append(produced, final)
			if !emit(types.MessageCompleteEvent{Message: final, Iteration: iteration}) {
				return
			}
			emit(types.CompleteEvent{Messages: produced, Iterations: iteration, EstimatedPromptTokens: estimated})
			return
		}

		r.log.Info("processing tool calls", "iteration", iteration, "count", len(t.calls))
		assistant := types.Message{Role: types.RoleAssistant, Content: t.content, ToolCalls: t.calls}
		messages = append(messages, assistant)
		produced = append(produced, assistant)

		if !t.announced {
			if !emit(types.ToolCallEvent{ToolCalls: t.calls, Iteration: iteration}) {
				return
			}
		}

		for _, call := range t.calls {
			msg, ok := r.runTool(ctx, call, iteration, emit)
			messages = append(messages, msg)
			produced = append(produced, msg)
			if !ok {
				return
			}
		}
	}

	r.log.Warn("hit max iterations, stopping", "max_iterations", r.config.MaxIterations)
	if !emit(types.ErrorEvent{Error: MaxIterationsMessage}) {
		return
	}
	emit(types.CompleteEvent{Messages: produced, Iterations: r.config.MaxIterations, EstimatedPromptTokens: estimated})
}

// streamTurn consumes one model response, emitting tokens as they arrive
// and announcing tool calls as soon as one is named.
func (r *Runtime) streamTurn(ctx context.Context, req *llm.ProviderRequest, iteration int, emit emitFunc) (*turn, error) {
	stream, err := r.llm.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	t := &turn{}
	acc := NewToolCallAccumulator()
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if chunk.Content != "" {
			t.content += chunk.Content
			emit(types.TokenEvent{Content: chunk.Content, Iteration: iteration})
		}

		if len(chunk.ToolCalls) > 0 {
			for _, d := range chunk.ToolCalls {
				acc.Add(d)
			}
			if !t.announced && acc.HasNamed() {
				emit(types.ToolCallEvent{ToolCalls: acc.Calls(), Iteration: iteration})
				t.announced = true
			}
		}

		if chunk.FinishReason != "" {
			break
		}
	}

	t.calls = acc.Calls()
	for i := range t.calls {
		if t.calls[i].ID == "" {
			t.calls[i].ID = types.GenerateID("call")
		}
	}
	return t, nil
}

// runTool executes one call and returns the tool message for the history.
// ok is false once the consumer is gone.
func (r *Runtime) runTool(ctx context.Context, call types.ToolCall, iteration int, emit emitFunc) (types.Message, bool) {
	name := call.Function.Name
	r.log.Info("calling tool", "iteration", iteration, "tool", name, "tool_call_id", call.ID)

	ok := emit(types.ToolStartEvent{
		ToolCallID: call.ID,
		Function:   name,
		Arguments:  types.RawArguments(call.Function.Arguments),
		Iteration:  iteration,
	})

	// Tools run to completion even when the client went away.
	result := r.tools.Execute(context.WithoutCancel(ctx), call)

	content, err := json.Marshal(result)
	if err != nil {
		content = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, "encode tool result: "+err.Error()))
	}
	msg := types.Message{
		Role:       types.RoleTool,
		Content:    string(content),
		ToolCallID: call.ID,
		Name:       name,
	}
	if !ok {
		return msg, false
	}

	ok = emit(types.ToolResultEvent{
		ToolCallID: call.ID,
		Function:   name,
		Result:     json.RawMessage(content),
		Iteration:  iteration,
	})
	return msg, ok
}
