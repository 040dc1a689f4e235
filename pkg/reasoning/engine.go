// Package reasoning implements the tool-calling loop that drives every
// agent in the system: researcher workers, the supervisor and the simple
// search agent all run through the same Engine with different tool sets.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/tools"
)

// Config parameterizes a single Engine run.
type Config struct {
	SystemPrompt string
	UserPrompt   string

	// History is prepended between the system prompt and the user prompt.
	History []protocol.Message

	// MaxIterations bounds the tool loop. When exhausted the engine forces
	// one final tool-free completion and flags the transcript as degraded.
	MaxIterations int

	// TerminalTools end the run after their results are recorded. The
	// terminal call's result value becomes the transcript Terminal field.
	TerminalTools []string

	// ForcedFinishPrompt is sent on the forced final completion. A default
	// is used when empty.
	ForcedFinishPrompt string

	// OnIteration is invoked at the start of every loop iteration.
	OnIteration func(iteration int)

	// OnToolCall is invoked after every executed tool call with the
	// serialized result or error payload.
	OnToolCall func(call protocol.ToolCall, result string, err error)
}

// TerminalResult is the recorded outcome of a terminal tool call.
type TerminalResult struct {
	Tool      string
	Arguments map[string]any
	Result    any
}

// Transcript is the outcome of an Engine run.
type Transcript struct {
	// Messages is the full conversation including tool calls and results.
	Messages []protocol.Message

	// Text is the final assistant text. Empty when a terminal tool ended
	// the run without trailing text.
	Text string

	Iterations int
	Usage      llms.Usage

	// Terminal is set when a terminal tool ended the run.
	Terminal *TerminalResult

	// Degraded marks runs that exhausted MaxIterations and were forced to
	// finish without a terminal tool call.
	Degraded bool
}

// Engine runs the tool-calling loop against a provider and registry.
type Engine struct {
	llm      llms.Provider
	registry *tools.Registry
	logger   *slog.Logger
}

func NewEngine(llm llms.Provider, registry *tools.Registry) *Engine {
	return &Engine{llm: llm, registry: registry, logger: slog.Default()}
}

const defaultForcedFinishPrompt = "You have used all available steps. " +
	"Summarize what you have accomplished and provide your final answer now, without calling any tools."

// Run executes the loop until a terminal tool fires, the model stops
// calling tools, or MaxIterations is exhausted.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Transcript, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}

	messages := make([]protocol.Message, 0, len(cfg.History)+2)
	if cfg.SystemPrompt != "" {
		messages = append(messages, protocol.SystemMessage(cfg.SystemPrompt))
	}
	messages = append(messages, cfg.History...)
	if cfg.UserPrompt != "" {
		messages = append(messages, protocol.UserMessage(cfg.UserPrompt))
	}

	transcript := &Transcript{}
	defs := e.registry.Definitions()
	terminal := make(map[string]bool, len(cfg.TerminalTools))
	for _, name := range cfg.TerminalTools {
		terminal[name] = true
	}

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			transcript.Messages = messages
			return transcript, err
		}
		transcript.Iterations = iteration
		if cfg.OnIteration != nil {
			cfg.OnIteration(iteration)
		}

		resp, err := e.llm.Generate(ctx, messages, defs)
		if err != nil {
			transcript.Messages = messages
			return transcript, fmt.Errorf("llm generate (iteration %d): %w", iteration, err)
		}
		transcript.Usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			// Model answered in plain text. That is the final answer.
			messages = append(messages, protocol.AssistantMessage(resp.Text))
			transcript.Messages = messages
			transcript.Text = resp.Text
			return transcript, nil
		}

		messages = append(messages, protocol.AssistantMessage(resp.Text, resp.ToolCalls...))

		var terminalResult *TerminalResult
		for _, call := range resp.ToolCalls {
			result := e.executeCall(ctx, cfg, call)
			messages = append(messages, protocol.ToolResultMessage(call, result.payload))
			if terminal[call.Name] && result.err == nil && terminalResult == nil {
				terminalResult = &TerminalResult{
					Tool:      call.Name,
					Arguments: call.Arguments,
					Result:    result.value,
				}
			}
		}

		if terminalResult != nil {
			transcript.Messages = messages
			transcript.Text = resp.Text
			transcript.Terminal = terminalResult
			return transcript, nil
		}
	}

	// Out of iterations: force a tool-free completion so the run still
	// produces an answer.
	prompt := cfg.ForcedFinishPrompt
	if prompt == "" {
		prompt = defaultForcedFinishPrompt
	}
	messages = append(messages, protocol.UserMessage(prompt))

	resp, err := e.llm.Generate(ctx, messages, nil)
	if err != nil {
		transcript.Messages = messages
		return transcript, fmt.Errorf("forced finish: %w", err)
	}
	transcript.Usage.Add(resp.Usage)
	messages = append(messages, protocol.AssistantMessage(resp.Text))

	transcript.Messages = messages
	transcript.Text = resp.Text
	transcript.Degraded = true
	e.logger.Warn("agent run degraded: iteration budget exhausted",
		"max_iterations", cfg.MaxIterations)
	return transcript, nil
}

type callResult struct {
	value   any
	payload string
	err     error
}

// executeCall runs one tool call. Tool failures are fed back to the model
// as an error payload instead of aborting the run.
func (e *Engine) executeCall(ctx context.Context, cfg Config, call protocol.ToolCall) callResult {
	value, err := e.registry.Execute(ctx, call.Name, call.Arguments)

	var payload string
	if err != nil {
		payload = fmt.Sprintf(`{"error":%q}`, err.Error())
		e.logger.Debug("tool call failed", "tool", call.Name, "error", err)
	} else {
		payload = serializeResult(value)
	}

	if cfg.OnToolCall != nil {
		cfg.OnToolCall(call, payload, err)
	}
	return callResult{value: value, payload: payload, err: err}
}

func serializeResult(value any) string {
	switch v := value.(type) {
	case nil:
		return `{"ok":true}`
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf(`{"error":"unserializable result: %v"}`, err)
		}
		return string(data)
	}
}
