package llms

import (
	"context"
	"fmt"
	"sync"

	"github.com/we11as22/deepresearch/pkg/protocol"
)

// ScriptedProvider replays a fixed sequence of responses. It exists for
// tests of code that drives a Provider without a live API.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []*Response
	index     int

	// Calls records the message history of every Generate and
	// GenerateStructured invocation, in order.
	Calls [][]protocol.Message
}

func NewScriptedProvider(responses ...*Response) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// TextResponse is a convenience constructor for a plain text response.
func TextResponse(text string) *Response {
	return &Response{Text: text, Usage: Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}}
}

// ToolCallResponse is a convenience constructor for a tool-calling response.
func ToolCallResponse(calls ...protocol.ToolCall) *Response {
	for i := range calls {
		calls[i].EnsureID()
	}
	return &Response{ToolCalls: calls, Usage: Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}}
}

func (p *ScriptedProvider) next(messages []protocol.Message) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := make([]protocol.Message, len(messages))
	copy(copied, messages)
	p.Calls = append(p.Calls, copied)
	if p.index >= len(p.responses) {
		return nil, fmt.Errorf("scripted provider exhausted after %d responses", len(p.responses))
	}
	resp := p.responses[p.index]
	p.index++
	return resp, nil
}

func (p *ScriptedProvider) Generate(ctx context.Context, messages []protocol.Message, _ []ToolDefinition) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.next(messages)
}

func (p *ScriptedProvider) GenerateStructured(ctx context.Context, messages []protocol.Message, _ *StructuredOutputConfig) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.next(messages)
}

func (p *ScriptedProvider) ModelName() string { return "scripted" }

func (p *ScriptedProvider) Close() error { return nil }
