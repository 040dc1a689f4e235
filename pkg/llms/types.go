// Package llms provides the LLM provider contract and the HTTP-backed
// OpenAI-compatible and Anthropic implementations.
//
// Providers are stateless per call; concurrent calls are permitted.
package llms

import (
	"context"
	"strings"

	"github.com/we11as22/deepresearch/pkg/protocol"
)

// ToolDefinition describes one tool for LLM binding.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across calls.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the result of one LLM call. ToolCalls preserve the provider's
// call ids verbatim.
type Response struct {
	Text      string
	ToolCalls []protocol.ToolCall
	Usage     Usage
}

// StructuredOutputConfig requests schema-constrained JSON output.
type StructuredOutputConfig struct {
	// Name labels the schema for providers that require one.
	Name string

	// Schema is a JSON-schema document as a generic map.
	Schema map[string]any
}

// Provider is the LLM contract consumed by the engine.
type Provider interface {
	// Generate invokes the model with optional tool bindings.
	Generate(ctx context.Context, messages []protocol.Message, tools []ToolDefinition) (*Response, error)

	// GenerateStructured invokes the model with a response schema; the
	// returned text is a JSON document conforming to it.
	GenerateStructured(ctx context.Context, messages []protocol.Message, cfg *StructuredOutputConfig) (*Response, error)

	// ModelName reports the configured model identifier.
	ModelName() string

	Close() error
}

// IsQuotaError reports whether the error looks like a quota or auth failure
// that should surface a user-visible message rather than a retry.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"quota", "insufficient_quota", "billing", "invalid api key", "authentication", "status 401", "status 403"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
