// Package protocol defines the chat message and tool-call types exchanged
// between the engine and LLM providers.
//
// Tool-result messages carry the ToolCallID of the assistant tool call they
// answer. Providers must preserve that id verbatim across a turn so calls
// can be matched to their responses.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation emitted by the LLM.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// EnsureID assigns a generated id when the provider omitted one.
func (tc *ToolCall) EnsureID() {
	if tc.ID == "" {
		tc.ID = "call_" + uuid.NewString()
	}
}

// ArgumentsJSON renders the call arguments as compact JSON.
func (tc *ToolCall) ArgumentsJSON() string {
	if len(tc.Arguments) == 0 {
		return "{}"
	}
	data, err := json.Marshal(tc.Arguments)
	if err != nil {
		return fmt.Sprintf(`{"error":"unserializable arguments: %v"}`, err)
	}
	return string(data)
}

// Message is one turn in a conversation.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-result message to the assistant tool call it
	// answers. Set only when Role is RoleTool.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool-result messages.
	Name string `json:"name,omitempty"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string, toolCalls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolResultMessage builds the response message for a tool call, carrying
// the call id verbatim.
func ToolResultMessage(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

// LastUserContent returns the content of the most recent user message, or
// the empty string when the transcript has none.
func LastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
