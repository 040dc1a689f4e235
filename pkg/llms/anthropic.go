package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/httpclient"
	"github.com/we11as22/deepresearch/pkg/observability"
	"github.com/we11as22/deepresearch/pkg/protocol"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"

	// structuredOutputTool is the forced tool used to obtain
	// schema-constrained output, since the messages API has no native
	// response_format.
	structuredOutputTool = "record_response"
)

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	cfg        *config.LLMConfig
	httpClient *httpclient.Client
}

func NewAnthropicProvider(cfg *config.LLMConfig) *AnthropicProvider {
	return &AnthropicProvider{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	ToolChoice  map[string]any     `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string         `json:"role"`
	Content []antContentIn `json:"content"`
}

type antContentIn struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) Generate(ctx context.Context, messages []protocol.Message, tools []ToolDefinition) (*Response, error) {
	req := p.buildRequest(messages)
	for _, tool := range tools {
		req.Tools = append(req.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}
	return p.complete(ctx, req, "")
}

// GenerateStructured forces a single recording tool whose input schema is
// the requested output schema; the tool input becomes the response text.
func (p *AnthropicProvider) GenerateStructured(ctx context.Context, messages []protocol.Message, cfg *StructuredOutputConfig) (*Response, error) {
	req := p.buildRequest(messages)

	schema := map[string]any{"type": "object"}
	if cfg != nil && cfg.Schema != nil {
		schema = cfg.Schema
	}
	req.Tools = []anthropicTool{{
		Name:        structuredOutputTool,
		Description: "Record the final structured response.",
		InputSchema: schema,
	}}
	req.ToolChoice = map[string]any{"type": "tool", "name": structuredOutputTool}

	return p.complete(ctx, req, structuredOutputTool)
}

func (p *AnthropicProvider) complete(ctx context.Context, req anthropicRequest, extractTool string) (*Response, error) {
	startTime := time.Now()
	metrics := observability.GetGlobalMetrics()

	response, err := p.makeRequest(ctx, req)
	duration := time.Since(startTime)
	if err != nil {
		metrics.RecordLLMCall(p.cfg.Model, duration, 0, 0, err)
		return nil, err
	}
	if response.Error != nil {
		apiErr := fmt.Errorf("Anthropic API error: %s", response.Error.Message)
		metrics.RecordLLMCall(p.cfg.Model, duration, 0, 0, apiErr)
		return nil, apiErr
	}

	out := &Response{Usage: Usage{
		PromptTokens:     response.Usage.InputTokens,
		CompletionTokens: response.Usage.OutputTokens,
		TotalTokens:      response.Usage.InputTokens + response.Usage.OutputTokens,
	}}

	for _, block := range response.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			if extractTool != "" && block.Name == extractTool {
				data, marshalErr := json.Marshal(block.Input)
				if marshalErr != nil {
					return nil, fmt.Errorf("marshal structured tool input: %w", marshalErr)
				}
				out.Text = string(data)
				continue
			}
			call := protocol.ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input}
			call.EnsureID()
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}

	metrics.RecordLLMCall(p.cfg.Model, duration, response.Usage.InputTokens, response.Usage.OutputTokens, nil)
	return out, nil
}

func (p *AnthropicProvider) ModelName() string { return p.cfg.Model }

func (p *AnthropicProvider) Close() error { return nil }

// buildRequest converts engine messages to the messages-API shape: system
// prompts move to the system field, tool results become tool_result blocks
// on a user turn.
func (p *AnthropicProvider) buildRequest(messages []protocol.Message) anthropicRequest {
	req := anthropicRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}

	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleSystem:
			if req.System != "" {
				req.System += "\n\n"
			}
			req.System += msg.Content

		case protocol.RoleUser:
			req.Messages = append(req.Messages, anthropicMessage{
				Role:    "user",
				Content: []antContentIn{{Type: "text", Text: msg.Content}},
			})

		case protocol.RoleAssistant:
			content := []antContentIn{}
			if msg.Content != "" {
				content = append(content, antContentIn{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, antContentIn{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Arguments,
				})
			}
			req.Messages = append(req.Messages, anthropicMessage{Role: "assistant", Content: content})

		case protocol.RoleTool:
			req.Messages = append(req.Messages, anthropicMessage{
				Role: "user",
				Content: []antContentIn{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		}
	}

	return req
}

func (p *AnthropicProvider) makeRequest(ctx context.Context, request anthropicRequest) (*anthropicResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("HTTP request failed: no response received")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &response, nil
}
