package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/httpclient"
	"github.com/we11as22/deepresearch/pkg/observability"
	"github.com/we11as22/deepresearch/pkg/protocol"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	cfg        *config.LLMConfig
	httpClient *httpclient.Client
}

func NewOpenAIProvider(cfg *config.LLMConfig) *OpenAIProvider {
	return &OpenAIProvider{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	Tools          []openAITool          `json:"tools,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage        `json:"usage"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []protocol.Message, tools []ToolDefinition) (*Response, error) {
	req := p.buildRequest(messages)
	req.Tools = convertOpenAITools(tools)
	return p.complete(ctx, req, false)
}

func (p *OpenAIProvider) GenerateStructured(ctx context.Context, messages []protocol.Message, cfg *StructuredOutputConfig) (*Response, error) {
	req := p.buildRequest(messages)
	if cfg != nil && cfg.Schema != nil {
		name := cfg.Name
		if name == "" {
			name = "response"
		}
		req.ResponseFormat = &openAIResponseFormat{
			Type:       "json_schema",
			JSONSchema: &openAIJSONSchema{Name: name, Schema: cfg.Schema, Strict: true},
		}
	} else {
		req.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return p.complete(ctx, req, true)
}

func (p *OpenAIProvider) complete(ctx context.Context, req openAIRequest, structured bool) (*Response, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("deepresearch.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.cfg.Model),
			attribute.String("provider", "openai"),
			attribute.Bool("structured", structured),
		),
	)
	defer span.End()

	response, err := p.makeRequest(ctx, req)
	duration := time.Since(startTime)
	metrics := observability.GetGlobalMetrics()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordLLMCall(p.cfg.Model, duration, 0, 0, err)
		return nil, err
	}
	if response.Error != nil {
		apiErr := fmt.Errorf("OpenAI API error: %s", response.Error.Message)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, response.Error.Message)
		metrics.RecordLLMCall(p.cfg.Model, duration, 0, 0, apiErr)
		return nil, apiErr
	}
	if len(response.Choices) == 0 {
		noChoiceErr := fmt.Errorf("no response choices returned")
		span.RecordError(noChoiceErr)
		metrics.RecordLLMCall(p.cfg.Model, duration, 0, 0, noChoiceErr)
		return nil, noChoiceErr
	}

	choice := response.Choices[0]
	toolCalls, err := parseOpenAIToolCalls(choice.Message.ToolCalls)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, response.Usage.PromptTokens),
		attribute.Int(observability.AttrLLMTokensOutput, response.Usage.CompletionTokens),
		attribute.Int("llm.tool_calls", len(toolCalls)),
	)
	span.SetStatus(codes.Ok, "success")
	metrics.RecordLLMCall(p.cfg.Model, duration, response.Usage.PromptTokens, response.Usage.CompletionTokens, nil)

	return &Response{
		Text:      choice.Message.Content,
		ToolCalls: toolCalls,
		Usage:     response.Usage,
	}, nil
}

func (p *OpenAIProvider) ModelName() string { return p.cfg.Model }

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) buildRequest(messages []protocol.Message) openAIRequest {
	converted := make([]openAIMessage, len(messages))
	for i, msg := range messages {
		om := openAIMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, tc := range msg.ToolCalls {
			call := openAIToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.ArgumentsJSON()
			om.ToolCalls = append(om.ToolCalls, call)
		}
		converted[i] = om
	}

	maxTokens := p.cfg.MaxTokens
	return openAIRequest{
		Model:       p.cfg.Model,
		Messages:    converted,
		MaxTokens:   &maxTokens,
		Temperature: p.cfg.Temperature,
	}
}

func convertOpenAITools(tools []ToolDefinition) []openAITool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openAITool, len(tools))
	for i, tool := range tools {
		result[i] = openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}
	}
	return result
}

func parseOpenAIToolCalls(openaiToolCalls []openAIToolCall) ([]protocol.ToolCall, error) {
	if len(openaiToolCalls) == 0 {
		return nil, nil
	}
	result := make([]protocol.ToolCall, len(openaiToolCalls))
	for i, tc := range openaiToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("parse tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		call := protocol.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
		call.EnsureID()
		result[i] = call
	}
	return result, nil
}

func parseOpenAIErrorBody(body []byte) *openAIError {
	if len(body) == 0 {
		return nil
	}
	var errorResp struct {
		Error openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return &errorResp.Error
	}
	return nil
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openAIRequest) (*openAIResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			if apiErr := parseOpenAIErrorBody(body); apiErr != nil {
				return nil, fmt.Errorf("API request failed with status %d: %s (type: %s)",
					resp.StatusCode, apiErr.Message, apiErr.Type)
			}
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

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &response, nil
}
