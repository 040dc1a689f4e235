package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/we11as22/deepresearch/pkg/protocol"
)

// SchemaFor reflects a JSON schema for T suitable for structured output.
// Definitions are inlined and additionalProperties is disallowed, which is
// what strict json_schema mode requires.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
	}
	var zero T
	schema := reflector.Reflect(&zero)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// Structured asks the provider for output conforming to T's schema and
// unmarshals it. On parse failure it re-asks with the parse error appended,
// up to retries additional attempts.
func Structured[T any](ctx context.Context, provider Provider, messages []protocol.Message, name string, retries int) (*T, *Response, error) {
	cfg := &StructuredOutputConfig{Name: name, Schema: SchemaFor[T]()}

	var usage Usage
	var lastErr error
	attempts := messages

	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := provider.GenerateStructured(ctx, attempts, cfg)
		if err != nil {
			return nil, nil, err
		}
		usage.Add(resp.Usage)
		resp.Usage = usage

		var result T
		if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &result); err != nil {
			lastErr = fmt.Errorf("parse structured response %q: %w", name, err)
			attempts = append(attempts,
				protocol.AssistantMessage(resp.Text),
				protocol.UserMessage(fmt.Sprintf("Your previous response was not valid JSON for the requested schema (%v). Respond again with only the JSON object.", err)),
			)
			continue
		}
		return &result, resp, nil
	}

	return nil, nil, lastErr
}

// extractJSON trims markdown fences and surrounding prose that models
// sometimes wrap around JSON output.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	end := strings.LastIndexAny(text, "}]")
	if end < start {
		return text
	}
	return text[start : end+1]
}
