package tools

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/we11as22/deepresearch/pkg/llms"
)

// DecodeArgs maps raw tool-call arguments onto a typed struct. Numeric
// arguments arrive as float64 from JSON, so weak typing is enabled.
func DecodeArgs[T any](args map[string]any) (*T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("build argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return &out, nil
}

// SchemaFor reflects the JSON schema for a tool's argument struct.
func SchemaFor[T any]() map[string]any {
	return llms.SchemaFor[T]()
}

// StringArg fetches a required string argument.
func StringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, raw)
	}
	return s, nil
}

// StringSliceArg fetches a string-array argument, tolerating a bare string.
func StringSliceArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q must contain strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q must be a string array, got %T", key, raw)
	}
}
