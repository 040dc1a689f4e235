package tools

import (
	"context"
	"fmt"
	"testing"
)

func echoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "Echoes its input.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			text, err := StringArg(args, "text")
			if err != nil {
				return nil, err
			}
			return map[string]any{"echoed": text}, nil
		},
	}
}

func TestRegistryExecute(t *testing.T) {
	registry := NewRegistry(echoTool())

	result, err := registry.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["echoed"] != "hi" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	registry := NewRegistry(echoTool())
	if _, err := registry.Execute(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	registry := NewRegistry(
		&Tool{Name: "zeta", Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }},
		&Tool{Name: "alpha", Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }},
	)
	defs := registry.Definitions()
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("definitions not sorted: %+v", defs)
	}
	if defs[0].Parameters == nil {
		t.Error("nil parameters should default to an empty object schema")
	}
}

func TestRegistryExecutePropagatesError(t *testing.T) {
	registry := NewRegistry(&Tool{
		Name: "fail",
		Handler: func(context.Context, map[string]any) (any, error) {
			return nil, fmt.Errorf("boom")
		},
	})
	if _, err := registry.Execute(context.Background(), "fail", nil); err == nil || err.Error() != "boom" {
		t.Errorf("expected boom error, got %v", err)
	}
}

func TestDecodeArgs(t *testing.T) {
	type addTodoArgs struct {
		Title    string   `json:"title"`
		Priority int      `json:"priority"`
		Tags     []string `json:"tags"`
	}
	// JSON numbers come through as float64
	got, err := DecodeArgs[addTodoArgs](map[string]any{
		"title":    "collect sources",
		"priority": float64(2),
		"tags":     []any{"web", "search"},
	})
	if err != nil {
		t.Fatalf("DecodeArgs failed: %v", err)
	}
	if got.Title != "collect sources" || got.Priority != 2 || len(got.Tags) != 2 {
		t.Errorf("unexpected decode: %+v", got)
	}
}

func TestStringSliceArgToleratesBareString(t *testing.T) {
	got, err := StringSliceArg(map[string]any{"urls": "https://example.com"}, "urls")
	if err != nil {
		t.Fatalf("StringSliceArg failed: %v", err)
	}
	if len(got) != 1 || got[0] != "https://example.com" {
		t.Errorf("unexpected slice: %v", got)
	}
}
