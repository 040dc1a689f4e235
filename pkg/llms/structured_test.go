package llms

import (
	"context"
	"testing"

	"github.com/we11as22/deepresearch/pkg/protocol"
)

type samplePlan struct {
	Title string   `json:"title"`
	Steps []string `json:"steps"`
}

func TestSchemaFor(t *testing.T) {
	schema := SchemaFor[samplePlan]()
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected inlined properties, got %T", schema["properties"])
	}
	if _, ok := props["title"]; !ok {
		t.Error("schema missing title property")
	}
	if _, ok := props["steps"]; !ok {
		t.Error("schema missing steps property")
	}
	if _, ok := schema["$schema"]; ok {
		t.Error("schema meta key should be stripped")
	}
}

func TestStructuredParsesFirstAttempt(t *testing.T) {
	provider := NewScriptedProvider(TextResponse(`{"title":"quantum","steps":["a","b"]}`))

	plan, resp, err := Structured[samplePlan](context.Background(), provider,
		[]protocol.Message{protocol.UserMessage("plan it")}, "research_plan", 2)
	if err != nil {
		t.Fatalf("Structured failed: %v", err)
	}
	if plan.Title != "quantum" || len(plan.Steps) != 2 {
		t.Errorf("unexpected plan: %+v", plan)
	}
	if resp.Usage.TotalTokens == 0 {
		t.Error("usage not propagated")
	}
	if len(provider.Calls) != 1 {
		t.Errorf("expected 1 call, got %d", len(provider.Calls))
	}
}

func TestStructuredRetriesOnInvalidJSON(t *testing.T) {
	provider := NewScriptedProvider(
		TextResponse("not json at all"),
		TextResponse("```json\n{\"title\":\"fixed\",\"steps\":[]}\n```"),
	)

	plan, resp, err := Structured[samplePlan](context.Background(), provider,
		[]protocol.Message{protocol.UserMessage("plan it")}, "research_plan", 2)
	if err != nil {
		t.Fatalf("Structured failed: %v", err)
	}
	if plan.Title != "fixed" {
		t.Errorf("unexpected plan: %+v", plan)
	}
	if len(provider.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(provider.Calls))
	}
	retryMessages := provider.Calls[1]
	if len(retryMessages) != 3 {
		t.Fatalf("retry should append assistant and user turns, got %d messages", len(retryMessages))
	}
	// accumulated usage across both attempts
	if resp.Usage.TotalTokens != 40 {
		t.Errorf("expected accumulated usage 40, got %d", resp.Usage.TotalTokens)
	}
}

func TestStructuredExhaustsRetries(t *testing.T) {
	provider := NewScriptedProvider(
		TextResponse("garbage"),
		TextResponse("still garbage"),
	)

	_, _, err := Structured[samplePlan](context.Background(), provider,
		[]protocol.Message{protocol.UserMessage("plan it")}, "research_plan", 1)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here is the plan: {\"a\":1} done", `{"a":1}`},
		{"[1,2,3]", `[1,2,3]`},
	}
	for _, tc := range cases {
		if got := extractJSON(tc.in); got != tc.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
