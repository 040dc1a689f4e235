package searchsvc

import (
	"context"
	"strings"
	"testing"

	"github.com/we11as22/deepresearch/pkg/agents"
	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/session"
)

func testResearchConfig() *config.ResearchConfig {
	return &config.ResearchConfig{
		NumAgents:            3,
		DefaultMaxIterations: 3,
		Speed:                config.ModeBudget{MaxIterations: 1, MaxConcurrent: 2},
		Balanced:             config.ModeBudget{MaxIterations: 4, MaxConcurrent: 3},
		Quality:              config.ModeBudget{MaxIterations: 8, MaxConcurrent: 3},
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"What is quantum computing?":          "english",
		"Что такое квантовые вычисления?":     "russian",
		"量子计算的最新进展是什么":                       "chinese",
		"量子コンピュータについて教えて":                    "japanese",
		"양자 컴퓨팅이란 무엇인가":                      "korean",
		"":                                    "english",
		"42 + 17 = ?":                         "english",
		"Compare AWS vs GCP pricing for 2024": "english",
	}
	for text, want := range cases {
		if got := DetectLanguage(text); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestClassifierStructuredCall(t *testing.T) {
	provider := llms.NewScriptedProvider(
		llms.TextResponse(`{"mode": "deep", "standalone_query": "quantum annealing progress 2024", "reasoning": "broad topic"}`),
	)
	c := NewClassifier(provider)

	result, usage := c.Classify(context.Background(), "what about its progress?", []protocol.Message{
		protocol.UserMessage("tell me about quantum annealing"),
	})
	if result.SessionMode() != session.ModeDeepSearch {
		t.Errorf("mode = %s, want deep_search", result.SessionMode())
	}
	if result.StandaloneQuery != "quantum annealing progress 2024" {
		t.Errorf("standalone query not rewritten: %q", result.StandaloneQuery)
	}
	if usage.TotalTokens == 0 {
		t.Error("usage must be accounted")
	}
}

func TestClassifierFallsBackToWeb(t *testing.T) {
	// Exhausted provider makes every call fail.
	c := NewClassifier(llms.NewScriptedProvider())

	result, _ := c.Classify(context.Background(), "latest Go release", nil)
	if result.SessionMode() != session.ModeWeb {
		t.Errorf("fallback mode = %s, want web", result.SessionMode())
	}
	if result.StandaloneQuery != "latest Go release" {
		t.Errorf("fallback must pass the query through, got %q", result.StandaloneQuery)
	}
}

func TestRunBalancedRequiresPreamble(t *testing.T) {
	provider := llms.NewScriptedProvider(
		llms.ToolCallResponse(protocol.ToolCall{Name: "__reasoning_preamble", Arguments: map[string]any{
			"reasoning": "check release notes first",
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "done", Arguments: map[string]any{
			"summary": "release notes cover it",
		}}),
		llms.TextResponse("Go 1.24 ships generics improvements."),
	)
	svc := New(provider, nil, nil, testResearchConfig())

	answer, err := svc.Run(context.Background(), "Go 1.24 changes", session.ModeDeepSearch, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if answer.Report != "Go 1.24 ships generics improvements." {
		t.Errorf("unexpected report: %q", answer.Report)
	}
	if answer.Language != "english" {
		t.Errorf("language = %q", answer.Language)
	}
	if answer.Degraded {
		t.Error("run with a done call must not be degraded")
	}

	system := provider.Calls[0][0]
	if system.Role != protocol.RoleSystem || !strings.Contains(system.Content, "__reasoning_preamble") {
		t.Error("balanced mode must mandate the reasoning preamble in the system prompt")
	}
}

func TestRunSpeedBudgetIsOneIteration(t *testing.T) {
	// One tool-free answer: the speed budget of 1 iteration means the
	// engine accepts plain text immediately.
	provider := llms.NewScriptedProvider(
		llms.TextResponse("notes: Paris."),
		llms.TextResponse("Paris is the capital of France."),
	)
	svc := New(provider, nil, nil, testResearchConfig())

	answer, err := svc.Run(context.Background(), "capital of France", session.ModeWeb, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(answer.Report, "Paris is the capital") {
		t.Errorf("unexpected report: %q", answer.Report)
	}
	if len(provider.Calls) != 2 {
		t.Errorf("expected one gather call and one writer call, got %d", len(provider.Calls))
	}
}

func TestSourceBookNumbersAndDedupes(t *testing.T) {
	book := newSourceBook()
	first := book.add(agents.Source{URL: "https://a.example/page"})
	second := book.add(agents.Source{URL: "https://b.example"})
	again := book.add(agents.Source{URL: "https://a.example/page/"})

	if first != 1 || second != 2 {
		t.Errorf("numbering wrong: %d %d", first, second)
	}
	if again != 1 {
		t.Errorf("re-added URL must keep its number, got %d", again)
	}
	sources, _ := book.snapshot()
	if len(sources) != 2 {
		t.Errorf("expected 2 sources, got %d", len(sources))
	}
}

func TestEnsureSourcesSection(t *testing.T) {
	sources := []agents.Source{
		{URL: "https://a.example", Title: "A"},
		{URL: "https://b.example", Title: "B"},
		{URL: "https://c.example", Title: "C"},
	}

	out := ensureSourcesSection("Fact one [1]. Fact two [3].", sources)
	if !strings.Contains(out, "## Sources") {
		t.Fatal("missing Sources section")
	}
	if !strings.Contains(out, "[1] [A](https://a.example)") || !strings.Contains(out, "[3] [C](https://c.example)") {
		t.Errorf("cited sources missing:\n%s", out)
	}
	if strings.Contains(out, "[2] [B]") {
		t.Error("uncited source must not be listed")
	}

	already := "Answer [1].\n\n## Sources\n\n[1] [A](https://a.example)"
	if got := ensureSourcesSection(already, sources); got != already {
		t.Error("existing Sources section must be preserved untouched")
	}

	plain := "No citations here."
	if got := ensureSourcesSection(plain, sources); got != plain {
		t.Error("answer without citations must not grow a Sources section")
	}
}
