package agents

import (
	"context"
	"testing"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

func researcherFixture(t *testing.T, provider llms.Provider) (*Researcher, *agentfs.SessionFS, *ReviewQueue) {
	t.Helper()
	store := agentfs.NewStore(t.TempDir())
	fs, err := store.Session("s1")
	if err != nil {
		t.Fatal(err)
	}
	queue := NewReviewQueue()
	gen := streaming.NewGenerator("s1", "chat1", nil)
	r := NewResearcher(provider, nil, nil, fs, gen, queue, NewVisitedSet(), ResearcherConfig{MaxSteps: 5})
	return r, fs, queue
}

func seedTodo(t *testing.T, fs *agentfs.SessionFS, agentID string) {
	t.Helper()
	err := fs.WriteAgentFile(&agentfs.AgentFile{
		AgentID:   agentID,
		Character: agentfs.Character{Role: "Analyst", Expertise: "quantum hardware"},
		Todos: []agentfs.Todo{{
			Title: "Survey platforms", Objective: "compare hardware approaches",
			ExpectedOutput: "a comparison", Priority: agentfs.PriorityHigh, Status: agentfs.TodoPending,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestResearcherCompletesOneTodo(t *testing.T) {
	provider := llms.NewScriptedProvider(
		llms.ToolCallResponse(protocol.ToolCall{Name: "write_note", Arguments: map[string]any{
			"title": "Trapped ions lead", "summary": "Ion traps show the best fidelity.",
			"urls": []any{"https://a.example/ions"}, "share": true,
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "finish", Arguments: map[string]any{
			"summary":      "Ion traps currently lead on fidelity.",
			"key_findings": []any{"fidelity above 99.9%"},
			"confidence":   "high",
		}}),
	)
	r, fs, queue := researcherFixture(t, provider)
	seedTodo(t, fs, "a1")

	finding, err := r.Run(context.Background(), "a1", "hardware platforms")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if finding.NoTasks || finding.Degraded {
		t.Errorf("unexpected finding flags: %+v", finding)
	}
	if finding.Summary != "Ion traps currently lead on fidelity." || finding.Confidence != ConfidenceHigh {
		t.Errorf("finish args not used: %+v", finding)
	}
	if len(finding.Sources) != 1 || finding.Sources[0].URL != "https://a.example/ions" {
		t.Errorf("note urls not collected as sources: %+v", finding.Sources)
	}

	// The worked todo is done with a short note.
	file, _ := fs.ReadAgentFile("a1")
	if file.Todos[0].Status != agentfs.TodoDone || file.Todos[0].Note == "" {
		t.Errorf("todo not closed: %+v", file.Todos[0])
	}

	// Exactly one completion event reached the queue.
	batch := queue.DrainBatch(10)
	if len(batch) != 1 || batch[0].Action != ActionTaskCompleted || batch[0].Finding == nil {
		t.Fatalf("queue event wrong: %+v", batch)
	}

	// The shared note is readable by siblings.
	shared, _ := fs.SharedNotes("", 10)
	if len(shared) != 1 || shared[0].Title != "Trapped ions lead" {
		t.Errorf("shared note missing: %+v", shared)
	}
}

func TestResearcherNoTasks(t *testing.T) {
	provider := llms.NewScriptedProvider()
	r, _, queue := researcherFixture(t, provider)

	finding, err := r.Run(context.Background(), "idle-agent", "topic")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !finding.NoTasks {
		t.Error("expected no-tasks finding")
	}
	batch := queue.DrainBatch(10)
	if len(batch) != 1 || batch[0].Action != ActionNoTasks {
		t.Errorf("expected no_tasks event, got %+v", batch)
	}
	// The LLM is never consulted without a pending todo.
	if len(provider.Calls) != 0 {
		t.Errorf("expected no llm calls, got %d", len(provider.Calls))
	}
}

func TestResearcherDegradedWhenBudgetExhausted(t *testing.T) {
	provider := llms.NewScriptedProvider(
		llms.ToolCallResponse(protocol.ToolCall{Name: "write_note", Arguments: map[string]any{
			"title": "partial", "summary": "found something", "urls": []any{"https://a.example/x"},
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "write_note", Arguments: map[string]any{
			"title": "more", "summary": "found more",
		}}),
		llms.TextResponse("forced summary"),
	)
	r, fs, _ := researcherFixture(t, provider)
	seedTodo(t, fs, "a1")
	r.cfg.MaxSteps = 2

	finding, err := r.Run(context.Background(), "a1", "topic")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !finding.Degraded {
		t.Error("exhausted loop must degrade the finding")
	}
	// One collected source still lifts confidence to medium.
	if finding.Confidence != ConfidenceMedium {
		t.Errorf("expected medium confidence, got %s", finding.Confidence)
	}
	if finding.Summary == "" {
		t.Error("degraded finding must still carry a summary")
	}
}

func TestResearcherSelfAddedTodos(t *testing.T) {
	provider := llms.NewScriptedProvider(
		llms.ToolCallResponse(protocol.ToolCall{Name: "add_todo", Arguments: map[string]any{
			"items": []any{map[string]any{"title": "Follow up on error rates", "objective": "dig deeper"}},
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "finish", Arguments: map[string]any{
			"summary": "done for now",
		}}),
	)
	r, fs, _ := researcherFixture(t, provider)
	seedTodo(t, fs, "a1")

	if _, err := r.Run(context.Background(), "a1", "topic"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	file, _ := fs.ReadAgentFile("a1")
	if len(file.Todos) != 2 {
		t.Fatalf("self-added todo missing: %+v", file.Todos)
	}
	if file.Todos[1].Title != "Follow up on error rates" || file.Todos[1].Status != agentfs.TodoPending {
		t.Errorf("unexpected added todo: %+v", file.Todos[1])
	}
}
