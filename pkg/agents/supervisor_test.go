package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

func supervisorFixture(t *testing.T, provider llms.Provider) (*Supervisor, *agentfs.SessionFS) {
	t.Helper()
	store := agentfs.NewStore(t.TempDir())
	fs, err := store.Session("s1")
	if err != nil {
		t.Fatal(err)
	}
	gen := streaming.NewGenerator("s1", "chat1", nil)
	return NewSupervisor(provider, fs, gen, SupervisorConfig{MaxIterations: 5}), fs
}

func reviewBatch() []QueueEvent {
	return []QueueEvent{{
		AgentID: "a1", Action: ActionTaskCompleted,
		Finding: &Finding{
			AgentID: "a1", Topic: "hardware", Summary: "ion traps lead",
			Sources: []Source{{URL: "https://a.example"}}, Confidence: ConfidenceMedium,
		},
	}}
}

func TestSupervisorWritesChapterAndDecides(t *testing.T) {
	provider := llms.NewScriptedProvider(
		llms.ToolCallResponse(protocol.ToolCall{Name: "write_draft_report", Arguments: map[string]any{
			"section_title": "Hardware Platforms",
			"content":       "### Summary\nIon traps lead.\n\n### Key Findings\n- fidelity\n\n### Sources\n- https://a.example",
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "make_final_decision", Arguments: map[string]any{
			"reasoning": "coverage is sufficient", "decision": "finish",
		}}),
	)
	s, fs := supervisorFixture(t, provider)

	decision, err := s.Review(context.Background(), ReviewInput{
		OriginalQuery: "quantum computing", Batch: reviewBatch(),
		AllowTodoMutations: true, Iteration: 1, MaxIterations: 3,
	})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if decision.Decision != DecisionFinish || decision.Reasoning != "coverage is sufficient" {
		t.Errorf("unexpected decision: %+v", decision)
	}
	if decision.MutatedTodos {
		t.Error("draft writing must not count as a todo mutation")
	}

	chapters, _ := fs.ReadDraft()
	if len(chapters) != 1 || chapters[0].Title != "Hardware Platforms" {
		t.Errorf("chapter not written: %+v", chapters)
	}
}

func TestSupervisorTodoMutationFlagged(t *testing.T) {
	provider := llms.NewScriptedProvider(
		llms.ToolCallResponse(protocol.ToolCall{Name: "create_agent_todo", Arguments: map[string]any{
			"agent_id": "a1", "title": "Check vendor roadmaps",
			"objective": "quantum computing vendor plans",
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "make_final_decision", Arguments: map[string]any{
			"reasoning": "more work queued", "decision": "continue",
		}}),
	)
	s, fs := supervisorFixture(t, provider)

	decision, err := s.Review(context.Background(), ReviewInput{
		OriginalQuery: "quantum computing", Batch: reviewBatch(),
		AllowTodoMutations: true, Iteration: 1, MaxIterations: 3,
	})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if !decision.MutatedTodos {
		t.Error("todo creation must flag the call as todo-mutating")
	}
	if decision.Decision != DecisionContinue {
		t.Errorf("unexpected decision: %+v", decision)
	}

	file, _ := fs.ReadAgentFile("a1")
	if len(file.Todos) != 1 || file.Todos[0].Title != "Check vendor roadmaps" {
		t.Errorf("todo not created: %+v", file.Todos)
	}
}

func TestSupervisorFindingsOnlyCallCannotMutateTodos(t *testing.T) {
	provider := llms.NewScriptedProvider(
		// The model tries to create a todo anyway; the tool is absent so
		// the error feeds back, then it writes the chapter and decides.
		llms.ToolCallResponse(protocol.ToolCall{Name: "create_agent_todo", Arguments: map[string]any{
			"agent_id": "a1", "title": "x", "objective": "y",
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "write_draft_report", Arguments: map[string]any{
			"section_title": "Late Findings", "content": "### Summary\nstill recorded",
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "make_final_decision", Arguments: map[string]any{
			"reasoning": "budget spent", "decision": "finish",
		}}),
	)
	s, fs := supervisorFixture(t, provider)

	decision, err := s.Review(context.Background(), ReviewInput{
		OriginalQuery: "quantum computing", Batch: reviewBatch(),
		AllowTodoMutations: false, Iteration: 3, MaxIterations: 3,
	})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if decision.MutatedTodos {
		t.Error("findings-only call must never report todo mutations")
	}

	// No todo was created, but the chapter still landed.
	file, _ := fs.ReadAgentFile("a1")
	if len(file.Todos) != 0 {
		t.Errorf("todo must not exist: %+v", file.Todos)
	}
	chapters, _ := fs.ReadDraft()
	if len(chapters) != 1 || chapters[0].Title != "Late Findings" {
		t.Errorf("chapter missing: %+v", chapters)
	}
}

func TestSupervisorPlainTextIsImplicitFinish(t *testing.T) {
	// The text deliberately names other decisions; only a terminal tool
	// call can pick them.
	provider := llms.NewScriptedProvider(
		llms.TextResponse("Coverage looks adequate; no agent needs to continue, and no replan is warranted."),
	)
	s, _ := supervisorFixture(t, provider)

	decision, err := s.Review(context.Background(), ReviewInput{
		OriginalQuery: "q", Batch: reviewBatch(), AllowTodoMutations: true,
	})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if decision.Decision != DecisionFinish {
		t.Errorf("plain text must mean finish, got %s", decision.Decision)
	}
}

func TestSupervisorPromptCarriesBatchAndLanguage(t *testing.T) {
	provider := llms.NewScriptedProvider(llms.TextResponse("finish"))
	s, _ := supervisorFixture(t, provider)

	_, err := s.Review(context.Background(), ReviewInput{
		OriginalQuery: "quantum computing", UserLanguage: "russian",
		ClarificationAnswers: "focus on hardware",
		Batch:                reviewBatch(), AllowTodoMutations: true,
		Iteration: 2, MaxIterations: 3,
	})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}

	messages := provider.Calls[0]
	system := messages[0].Content
	user := messages[len(messages)-1].Content
	if !strings.Contains(system, "russian") {
		t.Error("system prompt must pin the user language")
	}
	if !strings.Contains(user, "ion traps lead") || !strings.Contains(user, "focus on hardware") {
		t.Errorf("review context incomplete: %q", user)
	}
}
