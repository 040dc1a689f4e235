package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

// Scripted two-cycle run for one agent. The first review mutates todos and
// exhausts MaxSupervisorCalls=1; the second review must be findings-only,
// and the finalisation review still runs past the cap.
func TestExecuteAgentsSupervisorCallAccounting(t *testing.T) {
	provider := llms.NewScriptedProvider(
		// Cycle 1: researcher completes the high-priority todo.
		llms.ToolCallResponse(protocol.ToolCall{Name: "finish", Arguments: map[string]any{
			"summary": "Vendor A shipped a 5000-qubit annealer in 2024.", "confidence": "high",
		}}),
		// Review 1: one mutation, then continue. Counts against the cap.
		llms.ToolCallResponse(protocol.ToolCall{Name: "create_agent_todo", Arguments: map[string]any{
			"agent_id": "a1", "title": "Check vendor claims",
			"objective": "Verify the qubit counts against third-party benchmarks.",
			"priority":  "critical",
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "make_final_decision", Arguments: map[string]any{
			"reasoning": "Coverage is thin, keep researching.", "decision": "continue",
		}}),
		// Cycle 2: researcher completes the supervisor-created todo.
		llms.ToolCallResponse(protocol.ToolCall{Name: "finish", Arguments: map[string]any{
			"summary": "Benchmarks confirm the qubit count within 3 percent.", "confidence": "medium",
		}}),
		// Review 2: the cap is exhausted, so the todo tools are not
		// registered and this mutation attempt comes back as an error.
		llms.ToolCallResponse(protocol.ToolCall{Name: "create_agent_todo", Arguments: map[string]any{
			"agent_id": "a1", "title": "Premature extra task",
			"objective": "Should be rejected once the call budget is spent.",
		}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "make_final_decision", Arguments: map[string]any{
			"reasoning": "Findings ingested.", "decision": "finish",
		}}),
		// Finalisation review, past the cap.
		llms.ToolCallResponse(protocol.ToolCall{Name: "make_final_decision", Arguments: map[string]any{
			"reasoning": "Research budget spent, finishing.", "decision": "finish",
		}}),
	)

	f := newFixture(t, provider)
	fs, err := f.files.Session("s1")
	require.NoError(t, err)

	_, err = fs.AddTodos("a1", []agentfs.Todo{
		{Title: "Survey annealing hardware", Objective: "List 2024 hardware releases.", Priority: agentfs.PriorityHigh},
		{Title: "Map error-correction claims", Objective: "Collect published error rates.", Priority: agentfs.PriorityMedium},
	})
	require.NoError(t, err)

	state := &SessionState{
		SessionID:          "s1",
		OriginalQuery:      testQuery,
		UserLanguage:       "english",
		MaxIterations:      2,
		MaxSupervisorCalls: 1,
		ModeConfig:         config.ModeBudget{MaxIterations: 2, MaxConcurrent: 1},
	}
	gen := streaming.NewGenerator("s1", "chat1", nil)

	require.NoError(t, f.orch.executeAgents(context.Background(), state, fs, gen))

	// Seven generate calls: the script ran to its end, so the
	// finalisation review happened even though the cap was already spent.
	require.Len(t, provider.Calls, 7)
	require.Equal(t, 1, state.SupervisorCallCount)
	require.Len(t, state.AgentFindings, 2)

	file, err := fs.ReadAgentFile("a1")
	require.NoError(t, err)
	require.NotNil(t, file.FindTodo("Check vendor claims"))
	require.Nil(t, file.FindTodo("Premature extra task"))

	// One todo is still pending at the iteration cap.
	require.True(t, state.Degraded)
	require.False(t, state.ShouldContinue)
}
