package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

// Two profiles propose the same todo title; the second copy must be
// qualified with its agent's role so titles stay unique across the pool.
func TestCreateAgentCharacteristicsDeduplicatesTitlesAcrossAgents(t *testing.T) {
	provider := llms.NewScriptedProvider(
		llms.TextResponse(`{"agents": [
			{"agent_id": "hw", "role": "Hardware Analyst", "expertise": "annealing hardware", "todos": [
				{"title": "Survey annealing hardware", "objective": "List 2024 hardware releases", "priority": "high"},
				{"title": "Collect qubit counts", "objective": "Tabulate vendor qubit counts"}
			]},
			{"agent_id": "app", "role": "Applications Analyst", "expertise": "annealing applications", "todos": [
				{"title": "survey annealing hardware", "objective": "Focus on application-ready devices"},
				{"title": "Map optimisation use cases", "objective": "Find deployed optimisation workloads"}
			]}
		]}`),
	)

	f := newFixture(t, provider)
	fs, err := f.files.Session("s1")
	require.NoError(t, err)

	state := &SessionState{
		SessionID:           "s1",
		OriginalQuery:       testQuery,
		EstimatedAgentCount: 2,
	}
	gen := streaming.NewGenerator("s1", "chat1", nil)

	require.NoError(t, f.orch.createAgentCharacteristics(context.Background(), state, fs, gen))
	require.Len(t, state.AgentCharacteristics, 2)

	hw, err := fs.ReadAgentFile("hw")
	require.NoError(t, err)
	require.NotNil(t, hw.FindTodo("Survey annealing hardware"))
	require.NotNil(t, hw.FindTodo("Collect qubit counts"))

	app, err := fs.ReadAgentFile("app")
	require.NoError(t, err)
	require.Nil(t, app.FindTodo("survey annealing hardware"))
	dup := app.FindTodo("Applications Analyst: survey annealing hardware")
	require.NotNil(t, dup)
	require.True(t, strings.Contains(dup.Objective, testQuery))
	require.NotNil(t, app.FindTodo("Map optimisation use cases"))
}
