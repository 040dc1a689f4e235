package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/scraper"
	"github.com/we11as22/deepresearch/pkg/searchsvc"
	"github.com/we11as22/deepresearch/pkg/session"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

const testQuery = "Research quantum annealing progress in 2024"

type fixture struct {
	orch     *Orchestrator
	sessions *session.Manager
	files    *agentfs.Store
	sess     *session.Session
}

func newFixture(t *testing.T, provider llms.Provider) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	sessions, err := session.NewManager(context.Background(), db, "sqlite3")
	require.NoError(t, err)

	cfg := &config.ResearchConfig{
		NumAgents:               3,
		MaxSupervisorCalls:      10,
		AgentMaxSteps:           4,
		SupervisorMaxIterations: 4,
		DefaultMaxIterations:    2,
		ChatHistoryLimit:        20,
		SourcesLimit:            15,
		Speed:                   config.ModeBudget{MaxIterations: 1, MaxConcurrent: 2},
		Balanced:                config.ModeBudget{MaxIterations: 4, MaxConcurrent: 3},
		Quality:                 config.ModeBudget{MaxIterations: 8, MaxConcurrent: 3},
	}

	files := agentfs.NewStore(t.TempDir())
	orch := New(Deps{
		LLM:       provider,
		SearchSvc: searchsvc.New(provider, nil, scraper.New(5*time.Second), cfg),
		Scraper:   scraper.New(5 * time.Second),
		Sessions:  sessions,
		Files:     files,
		Config:    cfg,
	})

	ctx := context.Background()
	require.NoError(t, sessions.EnsureChat(ctx, "chat1"))
	require.NoError(t, sessions.SaveMessage(ctx, session.Message{
		ChatID: "chat1", MessageID: "user_1", Role: "user", Content: testQuery,
	}))
	sess, err := sessions.CreateSession(ctx, "chat1", testQuery, session.ModeDeepResearch)
	require.NoError(t, err)

	return &fixture{orch: orch, sessions: sessions, files: files, sess: sess}
}

// firstRunScript covers deep search (gather + writer) and the
// clarification structured call.
func firstRunScript() []*llms.Response {
	return []*llms.Response{
		llms.TextResponse("initial notes"),
		llms.TextResponse("Quantum annealing made steady progress in 2024."),
		llms.TextResponse(`{"needed": true, "questions": ["Which hardware platforms interest you?", "Academic or commercial focus?"], "reasoning": "broad"}`),
	}
}

func TestRunInterruptsForClarification(t *testing.T) {
	provider := llms.NewScriptedProvider(firstRunScript()...)
	f := newFixture(t, provider)
	ctx := context.Background()

	gen := streaming.NewGenerator(f.sess.ID, "chat1", nil)
	require.NoError(t, f.orch.Run(ctx, f.sess, gen))

	got, err := f.sessions.GetSession(ctx, f.sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusWaitingClarification, got.Status)
	require.Equal(t, "Quantum annealing made steady progress in 2024.", got.DeepSearchResult)

	// The combined message ends the deep-search part with exactly four
	// newlines before the clarification block.
	var combined string
	for _, ev := range gen.History() {
		if ev.Type == streaming.EventReportChunk {
			combined += ev.Data["content"].(string)
		}
	}
	require.Contains(t, combined, "2024."+streaming.DeepSearchSeparator+"Before I start")
	require.Contains(t, combined, "Which hardware platforms interest you?")

	last := gen.History()[len(gen.History())-1]
	require.Equal(t, streaming.EventDone, last.Type)

	// State survived for resume.
	fs, err := f.files.Session(f.sess.ID)
	require.NoError(t, err)
	state, err := NewFileCheckpointer(fs.Dir()).Load()
	require.NoError(t, err)
	require.True(t, state.ClarificationSent)
	require.Empty(t, state.ClarificationAnswers)
}

func TestResumeWithoutAnswerIsNoOp(t *testing.T) {
	provider := llms.NewScriptedProvider(firstRunScript()...)
	f := newFixture(t, provider)
	ctx := context.Background()

	gen := streaming.NewGenerator(f.sess.ID, "chat1", nil)
	require.NoError(t, f.orch.Run(ctx, f.sess, gen))
	callsAfterFirst := len(provider.Calls)

	// Re-run without a new user message: no LLM calls, status unchanged.
	gen2 := streaming.NewGenerator(f.sess.ID, "chat1", nil)
	require.NoError(t, f.orch.Run(ctx, f.sess, gen2))
	require.Equal(t, callsAfterFirst, len(provider.Calls))

	got, err := f.sessions.GetSession(ctx, f.sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusWaitingClarification, got.Status)
}

func resumeScript() []*llms.Response {
	longSection := strings.Repeat("Quantum annealing hardware matured considerably through 2024. ", 15)
	reportJSON := fmt.Sprintf(`{"executive_summary": %q, "sections": [{"title": "Hardware", "content": %q}, {"title": "Algorithms", "content": %q}, {"title": "Outlook", "content": %q}], "conclusion": %q, "sources": ["https://arxiv.example/qa-2024"], "confidence": "medium"}`,
		longSection, longSection, longSection, longSection, longSection)

	return []*llms.Response{
		// analyze_query
		llms.TextResponse(`{"topics": ["hardware platforms"], "complexity": "moderate", "estimated_agents": 1, "reasoning": "narrowed by clarification"}`),
		// plan_research
		llms.TextResponse(`{"reasoning": "single angle", "topics": [{"name": "hardware platforms", "description": "vendors and qubit counts", "priority": "high", "estimated_sources": 5}], "coordination_strategy": "one specialist"}`),
		// create_agent_characteristics
		llms.TextResponse(`{"agents": [{"agent_id": "hw", "role": "Hardware Analyst", "expertise": "annealing hardware", "todos": [{"title": "Survey 2024 hardware", "objective": "Survey annealing hardware released in 2024", "expected_output": "vendor list", "priority": "high"}]}]}`),
		// researcher completes its todo
		llms.ToolCallResponse(protocol.ToolCall{Name: "finish", Arguments: map[string]any{
			"summary": "D-Wave led 2024 hardware advances.", "key_findings": []any{"5000+ qubit systems"}, "confidence": "high",
		}}),
		// supervisor review of the completion
		llms.ToolCallResponse(protocol.ToolCall{Name: "make_final_decision", Arguments: map[string]any{
			"reasoning": "single topic covered", "decision": "finish",
		}}),
		// mandatory finalisation call
		llms.ToolCallResponse(protocol.ToolCall{Name: "make_final_decision", Arguments: map[string]any{
			"reasoning": "done", "decision": "finish",
		}}),
		// compress_findings
		llms.TextResponse(`{"synthesis": "Hardware progress dominated by annealers.", "key_themes": ["qubit scaling"], "important_sources": ["https://arxiv.example/qa-2024"]}`),
		// generate_report
		llms.TextResponse(reportJSON),
	}
}

func TestResumeCompletesResearch(t *testing.T) {
	script := append(firstRunScript(), resumeScript()...)
	provider := llms.NewScriptedProvider(script...)
	f := newFixture(t, provider)
	ctx := context.Background()

	gen := streaming.NewGenerator(f.sess.ID, "chat1", nil)
	require.NoError(t, f.orch.Run(ctx, f.sess, gen))

	// The user answers the clarification.
	require.NoError(t, f.sessions.SaveMessage(ctx, session.Message{
		ChatID: "chat1", MessageID: "user_2", Role: "user", Content: "focus on hardware platforms",
	}))

	gen2 := streaming.NewGenerator(f.sess.ID, "chat1", nil)
	require.NoError(t, f.orch.Run(ctx, f.sess, gen2))

	got, err := f.sessions.GetSession(ctx, f.sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusCompleted, got.Status)
	require.Equal(t, "focus on hardware platforms", got.ClarificationAnswers)
	require.Contains(t, got.FinalReport, "Executive Summary")
	require.GreaterOrEqual(t, len(got.FinalReport), reportLengthFloor)

	// Exactly one planning event across the whole session.
	planning := 0
	for _, ev := range gen2.History() {
		if ev.Type == streaming.EventPlanning {
			planning++
		}
	}
	require.Equal(t, 1, planning)

	// The todo objective quotes the original query.
	fs, err := f.files.Session(f.sess.ID)
	require.NoError(t, err)
	file, err := fs.ReadAgentFile("hw")
	require.NoError(t, err)
	require.Len(t, file.Todos, 1)
	require.Contains(t, file.Todos[0].Objective, testQuery)
	require.Equal(t, agentfs.TodoDone, file.Todos[0].Status)

	state, err := NewFileCheckpointer(fs.Dir()).Load()
	require.NoError(t, err)
	require.Len(t, state.AgentFindings, 1)
	require.Equal(t, "D-Wave led 2024 hardware advances.", state.AgentFindings[0].Summary)
	require.False(t, state.ShouldContinue)
}

func TestClarificationFallsBackToCannedQuestions(t *testing.T) {
	// Deep search succeeds, then the clarification call fails (script
	// exhausted): the node must still ask the default questions.
	provider := llms.NewScriptedProvider(
		llms.TextResponse("notes"),
		llms.TextResponse("Context paragraph."),
	)
	f := newFixture(t, provider)
	ctx := context.Background()

	gen := streaming.NewGenerator(f.sess.ID, "chat1", nil)
	require.NoError(t, f.orch.Run(ctx, f.sess, gen))

	got, err := f.sessions.GetSession(ctx, f.sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusWaitingClarification, got.Status)

	var combined string
	for _, ev := range gen.History() {
		if ev.Type == streaming.EventReportChunk {
			combined += ev.Data["content"].(string)
		}
	}
	require.Contains(t, combined, defaultClarificationQuestions[0])
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ckpt := NewFileCheckpointer(dir)

	missing, err := ckpt.Load()
	require.NoError(t, err)
	require.Nil(t, missing)

	state := &SessionState{
		SessionID: "s1", ChatID: "c1", Query: "q",
		ClarificationSent: true,
		ResearchTopics:    []string{"a", "b"},
	}
	require.NoError(t, ckpt.Save(state))

	loaded, err := ckpt.Load()
	require.NoError(t, err)
	require.Equal(t, state.SessionID, loaded.SessionID)
	require.True(t, loaded.ClarificationSent)
	require.Equal(t, []string{"a", "b"}, loaded.ResearchTopics)
}
