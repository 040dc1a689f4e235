package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/reasoning"
	"github.com/we11as22/deepresearch/pkg/streaming"
	"github.com/we11as22/deepresearch/pkg/tools"
)

// SupervisorConfig bounds a supervisor review call.
type SupervisorConfig struct {
	MaxIterations int
}

// Supervisor reviews researcher findings, steers agent todos and is the
// only writer of draft report chapters.
type Supervisor struct {
	llm    llms.Provider
	fs     *agentfs.SessionFS
	gen    *streaming.Generator
	cfg    SupervisorConfig
	logger *slog.Logger
}

func NewSupervisor(llm llms.Provider, fs *agentfs.SessionFS, gen *streaming.Generator, cfg SupervisorConfig) *Supervisor {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 6
	}
	return &Supervisor{llm: llm, fs: fs, gen: gen, cfg: cfg, logger: slog.Default()}
}

// ReviewInput is the context assembled for one supervisor call.
type ReviewInput struct {
	OriginalQuery        string
	DeepSearchContext    string
	ClarificationAnswers string
	ResearchPlan         string
	UserLanguage         string
	Iteration            int
	MaxIterations        int
	Batch                []QueueEvent

	// AllowTodoMutations gates the todo tools. Past the supervisor call
	// budget, reviews still run but may only ingest findings and write the
	// draft.
	AllowTodoMutations bool

	// Finalize forces a make_final_decision("finish") oriented call.
	Finalize bool
}

// Review runs one supervisor call over a drained batch of queue events.
// An assistant reply without tool calls counts as an implicit finish.
func (s *Supervisor) Review(ctx context.Context, input ReviewInput) (*Decision, error) {
	state := &supervisorState{}
	registry := s.buildRegistry(input, state)
	engine := reasoning.NewEngine(s.llm, registry)

	s.gen.Emit(streaming.EventSupervisorReact, map[string]any{
		"iteration": input.Iteration, "batch": len(input.Batch),
		"todo_mutations_allowed": input.AllowTodoMutations,
	})

	transcript, err := engine.Run(ctx, reasoning.Config{
		SystemPrompt:  supervisorSystemPrompt(input),
		UserPrompt:    supervisorUserPrompt(input),
		MaxIterations: s.cfg.MaxIterations,
		TerminalTools: []string{"make_final_decision"},
		ForcedFinishPrompt: "You are out of review steps. Give your final decision now as plain text: " +
			"continue, replan or finish, with one sentence of reasoning.",
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor review: %w", err)
	}

	decision := s.extractDecision(transcript)
	decision.MutatedTodos = state.mutatedTodos

	s.gen.Emit(streaming.EventSupervisorDirective, map[string]any{
		"decision": string(decision.Decision), "reasoning": shorten(decision.Reasoning, 300),
	})
	return decision, nil
}

func (s *Supervisor) extractDecision(transcript *reasoning.Transcript) *Decision {
	if transcript.Terminal != nil {
		args := transcript.Terminal.Arguments
		decision := &Decision{Decision: DecisionFinish}
		if r, ok := args["reasoning"].(string); ok {
			decision.Reasoning = r
		}
		if d, ok := args["decision"].(string); ok {
			switch DecisionKind(d) {
			case DecisionContinue, DecisionReplan, DecisionFinish:
				decision.Decision = DecisionKind(d)
			}
		}
		return decision
	}

	// No terminal tool means an empty tool-calls set ended the loop:
	// implicit finish, regardless of what the plain text says.
	return &Decision{Reasoning: transcript.Text, Decision: DecisionFinish}
}

type supervisorState struct {
	mutatedTodos bool
}

func (s *Supervisor) buildRegistry(input ReviewInput, state *supervisorState) *tools.Registry {
	registry := tools.NewRegistry(
		s.readMainDocumentTool(),
		s.writeMainDocumentTool(),
		s.readDraftReportTool(),
		s.writeDraftReportTool(),
		s.readSupervisorFileTool(),
		s.writeSupervisorNoteTool(),
		s.reviewAgentProgressTool(),
		makeFinalDecisionTool(),
	)
	if input.AllowTodoMutations {
		registry.Register(s.createAgentTodoTool(state))
		registry.Register(s.updateAgentTodoTool(state))
	}
	return registry
}

func supervisorSystemPrompt(input ReviewInput) string {
	var sb strings.Builder
	sb.WriteString(`You are the research supervisor coordinating a team of specialist agents.
Review their findings, keep the shared main document and the draft report
current, and steer the team with todos.

Rules:
- Write in the user's language`)
	if input.UserLanguage != "" {
		sb.WriteString(" (" + input.UserLanguage + ")")
	}
	sb.WriteString(`.
- Never create tasks unrelated to the original query.
- Diversify agents over distinct angles of the query; avoid overlap.
- Turn findings into proper chapters via write_draft_report, never raw dumps.
- Prefer update_agent_todo over re-creating similar tasks.
- Every response must call at least one tool. End with make_final_decision.`)
	if !input.AllowTodoMutations {
		sb.WriteString(`
- The todo budget is exhausted: ingest the findings, update the draft, then decide.`)
	}
	if input.Finalize {
		sb.WriteString(`
- This is the final review. Consolidate the draft and call make_final_decision("finish").`)
	}
	return sb.String()
}

func supervisorUserPrompt(input ReviewInput) string {
	var sb strings.Builder
	sb.WriteString("Original query: " + input.OriginalQuery + "\n")
	if input.ClarificationAnswers != "" {
		sb.WriteString("User clarification: " + input.ClarificationAnswers + "\n")
	}
	if input.DeepSearchContext != "" {
		sb.WriteString("\nInitial context:\n" + shorten(input.DeepSearchContext, 2000) + "\n")
	}
	if input.ResearchPlan != "" {
		sb.WriteString("\nResearch plan:\n" + input.ResearchPlan + "\n")
	}
	sb.WriteString(fmt.Sprintf("\nIteration %d of %d.\n", input.Iteration, input.MaxIterations))

	if len(input.Batch) == 0 {
		sb.WriteString("\nNo new findings this cycle.\n")
	} else {
		sb.WriteString("\nNew findings since your last review:\n")
		for _, event := range input.Batch {
			switch event.Action {
			case ActionTaskCompleted:
				if event.Finding != nil {
					sb.WriteString(fmt.Sprintf("- [%s] %s (confidence %s, %d sources): %s\n",
						event.AgentID, event.Finding.Topic, event.Finding.Confidence,
						len(event.Finding.Sources), shorten(event.Finding.Summary, 500)))
				}
			case ActionNoTasks:
				sb.WriteString(fmt.Sprintf("- [%s] reported no remaining tasks\n", event.AgentID))
			case ActionAgentFailed:
				sb.WriteString(fmt.Sprintf("- [%s] failed: %s\n", event.AgentID, event.Error))
			}
		}
	}
	return sb.String()
}
