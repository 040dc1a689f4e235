package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/reasoning"
	"github.com/we11as22/deepresearch/pkg/scraper"
	"github.com/we11as22/deepresearch/pkg/search"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

// ResearcherConfig bounds one researcher run.
type ResearcherConfig struct {
	MaxSteps   int
	MaxSources int
}

// Researcher completes one pending todo per invocation, producing a
// Finding and enqueueing it for supervisor review.
type Researcher struct {
	llm     llms.Provider
	search  *search.Service
	scraper *scraper.Scraper
	fs      *agentfs.SessionFS
	gen     *streaming.Generator
	queue   *ReviewQueue
	visited *VisitedSet
	cfg     ResearcherConfig
	logger  *slog.Logger
}

func NewResearcher(llm llms.Provider, searchSvc *search.Service, scr *scraper.Scraper,
	fs *agentfs.SessionFS, gen *streaming.Generator, queue *ReviewQueue,
	visited *VisitedSet, cfg ResearcherConfig) *Researcher {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 8
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 15
	}
	return &Researcher{
		llm: llm, search: searchSvc, scraper: scr, fs: fs,
		gen: gen, queue: queue, visited: visited, cfg: cfg,
		logger: slog.Default(),
	}
}

// runState collects what one ReAct run gathered.
type runState struct {
	mu      sync.Mutex
	sources []Source
	notes   []agentfs.Note
}

func (rs *runState) addSource(s Source) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.sources = append(rs.sources, s)
}

func (rs *runState) addNote(n agentfs.Note) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.notes = append(rs.notes, n)
}

// Run picks the agent's highest-priority pending todo and works it to
// completion. With no pending todos it reports a no-tasks finding. The
// returned finding is always non-nil when err is nil.
func (r *Researcher) Run(ctx context.Context, agentID, topic string) (*Finding, error) {
	file, err := r.fs.ReadAgentFile(agentID)
	if err != nil {
		return nil, fmt.Errorf("read agent file: %w", err)
	}

	todo := file.NextPending()
	if todo == nil {
		finding := &Finding{AgentID: agentID, Topic: topic, NoTasks: true, Confidence: ConfidenceLow}
		r.queue.Enqueue(QueueEvent{AgentID: agentID, Action: ActionNoTasks})
		return finding, nil
	}

	inProgress := agentfs.TodoInProgress
	if err := r.fs.UpdateAgentTodo(agentID, todo.Title, agentfs.TodoPatch{Status: &inProgress}); err != nil {
		return nil, fmt.Errorf("mark todo in progress: %w", err)
	}

	r.gen.Emit(streaming.EventAgentAction, map[string]any{
		"agent_id": agentID, "action": "start_todo", "title": todo.Title,
	})

	state := &runState{}
	registry := r.buildRegistry(agentID, state)
	engine := reasoning.NewEngine(r.llm, registry)

	transcript, err := engine.Run(ctx, reasoning.Config{
		SystemPrompt:  researcherSystemPrompt(file.Character),
		UserPrompt:    researcherTaskPrompt(todo),
		MaxIterations: r.cfg.MaxSteps,
		TerminalTools: []string{"finish"},
		OnIteration: func(iteration int) {
			r.gen.Emit(streaming.EventAgentReasoning, map[string]any{
				"agent_id": agentID, "iteration": iteration,
			})
		},
	})
	if err != nil {
		// Preserve partial progress: the todo stays in_progress for a
		// later cycle, the failure goes to the supervisor.
		r.queue.Enqueue(QueueEvent{AgentID: agentID, Action: ActionAgentFailed, Error: err.Error()})
		return nil, fmt.Errorf("researcher %s: %w", agentID, err)
	}

	finding := r.synthesizeFinding(agentID, topic, state, transcript)

	done := agentfs.TodoDone
	note := shorten(finding.Summary, 200)
	if err := r.fs.UpdateAgentTodo(agentID, todo.Title, agentfs.TodoPatch{Status: &done, Note: &note}); err != nil {
		r.logger.Warn("failed to mark todo done", "agent_id", agentID, "title", todo.Title, "error", err)
	}

	r.queue.Enqueue(QueueEvent{
		AgentID: agentID, Action: ActionTaskCompleted, Finding: finding,
		Timestamp: time.Now().UTC(),
	})
	r.gen.Emit(streaming.EventFinding, map[string]any{
		"agent_id": agentID, "topic": topic,
		"summary": shorten(finding.Summary, 400), "sources": len(finding.Sources),
	})
	return finding, nil
}

// synthesizeFinding builds the finding from the terminal finish call, or
// degrades to the collected notes when the loop was forced to stop.
func (r *Researcher) synthesizeFinding(agentID, topic string, state *runState, transcript *reasoning.Transcript) *Finding {
	finding := &Finding{
		AgentID:    agentID,
		Topic:      topic,
		Degraded:   transcript.Degraded,
		Confidence: ConfidenceLow,
	}

	if transcript.Terminal != nil {
		args := transcript.Terminal.Arguments
		if s, ok := args["summary"].(string); ok {
			finding.Summary = s
		}
		if raw, ok := args["key_findings"].([]any); ok {
			for _, item := range raw {
				if s, ok := item.(string); ok {
					finding.KeyFindings = append(finding.KeyFindings, s)
				}
			}
		}
		if c, ok := args["confidence"].(string); ok {
			switch Confidence(c) {
			case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
				finding.Confidence = Confidence(c)
			}
		}
	}

	if finding.Summary == "" {
		// Fall back to the run's notes, newest last.
		var parts []string
		for _, n := range state.notes {
			parts = append(parts, n.Title+": "+n.Summary)
		}
		if len(parts) == 0 && transcript.Text != "" {
			parts = append(parts, transcript.Text)
		}
		finding.Summary = strings.Join(parts, "\n")
	}

	finding.Sources = dedupeSources(state.sources, r.cfg.MaxSources)
	if finding.Confidence == ConfidenceLow && len(finding.Sources) > 0 {
		finding.Confidence = ConfidenceMedium
	}
	return finding
}

func dedupeSources(sources []Source, limit int) []Source {
	seen := make(map[string]bool, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		key := normalizeVisited(s.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func shorten(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

func researcherSystemPrompt(character agentfs.Character) string {
	var sb strings.Builder
	sb.WriteString("You are a focused research specialist")
	if character.Role != "" {
		sb.WriteString(" acting as " + character.Role)
	}
	if character.Expertise != "" {
		sb.WriteString(" with expertise in " + character.Expertise)
	}
	sb.WriteString(".\n")
	if character.Personality != "" {
		sb.WriteString("Personality: " + character.Personality + ".\n")
	}
	sb.WriteString(`
Work one task at a time. Search the web, scrape the most promising pages,
and record what you learn as notes with write_note. Share notes that other
specialists would benefit from. When the task's expected output is covered,
call finish with a concise summary, your key findings and a confidence
level. Do not invent sources; cite only URLs you actually visited.`)
	return sb.String()
}

func researcherTaskPrompt(todo *agentfs.Todo) string {
	var sb strings.Builder
	sb.WriteString("Task: " + todo.Title + "\n")
	if todo.Objective != "" {
		sb.WriteString("Objective: " + todo.Objective + "\n")
	}
	if todo.ExpectedOutput != "" {
		sb.WriteString("Expected output: " + todo.ExpectedOutput + "\n")
	}
	if todo.Guidance != "" {
		sb.WriteString("Guidance: " + todo.Guidance + "\n")
	}
	if len(todo.SourcesNeeded) > 0 {
		sb.WriteString("Sources needed: " + strings.Join(todo.SourcesNeeded, ", ") + "\n")
	}
	return sb.String()
}
