package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/memory"
	"github.com/we11as22/deepresearch/pkg/observability"
	"github.com/we11as22/deepresearch/pkg/scraper"
	"github.com/we11as22/deepresearch/pkg/search"
	"github.com/we11as22/deepresearch/pkg/searchsvc"
	"github.com/we11as22/deepresearch/pkg/session"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

// errWaitingClarification interrupts the graph until the user answers.
var errWaitingClarification = errors.New("waiting for clarification answers")

// Deps are the collaborators a research session needs.
type Deps struct {
	LLM       llms.Provider
	SearchSvc *searchsvc.Service
	WebSearch *search.Service
	Scraper   *scraper.Scraper
	Sessions  *session.Manager
	Files     *agentfs.Store

	// Memory is optional; nil disables the vector lookup node.
	Memory *memory.Store

	Config *config.ResearchConfig
}

// Orchestrator runs deep-research sessions through the node graph.
type Orchestrator struct {
	llm       llms.Provider
	searchSvc *searchsvc.Service
	webSearch *search.Service
	scraper   *scraper.Scraper
	sessions  *session.Manager
	files     *agentfs.Store
	memory    *memory.Store
	cfg       *config.ResearchConfig
	logger    *slog.Logger
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		llm:       deps.LLM,
		searchSvc: deps.SearchSvc,
		webSearch: deps.WebSearch,
		scraper:   deps.Scraper,
		sessions:  deps.Sessions,
		files:     deps.Files,
		memory:    deps.Memory,
		cfg:       deps.Config,
		logger:    slog.Default(),
	}
}

type node struct {
	name string
	fn   func(ctx context.Context, state *SessionState, fs *agentfs.SessionFS, gen *streaming.Generator) error
}

// Run drives one session through the graph. A clarification interrupt
// returns nil after persisting the combined message; calling Run again
// for the same session resumes from the checkpoint.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session, gen *streaming.Generator) error {
	tracer := observability.GetTracer("deepresearch.orchestrator")
	ctx, span := tracer.Start(ctx, "orchestrator.run")
	defer span.End()

	fs, err := o.files.Session(sess.ID)
	if err != nil {
		return fmt.Errorf("open session files: %w", err)
	}
	ckpt := NewFileCheckpointer(fs.Dir())

	state, err := ckpt.Load()
	if err != nil {
		o.logger.Warn("checkpoint unreadable, starting fresh", "session_id", sess.ID, "error", err)
	}
	if state == nil {
		state = o.newState(ctx, sess)
	} else {
		// Resume sees the messages sent while the graph was interrupted.
		o.refreshHistory(ctx, state)
	}

	graph := []node{
		{"search_memory", o.searchMemory},
		{"run_deep_search", o.runDeepSearch},
		{"clarify_with_user", o.clarifyWithUser},
		{"analyze_query", o.analyzeQuery},
		{"plan_research", o.planResearch},
		{"create_agent_characteristics", o.createAgentCharacteristics},
		{"execute_agents", o.executeAgents},
		{"compress_findings", o.compressFindings},
		{"generate_report", o.generateReport},
	}

	for _, n := range graph {
		if err := ctx.Err(); err != nil {
			gen.Emit(streaming.EventStatus, map[string]any{"status": "cancelled"})
			o.checkpoint(ckpt, state)
			return gen.EmitDone(context.WithoutCancel(ctx))
		}

		err := n.fn(ctx, state, fs, gen)
		if errors.Is(err, errWaitingClarification) {
			state.CompletedNode = "" // clarify re-runs on resume
			o.checkpoint(ckpt, state)
			gen.Emit(streaming.EventStatus, map[string]any{"status": "Waiting for your clarification answers..."})
			return gen.EmitDone(ctx)
		}
		if err != nil {
			return fmt.Errorf("node %s: %w", n.name, err)
		}
		state.CompletedNode = n.name
		o.checkpoint(ckpt, state)
	}

	return o.finish(ctx, sess, state, gen)
}

func (o *Orchestrator) newState(ctx context.Context, sess *session.Session) *SessionState {
	state := &SessionState{
		SessionID:          sess.ID,
		ChatID:             sess.ChatID,
		Query:              sess.OriginalQuery,
		OriginalQuery:      sess.OriginalQuery,
		Mode:               sess.Mode,
		ModeConfig:         o.cfg.Quality,
		MaxIterations:      o.cfg.DefaultMaxIterations,
		MaxSupervisorCalls: o.cfg.MaxSupervisorCalls,
		UserLanguage:       searchsvc.DetectLanguage(sess.OriginalQuery),
		ShouldContinue:     true,
	}
	if sess.Mode == session.ModeDeepSearch {
		state.ModeConfig = o.cfg.Balanced
	}
	o.refreshHistory(ctx, state)
	return state
}

func (o *Orchestrator) refreshHistory(ctx context.Context, state *SessionState) {
	history, err := o.sessions.ChatHistory(ctx, state.ChatID, o.cfg.ChatHistoryLimit)
	if err != nil {
		o.logger.Warn("chat history unavailable", "chat_id", state.ChatID, "error", err)
		return
	}
	state.ChatHistory = history
}

func (o *Orchestrator) checkpoint(ckpt *FileCheckpointer, state *SessionState) {
	if err := ckpt.Save(state); err != nil {
		o.logger.Warn("checkpoint failed", "session_id", state.SessionID, "error", err)
	}
}

// finish emits and persists the final report and closes the stream.
func (o *Orchestrator) finish(ctx context.Context, sess *session.Session, state *SessionState, gen *streaming.Generator) error {
	if err := gen.EmitFinalReport(ctx, state.FinalReport); err != nil {
		o.logger.Warn("final report persistence failed", "session_id", sess.ID, "error", err)
	}
	if err := o.sessions.CompleteSession(ctx, sess.ID, state.FinalReport); err != nil {
		o.logger.Warn("session completion failed", "session_id", sess.ID, "error", err)
	}
	if o.memory != nil {
		summary := state.CompressedResearch
		if summary == "" {
			summary = shortenText(state.FinalReport, 2000)
		}
		if err := o.memory.SaveResearch(ctx, sess.ChatID, sess.ID, state.OriginalQuery, summary); err != nil {
			o.logger.Warn("memory save failed", "session_id", sess.ID, "error", err)
		}
	}
	meta := map[string]any{
		"total_tokens":          state.Usage.TotalTokens,
		"supervisor_call_count": state.SupervisorCallCount,
		"iterations":            state.Iteration,
	}
	if state.Degraded {
		meta["degraded"] = true
	}
	if err := o.sessions.UpdateMetadata(ctx, sess.ID, meta); err != nil {
		o.logger.Warn("metadata update failed", "session_id", sess.ID, "error", err)
	}
	return gen.EmitDone(ctx)
}

func shortenText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
