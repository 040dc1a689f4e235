package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/observability"
	"github.com/we11as22/deepresearch/pkg/orchestrator"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/searchsvc"
	"github.com/we11as22/deepresearch/pkg/session"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

// messageStore adapts the session manager to the streaming persister.
type messageStore struct {
	sessions *session.Manager
}

func (s *messageStore) SaveAssistantMessage(ctx context.Context, chatID, messageID, content string) error {
	return s.sessions.SaveMessage(ctx, session.Message{
		ChatID:    chatID,
		MessageID: messageID,
		Role:      "assistant",
		Content:   content,
	})
}

// Engine turns one user message into a running stream: chat completions
// answer inline, web and deep_search run the search service, and
// deep_research starts (or resumes) the orchestrator graph.
type Engine struct {
	llm       llms.Provider
	sessions  *session.Manager
	searchSvc *searchsvc.Service
	orch      *orchestrator.Orchestrator
	hub       *streaming.Hub
	cfg       *config.Config
	logger    *slog.Logger
}

func NewEngine(llm llms.Provider, sessions *session.Manager, searchSvc *searchsvc.Service,
	orch *orchestrator.Orchestrator, hub *streaming.Hub, cfg *config.Config) *Engine {
	return &Engine{
		llm:       llm,
		sessions:  sessions,
		searchSvc: searchSvc,
		orch:      orch,
		hub:       hub,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

// StreamRequest is one incoming user turn.
type StreamRequest struct {
	ChatID    string
	Message   string
	MessageID string
	Mode      string
}

// StartStream persists the user turn, decides the mode and launches the
// work in the background. The returned generator is live immediately.
func (e *Engine) StartStream(ctx context.Context, req StreamRequest) (*streaming.Generator, string, session.Mode, error) {
	if req.ChatID == "" {
		req.ChatID = "default"
	}
	if req.MessageID == "" {
		req.MessageID = "user_" + uuid.NewString()
	}

	if err := e.sessions.EnsureChat(ctx, req.ChatID); err != nil {
		return nil, "", "", fmt.Errorf("ensure chat: %w", err)
	}
	if err := e.sessions.SaveMessage(ctx, session.Message{
		ChatID: req.ChatID, MessageID: req.MessageID, Role: "user", Content: req.Message,
	}); err != nil {
		return nil, "", "", fmt.Errorf("save user message: %w", err)
	}

	mode, query := e.resolveMode(ctx, req)

	switch mode {
	case session.ModeChat:
		return e.startChat(req)
	case session.ModeWeb, session.ModeDeepSearch:
		return e.startSearch(ctx, req, mode, query)
	default:
		return e.startResearch(ctx, req)
	}
}

// resolveMode applies the explicit mode when given, otherwise runs the
// classifier. A chat waiting for clarification answers always resumes
// deep research.
func (e *Engine) resolveMode(ctx context.Context, req StreamRequest) (session.Mode, string) {
	if active, err := e.sessions.GetActiveSession(ctx, req.ChatID); err == nil &&
		active.Status == session.StatusWaitingClarification {
		return session.ModeDeepResearch, req.Message
	}

	if mode, ok := ParseMode(req.Mode); ok {
		return mode, req.Message
	}

	history := e.protocolHistory(ctx, req.ChatID)
	classification, _ := e.searchSvc.Classifier().Classify(ctx, req.Message, history)
	return classification.SessionMode(), classification.StandaloneQuery
}

func (e *Engine) protocolHistory(ctx context.Context, chatID string) []protocol.Message {
	messages, err := e.sessions.ChatHistory(ctx, chatID, e.cfg.Research.ChatHistoryLimit)
	if err != nil {
		e.logger.Warn("chat history unavailable", "chat_id", chatID, "error", err)
		return nil
	}
	history := make([]protocol.Message, 0, len(messages))
	for _, m := range messages {
		role := protocol.RoleUser
		if m.Role == "assistant" {
			role = protocol.RoleAssistant
		}
		history = append(history, protocol.Message{Role: role, Content: m.Content})
	}
	return history
}

// startChat answers without a session row.
func (e *Engine) startChat(req StreamRequest) (*streaming.Generator, string, session.Mode, error) {
	streamID := "chat_" + uuid.NewString()
	gen := streaming.NewGenerator(streamID, req.ChatID, &messageStore{e.sessions})
	runCtx, cancel := context.WithCancel(context.Background())
	e.hub.Register(streamID, gen, cancel)

	go func() {
		defer e.hub.Remove(streamID)
		gen.Emit(streaming.EventInit, map[string]any{"mode": string(session.ModeChat)})
		gen.Emit(streaming.EventStatus, map[string]any{"status": "thinking"})

		history := e.protocolHistory(runCtx, req.ChatID)
		messages := []protocol.Message{protocol.SystemMessage(chatSystemPrompt)}
		messages = append(messages, history...)

		resp, err := e.llm.Generate(runCtx, messages, nil)
		if err != nil {
			e.failStream(runCtx, gen, err)
			return
		}
		if err := gen.EmitFinalReport(runCtx, resp.Text); err != nil {
			e.logger.Warn("chat persistence failed", "chat_id", req.ChatID, "error", err)
		}
		if err := gen.EmitDone(runCtx); err != nil {
			e.logger.Warn("chat done failed", "chat_id", req.ChatID, "error", err)
		}
	}()
	return gen, streamID, session.ModeChat, nil
}

// startSearch runs the two-stage search service under a session row.
func (e *Engine) startSearch(ctx context.Context, req StreamRequest, mode session.Mode, query string) (*streaming.Generator, string, session.Mode, error) {
	sess, err := e.sessions.CreateSession(ctx, req.ChatID, req.Message, mode)
	if err != nil {
		return nil, "", "", fmt.Errorf("create session: %w", err)
	}
	gen := streaming.NewGenerator(sess.ID, req.ChatID, &messageStore{e.sessions})
	runCtx, cancel := context.WithCancel(context.Background())
	e.hub.Register(sess.ID, gen, cancel)

	go func() {
		defer e.hub.Remove(sess.ID)
		metrics := observability.GetGlobalMetrics()
		metrics.ActiveSessions.Inc()
		defer metrics.ActiveSessions.Dec()

		gen.Emit(streaming.EventInit, map[string]any{"mode": string(mode)})
		gen.Emit(streaming.EventStatus, map[string]any{"status": "searching"})

		answer, err := e.searchSvc.Run(runCtx, query, mode, gen)
		if err != nil {
			e.failStream(runCtx, gen, err)
			if uerr := e.sessions.UpdateStatus(runCtx, sess.ID, session.StatusCancelled); uerr != nil {
				e.logger.Warn("session cancel failed", "session_id", sess.ID, "error", uerr)
			}
			return
		}
		if err := e.sessions.SaveDeepSearchResult(runCtx, sess.ID, answer.Report); err != nil {
			e.logger.Warn("search result save failed", "session_id", sess.ID, "error", err)
		}
		if err := gen.EmitFinalReport(runCtx, answer.Report); err != nil {
			e.logger.Warn("search persistence failed", "session_id", sess.ID, "error", err)
		}
		if err := e.sessions.CompleteSession(runCtx, sess.ID, answer.Report); err != nil {
			e.logger.Warn("session completion failed", "session_id", sess.ID, "error", err)
		}
		if err := gen.EmitDone(runCtx); err != nil {
			e.logger.Warn("search done failed", "session_id", sess.ID, "error", err)
		}
	}()
	return gen, sess.ID, mode, nil
}

// startResearch launches or resumes the deep-research graph.
func (e *Engine) startResearch(ctx context.Context, req StreamRequest) (*streaming.Generator, string, session.Mode, error) {
	sess, err := e.sessions.GetOrCreateSession(ctx, req.ChatID, req.Message, session.ModeDeepResearch)
	if err != nil {
		return nil, "", "", fmt.Errorf("get or create session: %w", err)
	}
	gen := streaming.NewGenerator(sess.ID, req.ChatID, &messageStore{e.sessions})
	runCtx, cancel := context.WithCancel(context.Background())
	e.hub.Register(sess.ID, gen, cancel)

	go func() {
		defer e.hub.Remove(sess.ID)
		metrics := observability.GetGlobalMetrics()
		metrics.ActiveSessions.Inc()
		defer metrics.ActiveSessions.Dec()

		gen.Emit(streaming.EventInit, map[string]any{"mode": string(session.ModeDeepResearch)})
		start := time.Now()
		if err := e.orch.Run(runCtx, sess, gen); err != nil {
			e.failStream(runCtx, gen, err)
			return
		}
		e.logger.Info("research turn finished",
			"session_id", sess.ID, "duration", time.Since(start).Round(time.Second))
	}()
	return gen, sess.ID, session.ModeDeepResearch, nil
}

// failStream closes a stream after an unrecoverable error: the error
// event, then done, so the client is never left on an open stream.
func (e *Engine) failStream(ctx context.Context, gen *streaming.Generator, err error) {
	message := "Research failed. Please try again."
	if llms.IsQuotaError(err) {
		message = "The language model quota is exhausted. Please try again later."
	}
	if ctx.Err() != nil {
		gen.Emit(streaming.EventStatus, map[string]any{"status": "cancelled"})
	} else {
		e.logger.Error("stream failed", "error", err)
		gen.EmitError(message)
	}
	if derr := gen.EmitDone(context.WithoutCancel(ctx)); derr != nil {
		e.logger.Warn("stream close failed", "error", derr)
	}
}

// Cancel aborts a live session and marks its row cancelled.
func (e *Engine) Cancel(ctx context.Context, sessionID string) bool {
	if !e.hub.Cancel(sessionID) {
		return false
	}
	if err := e.sessions.UpdateStatus(ctx, sessionID, session.StatusCancelled); err != nil {
		e.logger.Warn("cancel status update failed", "session_id", sessionID, "error", err)
	}
	return true
}

const chatSystemPrompt = `You are a helpful research assistant. Answer conversationally and concisely. When a question would benefit from current web information, suggest the user switch to search or deep research mode.`
