// Package streaming is the per-session event bus that turns engine
// progress into a resumable SSE/WebSocket stream and persists the final
// assistant message durably.
package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/we11as22/deepresearch/pkg/observability"
)

// EventType enumerates the closed set of stream event types.
type EventType string

const (
	EventInit                EventType = "init"
	EventStatus              EventType = "status"
	EventMemorySearch        EventType = "memory_search"
	EventSearchQueries       EventType = "search_queries"
	EventPlanning            EventType = "planning"
	EventResearchStart       EventType = "research_start"
	EventResearchTopic       EventType = "research_topic"
	EventSourceFound         EventType = "source_found"
	EventFinding             EventType = "finding"
	EventAgentTodo           EventType = "agent_todo"
	EventAgentNote           EventType = "agent_note"
	EventCompression         EventType = "compression"
	EventReportChunk         EventType = "report_chunk"
	EventFinalReport         EventType = "final_report"
	EventError               EventType = "error"
	EventDone                EventType = "done"
	EventSupervisorReact     EventType = "supervisor_react"
	EventSupervisorDirective EventType = "supervisor_directive"
	EventAgentAction         EventType = "agent_action"
	EventAgentReasoning      EventType = "agent_reasoning"
	EventReplan              EventType = "replan"
	EventGapIdentified       EventType = "gap_identified"
	EventDebug               EventType = "debug"
)

// Event is one typed stream event.
type Event struct {
	SessionID string         `json:"session_id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

const (
	// historyLimit bounds the replay ring per session.
	historyLimit = 1000

	// chunkSize is the maximum characters per report_chunk event.
	chunkSize = 10000

	// chunkDelay paces report chunks for responsive rendering.
	chunkDelay = 30 * time.Millisecond

	// queueSize is the per-subscriber channel buffer.
	queueSize = 256
)

// DeepSearchSeparator terminates a deep-search section when clarification
// text follows in the same assistant message. Exactly four newlines, which
// renders as two empty markdown lines.
const DeepSearchSeparator = "\n\n\n\n"

// MessagePersister durably stores assistant messages. Saves must be
// idempotent per message id.
type MessagePersister interface {
	SaveAssistantMessage(ctx context.Context, chatID, messageID, content string) error
}

// Generator is the event bus of a single session.
type Generator struct {
	sessionID string
	chatID    string
	persister MessagePersister
	logger    *slog.Logger

	mu          sync.Mutex
	history     []Event
	subscribers map[int]chan Event
	nextSubID   int
	closed      bool

	// finalMessageID is fixed on the first final write so emit_done and
	// emit_final_report update the same row.
	finalMessageID string
	finalContent   string
}

func NewGenerator(sessionID, chatID string, persister MessagePersister) *Generator {
	return &Generator{
		sessionID:   sessionID,
		chatID:      chatID,
		persister:   persister,
		logger:      slog.Default().With("session_id", sessionID),
		subscribers: make(map[int]chan Event),
	}
}

// Emit publishes one event to the history ring and all live subscribers.
// Slow subscribers drop events rather than blocking the engine.
func (g *Generator) Emit(eventType EventType, data map[string]any) {
	event := Event{
		SessionID: g.sessionID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.history = append(g.history, event)
	if len(g.history) > historyLimit {
		g.history = g.history[len(g.history)-historyLimit:]
	}
	subs := make([]chan Event, 0, len(g.subscribers))
	for _, ch := range g.subscribers {
		subs = append(subs, ch)
	}
	queueLen := len(g.history)
	g.mu.Unlock()

	observability.GetGlobalMetrics().EventQueueLen.Set(float64(queueLen))

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			g.logger.Debug("dropping event for slow subscriber", "type", eventType)
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe func. With
// replayHistory, the current history snapshot is delivered first, then new
// events.
func (g *Generator) Subscribe(replayHistory bool) (<-chan Event, func()) {
	g.mu.Lock()
	id := g.nextSubID
	g.nextSubID++

	var snapshot []Event
	if replayHistory {
		snapshot = make([]Event, len(g.history))
		copy(snapshot, g.history)
	}

	ch := make(chan Event, queueSize+len(snapshot))
	for _, event := range snapshot {
		ch <- event
	}
	if g.closed {
		close(ch)
		g.mu.Unlock()
		return ch, func() {}
	}
	g.subscribers[id] = ch
	g.mu.Unlock()

	unsubscribe := func() {
		g.mu.Lock()
		if sub, ok := g.subscribers[id]; ok {
			delete(g.subscribers, id)
			close(sub)
		}
		g.mu.Unlock()
	}
	return ch, unsubscribe
}

// History returns a snapshot of the event ring.
func (g *Generator) History() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Event, len(g.history))
	copy(out, g.history)
	return out
}

// EmitReportChunks splits long markdown into report_chunk events with a
// small inter-chunk delay.
func (g *Generator) EmitReportChunks(ctx context.Context, content string) {
	chunks := SplitChunks(content, chunkSize)
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return
		}
		g.Emit(EventReportChunk, map[string]any{
			"content": chunk,
			"index":   i,
			"total":   len(chunks),
		})
		if i+1 < len(chunks) {
			time.Sleep(chunkDelay)
		}
	}
}

// EmitFinalReport streams the report in chunks, emits final_report and
// persists the assistant message under the session's deterministic id.
func (g *Generator) EmitFinalReport(ctx context.Context, report string) error {
	g.EmitReportChunks(ctx, report)
	g.Emit(EventFinalReport, map[string]any{"report": report})
	return g.persistFinal(ctx, report)
}

// EmitError publishes an error event.
func (g *Generator) EmitError(message string) {
	g.Emit(EventError, map[string]any{"message": message})
}

// EmitDone ends the stream. The final message write is repeated
// idempotently so a done after a mid-stream failure still persists the
// last accumulated content.
func (g *Generator) EmitDone(ctx context.Context) error {
	g.Emit(EventDone, nil)
	err := g.persistFinal(ctx, "")

	g.mu.Lock()
	g.closed = true
	for id, ch := range g.subscribers {
		delete(g.subscribers, id)
		close(ch)
	}
	g.mu.Unlock()
	return err
}

// AccumulateFinal records partial final content so a failure mid-stream
// still persists what was produced.
func (g *Generator) AccumulateFinal(content string) {
	g.mu.Lock()
	g.finalContent = content
	g.mu.Unlock()
}

func (g *Generator) persistFinal(ctx context.Context, content string) error {
	if g.persister == nil {
		return nil
	}

	g.mu.Lock()
	if content != "" {
		g.finalContent = content
	}
	if g.finalContent == "" {
		g.mu.Unlock()
		return nil
	}
	if g.finalMessageID == "" {
		g.finalMessageID = FinalMessageID(g.sessionID, time.Now())
	}
	messageID := g.finalMessageID
	finalContent := g.finalContent
	g.mu.Unlock()

	if err := g.persister.SaveAssistantMessage(ctx, g.chatID, messageID, finalContent); err != nil {
		return fmt.Errorf("persist final message: %w", err)
	}
	return nil
}

// FinalMessageID is the deterministic id of a session's final assistant
// message.
func FinalMessageID(sessionID string, at time.Time) string {
	return fmt.Sprintf("assistant_%s_%d", sessionID, at.UnixMilli())
}

// SplitChunks cuts content into rune-safe chunks of at most size chars.
func SplitChunks(content string, size int) []string {
	if content == "" {
		return nil
	}
	runes := []rune(content)
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
