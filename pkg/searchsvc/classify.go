package searchsvc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/session"
)

const classifierRetries = 2

// Classification is the structured output of the mode classifier.
type Classification struct {
	// Mode is one of chat, web, deep or research.
	Mode string `json:"mode"`

	// StandaloneQuery rewrites the user message into a self-contained
	// search query, resolving pronouns against the chat history.
	StandaloneQuery string `json:"standalone_query"`

	Reasoning string `json:"reasoning,omitempty"`
}

// SessionMode maps the classifier vocabulary onto session modes.
func (c *Classification) SessionMode() session.Mode {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "chat":
		return session.ModeChat
	case "web":
		return session.ModeWeb
	case "deep":
		return session.ModeDeepSearch
	case "research":
		return session.ModeDeepResearch
	default:
		return session.ModeWeb
	}
}

// Classifier decides how to answer a message and rewrites it standalone.
type Classifier struct {
	llm    llms.Provider
	logger *slog.Logger
}

func NewClassifier(llm llms.Provider) *Classifier {
	return &Classifier{llm: llm, logger: slog.Default()}
}

// Classify runs one structured LLM call. On transport or validation
// failure it falls back to web mode with the query passed through, so a
// broken classifier never blocks answering.
func (c *Classifier) Classify(ctx context.Context, query string, history []protocol.Message) (*Classification, llms.Usage) {
	messages := []protocol.Message{protocol.SystemMessage(classifierSystemPrompt)}
	tail := tailMessages(history, 6)
	if tc, err := llms.NewTokenCounter(c.llm.ModelName()); err == nil {
		tail = tc.FitHistory(tail, 2000)
	}
	messages = append(messages, tail...)
	messages = append(messages, protocol.UserMessage(query))

	result, resp, err := llms.Structured[Classification](ctx, c.llm, messages, "query_classification", classifierRetries)
	var usage llms.Usage
	if resp != nil {
		usage = resp.Usage
	}
	if err != nil {
		c.logger.Warn("classifier failed, defaulting to web mode", "error", err)
		return &Classification{Mode: "web", StandaloneQuery: query}, usage
	}
	if strings.TrimSpace(result.StandaloneQuery) == "" {
		result.StandaloneQuery = query
	}
	return result, usage
}

func tailMessages(history []protocol.Message, n int) []protocol.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

var classifierSystemPrompt = fmt.Sprintf(`You classify user messages for a research assistant and rewrite them as standalone queries.

Modes:
- "chat": greetings, small talk, questions answerable without the web.
- "web": factual questions needing a quick lookup.
- "deep": questions needing several sources and synthesis.
- "research": broad or open-ended topics needing a structured multi-agent investigation.

Rewrite the message so it makes sense without the chat history: resolve pronouns and references, keep the user's language.

Respond with JSON only:
%s`, `{"mode": "chat|web|deep|research", "standalone_query": "...", "reasoning": "..."}`)
