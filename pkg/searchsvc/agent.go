package searchsvc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/we11as22/deepresearch/pkg/agents"
	"github.com/we11as22/deepresearch/pkg/reasoning"
	"github.com/we11as22/deepresearch/pkg/streaming"
	"github.com/we11as22/deepresearch/pkg/tools"
)

// sourceBook numbers sources in discovery order so the writer can cite
// them as [n]. Re-adding a URL returns its existing number.
type sourceBook struct {
	mu      sync.Mutex
	sources []agents.Source
	index   map[string]int
	notes   []string
}

func newSourceBook() *sourceBook {
	return &sourceBook{index: map[string]int{}}
}

func (b *sourceBook) add(src agents.Source) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.TrimSuffix(strings.ToLower(src.URL), "/")
	if n, ok := b.index[key]; ok {
		return n
	}
	b.sources = append(b.sources, src)
	n := len(b.sources)
	b.index[key] = n
	return n
}

func (b *sourceBook) addNote(note string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes = append(b.notes, note)
}

func (b *sourceBook) snapshot() ([]agents.Source, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]agents.Source(nil), b.sources...), append([]string(nil), b.notes...)
}

// GatherResult is the research agent's output handed to the writer.
type GatherResult struct {
	Sources  []agents.Source
	Notes    []string
	Text     string
	Degraded bool
}

// gather runs the mode-budgeted ReAct loop collecting sources for a query.
func (s *Service) gather(ctx context.Context, query string, budget int, mandatoryPreamble bool, gen *streaming.Generator) (*GatherResult, error) {
	book := newSourceBook()
	registry := s.gatherRegistry(book, gen)
	engine := reasoning.NewEngine(s.llm, registry)

	prompt := gatherSystemPrompt
	if mandatoryPreamble {
		prompt += "\n\nBefore your first search you MUST call __reasoning_preamble once to state your plan."
	}

	transcript, err := engine.Run(ctx, reasoning.Config{
		SystemPrompt:  prompt,
		UserPrompt:    fmt.Sprintf("Research this query and gather sources: %s", query),
		MaxIterations: budget,
		TerminalTools: []string{"done"},
		OnIteration: func(iteration int) {
			if gen != nil {
				gen.Emit(streaming.EventResearchTopic, map[string]any{
					"iteration": iteration, "query": query,
				})
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("research agent failed: %w", err)
	}

	sources, notes := book.snapshot()
	result := &GatherResult{Sources: sources, Notes: notes, Degraded: transcript.Degraded}
	if transcript.Terminal != nil {
		if summary, _ := transcript.Terminal.Arguments["summary"].(string); summary != "" {
			result.Text = summary
		}
	}
	if result.Text == "" {
		result.Text = transcript.Text
	}
	s.logger.Debug("gather finished",
		slog.Int("sources", len(sources)),
		slog.Int("iterations", transcript.Iterations),
		slog.Bool("degraded", transcript.Degraded))
	return result, nil
}

func (s *Service) gatherRegistry(book *sourceBook, gen *streaming.Generator) *tools.Registry {
	registry := tools.NewRegistry()

	registry.Register(&tools.Tool{
		Name:        "web_search",
		Description: "Search the web. Returns numbered results; cite them as [n].",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query."},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			query, err := tools.StringArg(args, "query")
			if err != nil {
				return nil, err
			}
			if gen != nil {
				gen.Emit(streaming.EventSearchQueries, map[string]any{"queries": []string{query}})
			}
			results, err := s.search.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			entries := make([]map[string]any, 0, len(results))
			for _, r := range results {
				n := book.add(agents.Source{URL: r.URL, Title: r.Title, Snippet: r.Snippet, RelevanceScore: r.Score})
				if gen != nil {
					gen.Emit(streaming.EventSourceFound, map[string]any{
						"url": r.URL, "title": r.Title, "number": n,
					})
				}
				entries = append(entries, map[string]any{
					"n": n, "title": r.Title, "url": r.URL, "snippet": r.Snippet,
				})
			}
			return map[string]any{"query": query, "results": entries}, nil
		},
	})

	registry.Register(&tools.Tool{
		Name:        "scrape_url",
		Description: "Fetch a page and return its extracted text.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "Absolute URL to fetch."},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			rawURL, err := tools.StringArg(args, "url")
			if err != nil {
				return nil, err
			}
			page, err := s.scraper.Fetch(ctx, rawURL)
			if err != nil {
				return nil, err
			}
			n := book.add(agents.Source{URL: page.URL, Title: page.Title})
			return map[string]any{
				"n": n, "url": page.URL, "title": page.Title,
				"content": page.Content, "truncated": page.Truncated,
			}, nil
		},
	})

	registry.Register(&tools.Tool{
		Name:        "__reasoning_preamble",
		Description: "State your research plan before searching. Call at most once.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reasoning": map[string]any{"type": "string", "description": "Short plan for answering the query."},
			},
			"required": []string{"reasoning"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			reasoningText, err := tools.StringArg(args, "reasoning")
			if err != nil {
				return nil, err
			}
			book.addNote(reasoningText)
			if gen != nil {
				gen.Emit(streaming.EventAgentReasoning, map[string]any{"reasoning": reasoningText})
			}
			return map[string]any{"acknowledged": true}, nil
		},
	})

	registry.Register(&tools.Tool{
		Name:        "done",
		Description: "Finish gathering once the collected sources answer the query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{"type": "string", "description": "What the sources establish."},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"finished": true}, nil
		},
	})

	return registry
}

const gatherSystemPrompt = `You are a web research agent. Gather enough sources to answer the user's query: search, open the most promising results, and record what they establish.

Rules:
- Prefer several focused searches over one broad one.
- Scrape a result only when its snippet is not enough.
- Call done as soon as the sources cover the query. Do not pad.`
