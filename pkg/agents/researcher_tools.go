package agents

import (
	"context"
	"fmt"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/streaming"
	"github.com/we11as22/deepresearch/pkg/tools"
)

func stringSchema(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func stringArraySchema(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (r *Researcher) buildRegistry(agentID string, state *runState) *tools.Registry {
	return tools.NewRegistry(
		r.webSearchTool(agentID),
		r.scrapeURLsTool(agentID, state),
		r.writeNoteTool(agentID, state),
		r.addTodoTool(agentID),
		r.completeTodoTool(agentID),
		r.readSharedNotesTool(),
		r.readMainTool(),
		finishTool(),
	)
}

func (r *Researcher) webSearchTool(agentID string) *tools.Tool {
	return &tools.Tool{
		Name:        "web_search",
		Description: "Search the web. Returns normalised results for each query. Already-visited URLs are filtered out.",
		Parameters: objectSchema([]string{"queries"}, map[string]any{
			"queries":     stringArraySchema("Search queries to run."),
			"max_results": map[string]any{"type": "integer", "description": "Maximum results per query."},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			queries, err := tools.StringSliceArg(args, "queries")
			if err != nil {
				return nil, err
			}
			r.gen.Emit(streaming.EventSearchQueries, map[string]any{"agent_id": agentID, "queries": queries})

			out := make(map[string]any, len(queries))
			for _, query := range queries {
				results, err := r.search.Search(ctx, query)
				if err != nil {
					out[query] = map[string]any{"error": err.Error()}
					continue
				}
				var kept []map[string]any
				for _, res := range results {
					if r.visited.Seen(res.URL) {
						continue
					}
					kept = append(kept, map[string]any{
						"title": res.Title, "url": res.URL, "snippet": res.Snippet,
					})
					r.gen.Emit(streaming.EventSourceFound, map[string]any{
						"agent_id": agentID, "url": res.URL, "title": res.Title,
					})
				}
				out[query] = kept
			}
			return out, nil
		},
	}
}

func (r *Researcher) scrapeURLsTool(agentID string, state *runState) *tools.Tool {
	return &tools.Tool{
		Name:        "scrape_urls",
		Description: "Fetch pages and extract their readable text. Failed URLs are reported per entry.",
		Parameters: objectSchema([]string{"urls"}, map[string]any{
			"urls": stringArraySchema("URLs to fetch."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			urls, err := tools.StringSliceArg(args, "urls")
			if err != nil {
				return nil, err
			}

			results := make([]map[string]any, 0, len(urls))
			for _, u := range urls {
				if !r.visited.Visit(u) {
					results = append(results, map[string]any{"url": u, "skipped": "already visited"})
					continue
				}
				page, err := r.scraper.Fetch(ctx, u)
				if err != nil {
					// One broken source degrades, it does not fail the task.
					results = append(results, map[string]any{"url": u, "error": err.Error()})
					continue
				}
				state.addSource(Source{URL: u, Title: page.Title})
				results = append(results, map[string]any{
					"url": u, "title": page.Title, "content": page.Content,
				})
			}
			return results, nil
		},
	}
}

func (r *Researcher) writeNoteTool(agentID string, state *runState) *tools.Tool {
	return &tools.Tool{
		Name:        "write_note",
		Description: "Save a research note. Set share=true to make it visible to other specialists.",
		Parameters: objectSchema([]string{"title", "summary"}, map[string]any{
			"title":   stringSchema("Short note title."),
			"summary": stringSchema("What you learned, in a few sentences."),
			"urls":    stringArraySchema("Source URLs backing the note."),
			"tags":    stringArraySchema("Topic tags."),
			"share":   map[string]any{"type": "boolean", "description": "Visible to sibling agents."},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			type noteArgs struct {
				Title   string   `json:"title"`
				Summary string   `json:"summary"`
				URLs    []string `json:"urls"`
				Tags    []string `json:"tags"`
				Share   bool     `json:"share"`
			}
			parsed, err := tools.DecodeArgs[noteArgs](args)
			if err != nil {
				return nil, err
			}
			note := agentfs.Note{
				Title: parsed.Title, Summary: parsed.Summary,
				URLs: parsed.URLs, Tags: parsed.Tags,
				Shared: parsed.Share, AgentID: agentID,
			}
			slug, err := r.fs.SaveNote(note)
			if err != nil {
				return nil, fmt.Errorf("save note: %w", err)
			}
			state.addNote(note)
			for _, u := range parsed.URLs {
				state.addSource(Source{URL: u, Title: parsed.Title})
			}
			r.gen.Emit(streaming.EventAgentNote, map[string]any{
				"agent_id": agentID, "title": parsed.Title, "shared": parsed.Share,
			})
			return map[string]any{"saved": slug}, nil
		},
	}
}

func (r *Researcher) addTodoTool(agentID string) *tools.Tool {
	return &tools.Tool{
		Name:        "add_todo",
		Description: "Add follow-up tasks to your own list for later cycles.",
		Parameters: objectSchema([]string{"items"}, map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": objectSchema([]string{"title"}, map[string]any{
					"title":           stringSchema("Unique task title."),
					"objective":       stringSchema("What to find out."),
					"expected_output": stringSchema("What done looks like."),
					"priority":        map[string]any{"type": "string", "enum": []string{"low", "medium", "high", "critical"}},
				}),
			},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			type itemsArgs struct {
				Items []agentfs.Todo `json:"items"`
			}
			parsed, err := tools.DecodeArgs[itemsArgs](args)
			if err != nil {
				return nil, err
			}
			stored, err := r.fs.AddTodos(agentID, parsed.Items)
			if err != nil {
				return nil, err
			}
			r.gen.Emit(streaming.EventAgentTodo, map[string]any{"agent_id": agentID, "added": stored})
			return map[string]any{"added": stored}, nil
		},
	}
}

func (r *Researcher) completeTodoTool(agentID string) *tools.Tool {
	return &tools.Tool{
		Name:        "complete_todo",
		Description: "Mark your own todos done by title.",
		Parameters: objectSchema([]string{"titles"}, map[string]any{
			"titles": stringArraySchema("Titles of todos to mark done."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			titles, err := tools.StringSliceArg(args, "titles")
			if err != nil {
				return nil, err
			}
			done := agentfs.TodoDone
			completed := make([]string, 0, len(titles))
			for _, title := range titles {
				if err := r.fs.UpdateAgentTodo(agentID, title, agentfs.TodoPatch{Status: &done}); err != nil {
					return nil, err
				}
				completed = append(completed, title)
			}
			return map[string]any{"completed": completed}, nil
		},
	}
}

func (r *Researcher) readSharedNotesTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_shared_notes",
		Description: "Read notes shared by other specialists, optionally filtered by keyword.",
		Parameters: objectSchema(nil, map[string]any{
			"keyword": stringSchema("Filter over title, summary and tags."),
			"limit":   map[string]any{"type": "integer", "description": "Maximum notes to return."},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			keyword, _ := args["keyword"].(string)
			limit := 10
			if raw, ok := args["limit"].(float64); ok && raw > 0 {
				limit = int(raw)
			}
			return r.fs.SharedNotes(keyword, limit)
		},
	}
}

func (r *Researcher) readMainTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_main",
		Description: "Read the shared key-insights document maintained by the supervisor.",
		Parameters:  objectSchema(nil, map[string]any{}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return r.fs.ReadMain()
		},
	}
}

func finishTool() *tools.Tool {
	return &tools.Tool{
		Name:        "finish",
		Description: "Finish the task with your final summary, key findings and confidence.",
		Parameters: objectSchema([]string{"summary"}, map[string]any{
			"summary":      stringSchema("Concise task summary."),
			"key_findings": stringArraySchema("Bullet-point findings."),
			"confidence":   map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"finished": true}, nil
		},
	}
}
