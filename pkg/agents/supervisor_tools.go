package agents

import (
	"context"
	"fmt"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/streaming"
	"github.com/we11as22/deepresearch/pkg/tools"
)

func (s *Supervisor) readMainDocumentTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_main_document",
		Description: "Read the shared key-insights document.",
		Parameters: objectSchema(nil, map[string]any{
			"max_length": map[string]any{"type": "integer", "description": "Truncate to this many characters."},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			content, err := s.fs.ReadMain()
			if err != nil {
				return nil, err
			}
			if raw, ok := args["max_length"].(float64); ok && raw > 0 {
				content = shorten(content, int(raw))
			}
			return content, nil
		},
	}
}

func (s *Supervisor) writeMainDocumentTool() *tools.Tool {
	return &tools.Tool{
		Name:        "write_main_document",
		Description: "Append a section of key insights to the shared main document.",
		Parameters: objectSchema([]string{"section_title", "content"}, map[string]any{
			"section_title": stringSchema("Section heading."),
			"content":       stringSchema("Section body in markdown."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			title, err := tools.StringArg(args, "section_title")
			if err != nil {
				return nil, err
			}
			content, err := tools.StringArg(args, "content")
			if err != nil {
				return nil, err
			}
			if err := s.fs.AppendMainSection(title, content); err != nil {
				return nil, err
			}
			return map[string]any{"written": title}, nil
		},
	}
}

func (s *Supervisor) readDraftReportTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_draft_report",
		Description: "Read the current draft report chapters.",
		Parameters:  objectSchema(nil, map[string]any{}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return s.fs.DraftMarkdown()
		},
	}
}

func (s *Supervisor) writeDraftReportTool() *tools.Tool {
	return &tools.Tool{
		Name: "write_draft_report",
		Description: "Add or replace one chapter of the draft report. Structure the content " +
			"with Summary, Key Findings and Sources subsections.",
		Parameters: objectSchema([]string{"section_title", "content"}, map[string]any{
			"section_title": stringSchema("Chapter title, without the Chapter N prefix."),
			"content":       stringSchema("Chapter body in markdown."),
			"mode":          map[string]any{"type": "string", "enum": []string{"append", "replace_chapter"}},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			title, err := tools.StringArg(args, "section_title")
			if err != nil {
				return nil, err
			}
			content, err := tools.StringArg(args, "content")
			if err != nil {
				return nil, err
			}
			mode := agentfs.WriteAppend
			if m, _ := args["mode"].(string); m == string(agentfs.WriteReplaceChapter) {
				mode = agentfs.WriteReplaceChapter
			}
			if err := s.fs.WriteDraftChapter(title, content, mode); err != nil {
				return nil, err
			}
			s.gen.Emit(streaming.EventStatus, map[string]any{"status": "draft_updated", "chapter": title})
			return map[string]any{"chapter": title, "mode": string(mode)}, nil
		},
	}
}

func (s *Supervisor) readSupervisorFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_supervisor_file",
		Description: "Read your private notebook.",
		Parameters:  objectSchema(nil, map[string]any{}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return s.fs.ReadSupervisorNotebook()
		},
	}
}

func (s *Supervisor) writeSupervisorNoteTool() *tools.Tool {
	return &tools.Tool{
		Name:        "write_supervisor_note",
		Description: "Append a note to your private notebook.",
		Parameters: objectSchema([]string{"content"}, map[string]any{
			"content": stringSchema("Note text."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			content, err := tools.StringArg(args, "content")
			if err != nil {
				return nil, err
			}
			existing, err := s.fs.ReadSupervisorNotebook()
			if err != nil {
				return nil, err
			}
			if existing != "" {
				existing += "\n"
			}
			if err := s.fs.WriteSupervisorNotebook(existing + content + "\n"); err != nil {
				return nil, err
			}
			return map[string]any{"saved": true}, nil
		},
	}
}

func (s *Supervisor) reviewAgentProgressTool() *tools.Tool {
	return &tools.Tool{
		Name:        "review_agent_progress",
		Description: "Inspect one agent's todo progress: counts by status and todo summary.",
		Parameters: objectSchema([]string{"agent_id"}, map[string]any{
			"agent_id": stringSchema("Agent to inspect."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			agentID, err := tools.StringArg(args, "agent_id")
			if err != nil {
				return nil, err
			}
			file, err := s.fs.ReadAgentFile(agentID)
			if err != nil {
				return nil, err
			}
			counts := file.CountByStatus()
			total := len(file.Todos)
			percent := 0
			if total > 0 {
				percent = counts[agentfs.TodoDone] * 100 / total
			}

			todos := make([]map[string]any, 0, total)
			for _, todo := range file.Todos {
				todos = append(todos, map[string]any{
					"title": todo.Title, "status": string(todo.Status),
					"priority": string(todo.Priority), "note": todo.Note,
				})
			}
			return map[string]any{
				"agent_id":     agentID,
				"percent_done": percent,
				"pending":      counts[agentfs.TodoPending],
				"in_progress":  counts[agentfs.TodoInProgress],
				"done":         counts[agentfs.TodoDone],
				"todos":        todos,
			}, nil
		},
	}
}

func (s *Supervisor) createAgentTodoTool(state *supervisorState) *tools.Tool {
	return &tools.Tool{
		Name:        "create_agent_todo",
		Description: "Assign a new task to an agent. Duplicate titles are auto-qualified.",
		Parameters: objectSchema([]string{"agent_id", "title", "objective"}, map[string]any{
			"agent_id":        stringSchema("Target agent."),
			"reasoning":       stringSchema("Why this task is needed."),
			"title":           stringSchema("Unique task title."),
			"objective":       stringSchema("What to find out."),
			"expected_output": stringSchema("What done looks like."),
			"priority":        map[string]any{"type": "string", "enum": []string{"low", "medium", "high", "critical"}},
			"guidance":        stringSchema("Hints for the agent."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			type createArgs struct {
				AgentID        string `json:"agent_id"`
				Reasoning      string `json:"reasoning"`
				Title          string `json:"title"`
				Objective      string `json:"objective"`
				ExpectedOutput string `json:"expected_output"`
				Priority       string `json:"priority"`
				Guidance       string `json:"guidance"`
			}
			parsed, err := tools.DecodeArgs[createArgs](args)
			if err != nil {
				return nil, err
			}
			stored, err := s.fs.AddTodos(parsed.AgentID, []agentfs.Todo{{
				Reasoning: parsed.Reasoning, Title: parsed.Title,
				Objective: parsed.Objective, ExpectedOutput: parsed.ExpectedOutput,
				Priority: agentfs.Priority(parsed.Priority), Guidance: parsed.Guidance,
			}})
			if err != nil {
				return nil, err
			}
			state.mutatedTodos = true
			s.gen.Emit(streaming.EventAgentTodo, map[string]any{
				"agent_id": parsed.AgentID, "added": stored, "by": "supervisor",
			})
			return map[string]any{"created": stored[0]}, nil
		},
	}
}

func (s *Supervisor) updateAgentTodoTool(state *supervisorState) *tools.Tool {
	return &tools.Tool{
		Name:        "update_agent_todo",
		Description: "Patch an agent's todo matched by title.",
		Parameters: objectSchema([]string{"agent_id", "title"}, map[string]any{
			"agent_id":        stringSchema("Target agent."),
			"title":           stringSchema("Title of the todo to update."),
			"status":          map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "done"}},
			"note":            stringSchema("Progress note."),
			"objective":       stringSchema("Revised objective."),
			"expected_output": stringSchema("Revised expected output."),
			"sources_needed":  stringArraySchema("Revised source requirements."),
			"priority":        map[string]any{"type": "string", "enum": []string{"low", "medium", "high", "critical"}},
			"url":             stringSchema("Associated URL."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			agentID, err := tools.StringArg(args, "agent_id")
			if err != nil {
				return nil, err
			}
			title, err := tools.StringArg(args, "title")
			if err != nil {
				return nil, err
			}

			var patch agentfs.TodoPatch
			if v, ok := args["status"].(string); ok {
				status := agentfs.TodoStatus(v)
				patch.Status = &status
			}
			if v, ok := args["note"].(string); ok {
				patch.Note = &v
			}
			if v, ok := args["objective"].(string); ok {
				patch.Objective = &v
			}
			if v, ok := args["expected_output"].(string); ok {
				patch.ExpectedOutput = &v
			}
			if v, ok := args["sources_needed"]; ok {
				list, err := tools.StringSliceArg(map[string]any{"sources_needed": v}, "sources_needed")
				if err != nil {
					return nil, err
				}
				patch.SourcesNeeded = &list
			}
			if v, ok := args["priority"].(string); ok {
				priority := agentfs.Priority(v)
				patch.Priority = &priority
			}
			if v, ok := args["url"].(string); ok {
				patch.URL = &v
			}

			if err := s.fs.UpdateAgentTodo(agentID, title, patch); err != nil {
				return nil, fmt.Errorf("update todo: %w", err)
			}
			state.mutatedTodos = true
			return map[string]any{"updated": title}, nil
		},
	}
}

func makeFinalDecisionTool() *tools.Tool {
	return &tools.Tool{
		Name:        "make_final_decision",
		Description: "End this review with your verdict: continue research, replan, or finish.",
		Parameters: objectSchema([]string{"reasoning", "decision"}, map[string]any{
			"reasoning": stringSchema("One paragraph of reasoning."),
			"decision":  map[string]any{"type": "string", "enum": []string{"continue", "replan", "finish"}},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	}
}
