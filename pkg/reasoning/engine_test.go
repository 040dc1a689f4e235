package reasoning

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/tools"
)

func noteRegistry(t *testing.T) (*tools.Registry, *[]string) {
	t.Helper()
	var notes []string
	registry := tools.NewRegistry(
		&tools.Tool{
			Name: "write_note",
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				text, err := tools.StringArg(args, "text")
				if err != nil {
					return nil, err
				}
				notes = append(notes, text)
				return map[string]any{"saved": true}, nil
			},
		},
		&tools.Tool{
			Name: "finish",
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				return args, nil
			},
		},
	)
	return registry, &notes
}

func TestRunStopsOnPlainTextAnswer(t *testing.T) {
	registry, _ := noteRegistry(t)
	provider := llms.NewScriptedProvider(llms.TextResponse("final answer"))
	engine := NewEngine(provider, registry)

	transcript, err := engine.Run(context.Background(), Config{
		SystemPrompt:  "system",
		UserPrompt:    "question",
		MaxIterations: 5,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if transcript.Text != "final answer" {
		t.Errorf("unexpected text: %q", transcript.Text)
	}
	if transcript.Degraded {
		t.Error("text answer within budget must not be degraded")
	}
	if transcript.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", transcript.Iterations)
	}
}

func TestRunTerminalToolEndsRun(t *testing.T) {
	registry, notes := noteRegistry(t)
	provider := llms.NewScriptedProvider(
		llms.ToolCallResponse(protocol.ToolCall{Name: "write_note", Arguments: map[string]any{"text": "a fact"}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "finish", Arguments: map[string]any{"summary": "done"}}),
	)
	engine := NewEngine(provider, registry)

	transcript, err := engine.Run(context.Background(), Config{
		UserPrompt:    "research",
		MaxIterations: 5,
		TerminalTools: []string{"finish"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if transcript.Terminal == nil || transcript.Terminal.Tool != "finish" {
		t.Fatalf("expected finish terminal, got %+v", transcript.Terminal)
	}
	if transcript.Degraded {
		t.Error("terminal finish must not be degraded")
	}
	if len(*notes) != 1 || (*notes)[0] != "a fact" {
		t.Errorf("note tool not executed: %v", *notes)
	}
	if transcript.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", transcript.Iterations)
	}
}

func TestRunPreservesToolCallIDs(t *testing.T) {
	registry, _ := noteRegistry(t)
	call := protocol.ToolCall{ID: "call_abc123", Name: "write_note", Arguments: map[string]any{"text": "x"}}
	provider := llms.NewScriptedProvider(
		&llms.Response{ToolCalls: []protocol.ToolCall{call}},
		llms.TextResponse("done"),
	)
	engine := NewEngine(provider, registry)

	transcript, err := engine.Run(context.Background(), Config{UserPrompt: "go", MaxIterations: 3})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var toolMsg *protocol.Message
	for i := range transcript.Messages {
		if transcript.Messages[i].Role == protocol.RoleTool {
			toolMsg = &transcript.Messages[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool result message in transcript")
	}
	if toolMsg.ToolCallID != "call_abc123" {
		t.Errorf("tool result id %q does not match call id", toolMsg.ToolCallID)
	}
}

func TestRunForcedFinishWhenBudgetExhausted(t *testing.T) {
	registry, _ := noteRegistry(t)
	provider := llms.NewScriptedProvider(
		llms.ToolCallResponse(protocol.ToolCall{Name: "write_note", Arguments: map[string]any{"text": "1"}}),
		llms.ToolCallResponse(protocol.ToolCall{Name: "write_note", Arguments: map[string]any{"text": "2"}}),
		llms.TextResponse("best effort summary"),
	)
	engine := NewEngine(provider, registry)

	transcript, err := engine.Run(context.Background(), Config{
		UserPrompt:    "go",
		MaxIterations: 2,
		TerminalTools: []string{"finish"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !transcript.Degraded {
		t.Error("exhausted budget must mark transcript degraded")
	}
	if transcript.Text != "best effort summary" {
		t.Errorf("unexpected forced finish text: %q", transcript.Text)
	}
	// The forced completion must carry the forced-finish nudge.
	last := provider.Calls[len(provider.Calls)-1]
	nudge := last[len(last)-1]
	if nudge.Role != protocol.RoleUser || !strings.Contains(nudge.Content, "final answer") {
		t.Errorf("forced finish prompt missing, got %+v", nudge)
	}
}

func TestRunToolErrorFedBackToModel(t *testing.T) {
	registry, _ := noteRegistry(t)
	provider := llms.NewScriptedProvider(
		// missing required "text" argument
		llms.ToolCallResponse(protocol.ToolCall{Name: "write_note", Arguments: map[string]any{}}),
		llms.TextResponse("recovered"),
	)
	engine := NewEngine(provider, registry)

	transcript, err := engine.Run(context.Background(), Config{UserPrompt: "go", MaxIterations: 3})
	if err != nil {
		t.Fatalf("tool failure must not abort the run: %v", err)
	}
	if transcript.Text != "recovered" {
		t.Errorf("unexpected text: %q", transcript.Text)
	}

	var errPayload map[string]any
	for _, msg := range transcript.Messages {
		if msg.Role == protocol.RoleTool {
			if err := json.Unmarshal([]byte(msg.Content), &errPayload); err != nil {
				t.Fatalf("tool error payload is not JSON: %q", msg.Content)
			}
		}
	}
	if _, ok := errPayload["error"]; !ok {
		t.Errorf("tool error payload missing error key: %v", errPayload)
	}
}

func TestRunContextCancellation(t *testing.T) {
	registry, _ := noteRegistry(t)
	provider := llms.NewScriptedProvider(llms.TextResponse("unused"))
	engine := NewEngine(provider, registry)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, Config{UserPrompt: "go", MaxIterations: 3})
	if err == nil {
		t.Fatal("expected context error")
	}
}
