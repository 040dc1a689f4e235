// Package tools defines the tool abstraction given to reasoning agents and
// a registry that binds tool definitions to their handlers.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/observability"
)

// Handler executes a tool call. The returned value is serialized to JSON
// before being fed back to the model.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool pairs an LLM-visible definition with its handler.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON schema object describing the arguments.
	Parameters map[string]any
	Handler    Handler
}

// Registry holds the tools available to a single agent run.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the LLM tool definitions in sorted name order.
func (r *Registry) Definitions() []llms.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llms.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, llms.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool. Unknown tool names return an error rather
// than panicking so the model can correct itself.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := r.Get(name)
	if !ok {
		observability.GetGlobalMetrics().RecordToolExecution(name, fmt.Errorf("unknown tool"))
		return nil, fmt.Errorf("unknown tool: %q", name)
	}

	tracer := observability.GetTracer("deepresearch.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecute)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrToolName, name))

	result, err := tool.Handler(ctx, args)
	observability.GetGlobalMetrics().RecordToolExecution(name, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}
