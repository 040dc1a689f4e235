// Package observability wires tracing and metrics for the engine.
//
// Tracing is opt-in: when disabled, GetTracer returns the global no-op
// tracer and instrumentation costs nothing.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Span names used across the engine.
const (
	SpanLLMRequest   = "llm.request"
	SpanToolExecute  = "tool.execute"
	SpanGraphNode    = "graph.node"
	SpanAgentRun     = "agent.run"
	SpanSearchQuery  = "search.query"
	SpanScrapeFetch  = "scrape.fetch"
	SpanReportRender = "report.render"
)

// Common attribute keys.
const (
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrSessionID       = "session.id"
	AttrAgentID         = "agent.id"
	AttrNodeName        = "node.name"
	AttrToolName        = "tool.name"
)

var (
	tracerMu       sync.Mutex
	tracerProvider *sdktrace.TracerProvider
)

// InitTracing installs a tracer provider. endpoint selects the OTLP gRPC
// collector; empty means the stdout exporter.
func InitTracing(ctx context.Context, serviceName, endpoint string) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error

	if endpoint != "" {
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)

	tracerMu.Lock()
	tracerProvider = tp
	tracerMu.Unlock()

	return tp.Shutdown, nil
}

// GetTracer returns a tracer from the installed provider, or the global
// no-op tracer when tracing was never initialised.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
