// Package searchsvc is the two-stage search service: a classifier that
// picks the answering mode and rewrites the query standalone, and a
// budgeted research agent plus writer that produce a cited markdown
// answer for web and deep_search modes.
package searchsvc

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/we11as22/deepresearch/pkg/agents"
	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/observability"
	"github.com/we11as22/deepresearch/pkg/scraper"
	"github.com/we11as22/deepresearch/pkg/search"
	"github.com/we11as22/deepresearch/pkg/session"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

// Service answers web and deep_search queries.
type Service struct {
	llm        llms.Provider
	search     *search.Service
	scraper    *scraper.Scraper
	classifier *Classifier
	cfg        *config.ResearchConfig
	logger     *slog.Logger
}

func New(llm llms.Provider, searchService *search.Service, sc *scraper.Scraper, cfg *config.ResearchConfig) *Service {
	return &Service{
		llm:        llm,
		search:     searchService,
		scraper:    sc,
		classifier: NewClassifier(llm),
		cfg:        cfg,
		logger:     slog.Default(),
	}
}

// Classifier exposes the mode classifier for the orchestrator.
func (s *Service) Classifier() *Classifier { return s.classifier }

// Answer is the search service output.
type Answer struct {
	Report   string
	Sources  []agents.Source
	Language string
	Usage    llms.Usage
	Degraded bool
}

// Run answers a query in the given mode. The query should already be the
// classifier's standalone rewrite.
func (s *Service) Run(ctx context.Context, query string, mode session.Mode, gen *streaming.Generator) (*Answer, error) {
	tracer := observability.GetTracer("deepresearch.searchsvc")
	ctx, span := tracer.Start(ctx, "searchsvc.run", trace.WithAttributes(
		attribute.String("mode", string(mode)),
	))
	defer span.End()

	budget, mandatoryPreamble := s.budget(mode)
	language := DetectLanguage(query)

	gathered, err := s.gather(ctx, query, budget, mandatoryPreamble, gen)
	if err != nil {
		return nil, err
	}

	report, usage, err := s.write(ctx, query, language, gathered)
	if err != nil {
		return nil, fmt.Errorf("search answer for mode %s: %w", mode, err)
	}

	span.SetAttributes(
		attribute.Int("sources", len(gathered.Sources)),
		attribute.Int("report_chars", len(report)),
	)
	return &Answer{
		Report:   report,
		Sources:  gathered.Sources,
		Language: language,
		Usage:    usage,
		Degraded: gathered.Degraded,
	}, nil
}

// budget maps a mode onto its iteration budget. Balanced mode requires
// the reasoning preamble before the first search.
func (s *Service) budget(mode session.Mode) (iterations int, mandatoryPreamble bool) {
	switch mode {
	case session.ModeWeb:
		return s.cfg.Speed.MaxIterations, false
	case session.ModeDeepSearch:
		return s.cfg.Balanced.MaxIterations, true
	case session.ModeDeepResearch:
		return s.cfg.Quality.MaxIterations, false
	default:
		return s.cfg.Speed.MaxIterations, false
	}
}
