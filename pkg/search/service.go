package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/embedders"
	"github.com/we11as22/deepresearch/pkg/observability"
)

// Service runs queries against the configured providers in order, falling
// back to the next provider on failure, then normalises and optionally
// reranks the merged results.
type Service struct {
	providers  []Provider
	normalizer *Normalizer
	embedder   embedders.Embedder
	maxResults int
	logger     *slog.Logger
}

// NewService wires providers from configuration. SearxNG is preferred when
// configured; Tavily serves as the fallback. The embedder may be nil, which
// disables reranking.
func NewService(cfg *config.SearchConfig, embedder embedders.Embedder) (*Service, error) {
	var providers []Provider
	if cfg.SearxNGURL != "" {
		providers = append(providers, NewSearxNGProvider(cfg.SearxNGURL))
	}
	if cfg.TavilyAPIKey != "" {
		providers = append(providers, NewTavilyProvider(cfg.TavilyAPIKey))
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no search provider configured: set SEARXNG_INSTANCE_URL or TAVILY_API_KEY")
	}
	return &Service{
		providers:  providers,
		normalizer: NewNormalizer(cfg),
		embedder:   embedder,
		maxResults: cfg.MaxResults,
		logger:     slog.Default(),
	}, nil
}

// Search executes one query. Provider failures are logged and the next
// provider is tried; the error of the last provider is returned when all
// fail.
func (s *Service) Search(ctx context.Context, query string) ([]Result, error) {
	tracer := observability.GetTracer("deepresearch.search")
	ctx, span := tracer.Start(ctx, observability.SpanSearchQuery)
	defer span.End()
	span.SetAttributes(attribute.String("search.text", query))

	var raw []Result
	var lastErr error
	for _, provider := range s.providers {
		results, err := provider.Search(ctx, query, s.maxResults*2)
		if err != nil {
			lastErr = err
			s.logger.Warn("search provider failed", "provider", provider.Name(), "error", err)
			continue
		}
		raw = results
		lastErr = nil
		break
	}
	if lastErr != nil {
		span.RecordError(lastErr)
		return nil, fmt.Errorf("all search providers failed: %w", lastErr)
	}

	normalized := s.normalizer.Normalize(raw)
	if s.embedder != nil && len(normalized) > 1 {
		reranked, err := Rerank(ctx, s.embedder, query, normalized)
		if err != nil {
			// Reranking is best effort. Keep provider order on failure.
			s.logger.Debug("rerank failed, keeping provider order", "error", err)
		} else {
			normalized = reranked
		}
	}

	if s.maxResults > 0 && len(normalized) > s.maxResults {
		normalized = normalized[:s.maxResults]
	}
	span.SetAttributes(attribute.Int("search.results", len(normalized)))
	return normalized, nil
}

// Rerank orders results by cosine similarity between the query embedding
// and each result's title plus snippet. Order among equal scores is stable.
func Rerank(ctx context.Context, embedder embedders.Embedder, query string, results []Result) ([]Result, error) {
	texts := make([]string, 0, len(results)+1)
	texts = append(texts, query)
	for _, r := range results {
		texts = append(texts, r.Title+"\n"+r.Snippet)
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(results)+1 {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(results)+1, len(vectors))
	}

	queryVec := vectors[0]
	out := make([]Result, len(results))
	copy(out, results)
	for i := range out {
		out[i].Score = embedders.Cosine(queryVec, vectors[i+1])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
