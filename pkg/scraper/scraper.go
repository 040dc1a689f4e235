// Package scraper fetches web pages and documents and extracts readable
// text for the research agents. HTML goes through readability extraction;
// PDF, DOCX and XLSX documents get their text pulled directly.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.opentelemetry.io/otel/attribute"

	"github.com/we11as22/deepresearch/pkg/httpclient"
	"github.com/we11as22/deepresearch/pkg/observability"
)

const (
	// maxBodyBytes caps the downloaded payload per URL.
	maxBodyBytes = 10 << 20

	// maxContentChars caps extracted text fed back to the model.
	maxContentChars = 20000

	userAgent = "Mozilla/5.0 (compatible; deepresearch/1.0)"
)

// Page is the extracted content of one fetched URL.
type Page struct {
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Links   []string `json:"links,omitempty"`

	// Kind is the detected document kind: html, pdf, docx, xlsx or text.
	Kind string `json:"kind"`

	// Truncated is set when Content was cut at the extraction limit.
	Truncated bool `json:"truncated,omitempty"`
}

// Scraper fetches and extracts pages.
type Scraper struct {
	httpClient *httpclient.Client
	logger     *slog.Logger
}

func New(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scraper{
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(1),
			httpclient.WithFixedRetryStrategy(httpclient.ConservativeRetry),
		),
		logger: slog.Default(),
	}
}

// Fetch downloads one URL and extracts its content based on the response
// content type, falling back to the URL extension.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	tracer := observability.GetTracer("deepresearch.scraper")
	ctx, span := tracer.Start(ctx, observability.SpanScrapeFetch)
	defer span.End()
	span.SetAttributes(attribute.String("scrape.url", rawURL))

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("unsupported url: %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,*/*")

	resp, err := s.httpClient.Do(req)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("fetch %s: no response", rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	kind := detectKind(resp.Header.Get("Content-Type"), parsed.Path)
	span.SetAttributes(attribute.String("scrape.kind", kind))

	var page *Page
	switch kind {
	case "pdf":
		page, err = extractPDF(body)
	case "docx":
		page, err = extractDocx(body)
	case "xlsx":
		page, err = extractXlsx(body)
	case "html":
		page, err = s.extractHTML(body, parsed)
	default:
		page = &Page{Content: string(body), Kind: "text"}
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("extract %s: %w", rawURL, err)
	}

	page.URL = rawURL
	page.Kind = kind
	if page.Title == "" {
		page.Title = path.Base(parsed.Path)
	}
	page.Content, page.Truncated = truncate(page.Content, maxContentChars)
	return page, nil
}

func (s *Scraper) extractHTML(body []byte, pageURL *url.URL) (*Page, error) {
	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err != nil {
		return nil, fmt.Errorf("readability extraction: %w", err)
	}
	links := extractLinks(body, pageURL)
	return &Page{
		Title:   article.Title,
		Content: strings.TrimSpace(article.TextContent),
		Links:   links,
	}, nil
}

func detectKind(contentType, urlPath string) string {
	contentType = strings.ToLower(contentType)
	ext := strings.ToLower(path.Ext(urlPath))
	switch {
	case strings.Contains(contentType, "application/pdf") || ext == ".pdf":
		return "pdf"
	case strings.Contains(contentType, "wordprocessingml") || ext == ".docx":
		return "docx"
	case strings.Contains(contentType, "spreadsheetml") || ext == ".xlsx":
		return "xlsx"
	case strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml"):
		return "html"
	case strings.Contains(contentType, "text/plain"):
		return "text"
	default:
		// Servers frequently mislabel HTML. Treat unknown as HTML and let
		// readability sort it out.
		return "html"
	}
}

func truncate(content string, limit int) (string, bool) {
	runes := []rune(content)
	if len(runes) <= limit {
		return content, false
	}
	return string(runes[:limit]) + "\n[content truncated]", true
}
