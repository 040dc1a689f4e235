package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/we11as22/deepresearch/pkg/httpclient"
)

// SearxNGProvider queries a self-hosted SearxNG metasearch instance.
type SearxNGProvider struct {
	baseURL    string
	httpClient *httpclient.Client
}

func NewSearxNGProvider(baseURL string) *SearxNGProvider {
	return &SearxNGProvider{
		baseURL: baseURL,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithFixedRetryStrategy(httpclient.ConservativeRetry),
		),
	}
}

func (p *SearxNGProvider) Name() string { return "searxng" }

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (p *SearxNGProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("safesearch", "1")

	endpoint := p.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("searxng returned status %d", resp.StatusCode)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("searxng request failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("searxng request failed: no response")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read searxng response: %w", err)
	}

	var parsed searxngResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal searxng response: %w", err)
	}

	results := make([]Result, 0, maxResults)
	for _, r := range parsed.Results {
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Domain:  Domain(r.URL),
			Snippet: r.Content,
		})
	}
	return results, nil
}
