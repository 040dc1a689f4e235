// Package search provides web search providers and result normalisation
// shared by the research agents and the simple search flow.
package search

import (
	"context"
	"net/url"
	"strings"
)

// Result is a single normalised search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Domain  string  `json:"domain"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Provider executes a web search query.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
	Name() string
}

// Domain extracts the registrable host from a URL, lowercased and without
// a www prefix. Unparseable URLs return the empty string.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
