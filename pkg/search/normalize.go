package search

import (
	"strings"

	"github.com/we11as22/deepresearch/pkg/config"
)

// Normalizer filters and deduplicates raw provider results.
type Normalizer struct {
	blockedDomains  map[string]bool
	blockedKeywords []string
	perDomainCap    int
}

func NewNormalizer(cfg *config.SearchConfig) *Normalizer {
	n := &Normalizer{
		blockedDomains: make(map[string]bool, len(cfg.BlockedDomains)),
		perDomainCap:   cfg.PerDomainCap,
	}
	for _, d := range cfg.BlockedDomains {
		n.blockedDomains[strings.ToLower(strings.TrimPrefix(d, "www."))] = true
	}
	for _, kw := range cfg.BlockedKeywords {
		if kw = strings.TrimSpace(strings.ToLower(kw)); kw != "" {
			n.blockedKeywords = append(n.blockedKeywords, kw)
		}
	}
	return n
}

// Normalize drops blocked and duplicate results while preserving first
// occurrence order, then caps results per domain.
func (n *Normalizer) Normalize(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	perDomain := make(map[string]int)
	out := make([]Result, 0, len(results))

	for _, r := range results {
		domain := r.Domain
		if domain == "" {
			domain = Domain(r.URL)
		}
		if domain == "" || n.blockedDomains[domain] {
			continue
		}
		if n.matchesBlockedKeyword(r) {
			continue
		}
		key := domain + "|" + canonicalURL(r.URL)
		if seen[key] {
			continue
		}
		if n.perDomainCap > 0 && perDomain[domain] >= n.perDomainCap {
			continue
		}
		seen[key] = true
		perDomain[domain]++
		r.Domain = domain
		out = append(out, r)
	}
	return out
}

func (n *Normalizer) matchesBlockedKeyword(r Result) bool {
	haystack := strings.ToLower(r.Title + " " + r.Snippet + " " + r.URL)
	for _, kw := range n.blockedKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// canonicalURL strips fragments and trailing slashes so trivially
// different URLs dedupe together.
func canonicalURL(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(raw, "#"); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "www.")
	return strings.TrimSuffix(raw, "/")
}
