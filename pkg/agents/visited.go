package agents

import (
	"strings"
	"sync"
)

// VisitedSet tracks URLs already consumed anywhere in a session so
// different agents do not scrape or cite the same page twice.
type VisitedSet struct {
	mu   sync.Mutex
	urls map[string]bool
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]bool)}
}

func normalizeVisited(url string) string {
	url = strings.TrimSpace(strings.ToLower(url))
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "www.")
	return strings.TrimSuffix(url, "/")
}

// Visit marks a URL visited. Returns false when it was already visited.
func (v *VisitedSet) Visit(url string) bool {
	key := normalizeVisited(url)
	if key == "" {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.urls[key] {
		return false
	}
	v.urls[key] = true
	return true
}

// Seen reports whether a URL was visited without marking it.
func (v *VisitedSet) Seen(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.urls[normalizeVisited(url)]
}

// Len returns the number of visited URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.urls)
}
