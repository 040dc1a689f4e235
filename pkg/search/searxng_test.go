package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearxNGSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("expected format=json, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"title": "Annealing review", "url": "https://a.example/paper", "content": "overview"},
			{"title": "Hardware update", "url": "https://b.example/news", "content": "chips"},
			{"title": "Extra", "url": "https://c.example/x", "content": "more"}
		]}`))
	}))
	defer srv.Close()

	results, err := NewSearxNGProvider(srv.URL).Search(context.Background(), "quantum annealing", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Annealing review" || results[0].Domain != "a.example" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestSearxNGSearchRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewSearxNGProvider(srv.URL).Search(context.Background(), "q", 5); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
