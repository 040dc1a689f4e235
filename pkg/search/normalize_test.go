package search

import (
	"context"
	"testing"

	"github.com/we11as22/deepresearch/pkg/config"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(&config.SearchConfig{
		BlockedDomains:  []string{"spam.example"},
		BlockedKeywords: []string{"casino"},
		PerDomainCap:    2,
	})
}

func TestNormalizePreservesFirstOccurrenceOrder(t *testing.T) {
	in := []Result{
		{Title: "b", URL: "https://b.example/1"},
		{Title: "a", URL: "https://a.example/1"},
		{Title: "b dup", URL: "https://b.example/1"},
		{Title: "a2", URL: "https://a.example/2"},
	}
	out := testNormalizer().Normalize(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(out), out)
	}
	if out[0].URL != "https://b.example/1" || out[1].URL != "https://a.example/1" || out[2].URL != "https://a.example/2" {
		t.Errorf("order not preserved: %+v", out)
	}
}

func TestNormalizeDeduplicatesTrivialURLVariants(t *testing.T) {
	in := []Result{
		{URL: "https://a.example/page"},
		{URL: "https://a.example/page/"},
		{URL: "https://www.a.example/page#section"},
	}
	out := testNormalizer().Normalize(in)
	if len(out) != 1 {
		t.Errorf("expected 1 result after dedupe, got %d: %+v", len(out), out)
	}
}

func TestNormalizePerDomainCap(t *testing.T) {
	in := []Result{
		{URL: "https://a.example/1"},
		{URL: "https://a.example/2"},
		{URL: "https://a.example/3"},
		{URL: "https://b.example/1"},
	}
	out := testNormalizer().Normalize(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	counts := map[string]int{}
	for _, r := range out {
		counts[r.Domain]++
	}
	if counts["a.example"] != 2 {
		t.Errorf("per-domain cap not applied: %v", counts)
	}
}

func TestNormalizeBlocklists(t *testing.T) {
	in := []Result{
		{URL: "https://spam.example/1"},
		{Title: "Best casino tips", URL: "https://ok.example/1"},
		{Title: "Fine", URL: "https://ok.example/2"},
		{URL: "not a url at all", Title: "junk"},
	}
	out := testNormalizer().Normalize(in)
	if len(out) != 1 || out[0].URL != "https://ok.example/2" {
		t.Errorf("blocklist filtering wrong: %+v", out)
	}
}

type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func (f *fixedEmbedder) ModelName() string { return "fixed" }

func TestRerankOrdersByQuerySimilarity(t *testing.T) {
	embedder := &fixedEmbedder{vectors: map[string][]float32{
		"quantum computing":   {1, 0},
		"relevant\non topic":  {0.9, 0.1},
		"offtopic\nelsewhere": {0, 1},
	}}
	results := []Result{
		{Title: "offtopic", Snippet: "elsewhere"},
		{Title: "relevant", Snippet: "on topic"},
	}
	out, err := Rerank(context.Background(), embedder, "quantum computing", results)
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	if out[0].Title != "relevant" {
		t.Errorf("expected relevant first, got %+v", out)
	}
	if out[0].Score <= out[1].Score {
		t.Errorf("scores not descending: %+v", out)
	}
}

func TestDomain(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://www.Example.com/path", "example.com"},
		{"http://sub.example.com:8080/x", "sub.example.com"},
		{"not a url", ""},
	}
	for _, tc := range cases {
		if got := Domain(tc.in); got != tc.want {
			t.Errorf("Domain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
