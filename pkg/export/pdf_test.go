package export

import (
	"bytes"
	"strings"
	"testing"
)

const sampleReport = `# Quantum Annealing in 2024

## Executive Summary

Hardware matured [1] while algorithms closed the gap [2].

## Hardware

D-Wave shipped 5000+ qubit systems [1]. See [the roadmap](https://example.com/roadmap) for details.

- Qubit counts grew
- Error rates fell [2]

## Sources

[1] [D-Wave announcement](https://example.com/dwave)
[2] https://arxiv.example/qa-2024
`

func TestSplitSourcesParsesEntries(t *testing.T) {
	body, sources := splitSources(sampleReport)
	if strings.Contains(strings.ToLower(body), "## sources") {
		t.Error("body must not retain the sources section")
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Number != 1 || sources[0].URL != "https://example.com/dwave" || sources[0].Text != "D-Wave announcement" {
		t.Errorf("source 1 parsed wrong: %+v", sources[0])
	}
	if sources[1].Number != 2 || sources[1].URL != "https://arxiv.example/qa-2024" {
		t.Errorf("source 2 parsed wrong: %+v", sources[1])
	}
}

func TestSplitSourcesWithoutSection(t *testing.T) {
	body, sources := splitSources("Just text, no sources.")
	if body != "Just text, no sources." || sources != nil {
		t.Errorf("unexpected split: %q %v", body, sources)
	}
}

func TestCitedNumbers(t *testing.T) {
	got := citedNumbers("a [1] b [3] c [1] d [12]")
	want := []int{1, 3, 12}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestExportProducesPDF(t *testing.T) {
	e := NewPDFExporter()
	data, err := e.Export("Quantum Annealing in 2024", sampleReport)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("output is not a PDF, starts with %q", data[:min(8, len(data))])
	}
	if len(data) < 500 {
		t.Errorf("suspiciously small PDF: %d bytes", len(data))
	}
}

func TestPlainTextStripsInlineMarkdown(t *testing.T) {
	got := plainText("a **bold** and *italic* and `code` word")
	if got != "a bold and italic and code word" {
		t.Errorf("plainText = %q", got)
	}
}
