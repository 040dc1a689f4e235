// Package export renders markdown research reports as paginated PDFs.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin = 15.0
	bodySize   = 11.0
	lineHeight = 5.5
)

// unicodeFontPaths are tried in order for a system font covering
// non-Latin scripts. Without one the exporter falls back to the built-in
// Helvetica, losing Cyrillic and CJK glyphs.
var unicodeFontPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
	"/Library/Fonts/Arial Unicode.ttf",
}

var (
	linkPattern     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	citationRef     = regexp.MustCompile(`\[(\d+)\]`)
	sourceLine      = regexp.MustCompile(`^(?:\[(\d+)\]|(\d+)\.)\s*(.+)$`)
	boldPattern     = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern   = regexp.MustCompile(`\*([^*]+)\*`)
	inlineCode      = regexp.MustCompile("`([^`]+)`")
	headingPattern  = regexp.MustCompile(`^(#{1,4})\s+(.*)$`)
	bulletPattern   = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)
	numberedPattern = regexp.MustCompile(`^\s*\d+\.\s+(.*)$`)
)

// Source is one entry of the trailing sources table.
type Source struct {
	Number int
	Text   string
	URL    string
}

// PDFExporter converts report markdown into a paginated PDF.
type PDFExporter struct {
	fontPath string
	fontName string
}

func NewPDFExporter() *PDFExporter {
	e := &PDFExporter{fontName: "Helvetica"}
	for _, path := range unicodeFontPaths {
		if _, err := os.Stat(path); err == nil {
			e.fontPath = path
			e.fontName = "unicode"
			break
		}
	}
	return e
}

// Export renders the markdown, appending a sources table built from the
// document's [n] citations. Links in the table are clickable.
func (e *PDFExporter) Export(title, markdown string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	if e.fontPath != "" {
		// fpdf resolves font files relative to its font location, so an
		// absolute path must be split into directory and base name.
		pdf.SetFontLocation(filepath.Dir(e.fontPath))
		pdf.AddUTF8Font(e.fontName, "", filepath.Base(e.fontPath))
		pdf.AddUTF8Font(e.fontName, "B", filepath.Base(e.fontPath))
	}
	pdf.AddPage()

	body, sources := splitSources(markdown)
	cited := citedNumbers(body)

	if title != "" {
		e.setFont(pdf, "B", 18)
		pdf.MultiCell(0, 8, title, "", "L", false)
		pdf.Ln(4)
	}
	e.renderBody(pdf, body)
	e.renderSources(pdf, sources, cited)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) setFont(pdf *fpdf.Fpdf, style string, size float64) {
	pdf.SetFont(e.fontName, style, size)
}

func (e *PDFExporter) renderBody(pdf *fpdf.Fpdf, body string) {
	inCode := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimRight(line, " \t")

		if strings.HasPrefix(strings.TrimSpace(trimmed), "```") {
			inCode = !inCode
			pdf.Ln(2)
			continue
		}
		if inCode {
			pdf.SetFont("Courier", "", 9)
			pdf.MultiCell(0, 4.5, trimmed, "", "L", false)
			continue
		}

		switch {
		case trimmed == "":
			pdf.Ln(2.5)
		case headingPattern.MatchString(trimmed):
			m := headingPattern.FindStringSubmatch(trimmed)
			level := len(m[1])
			size := 16.0 - float64(level)*1.5
			pdf.Ln(2)
			e.setFont(pdf, "B", size)
			pdf.MultiCell(0, size*0.45, plainText(m[2]), "", "L", false)
			pdf.Ln(1)
		case bulletPattern.MatchString(trimmed):
			m := bulletPattern.FindStringSubmatch(trimmed)
			e.writeRich(pdf, "•  "+m[1])
		case numberedPattern.MatchString(trimmed):
			e.writeRich(pdf, strings.TrimSpace(trimmed))
		default:
			e.writeRich(pdf, trimmed)
		}
	}
}

// writeRich writes one paragraph line, turning markdown links into
// clickable link text.
func (e *PDFExporter) writeRich(pdf *fpdf.Fpdf, line string) {
	e.setFont(pdf, "", bodySize)

	rest := line
	for {
		loc := linkPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		before := rest[:loc[0]]
		text := rest[loc[2]:loc[3]]
		url := rest[loc[4]:loc[5]]
		if before != "" {
			pdf.Write(lineHeight, plainText(before))
		}
		pdf.SetTextColor(0, 0, 200)
		pdf.WriteLinkString(lineHeight, text, url)
		pdf.SetTextColor(0, 0, 0)
		rest = rest[loc[1]:]
	}
	if rest != "" {
		pdf.Write(lineHeight, plainText(rest))
	}
	pdf.Ln(lineHeight)
}

func (e *PDFExporter) renderSources(pdf *fpdf.Fpdf, sources []Source, cited []int) {
	if len(sources) == 0 {
		return
	}
	pdf.Ln(6)
	e.setFont(pdf, "B", 13)
	pdf.MultiCell(0, 6, "Sources", "", "L", false)
	pdf.Ln(1)

	citedSet := map[int]bool{}
	for _, n := range cited {
		citedSet[n] = true
	}

	e.setFont(pdf, "", 9.5)
	for _, src := range sources {
		// Keep every listed source; mark the ones the text cites.
		marker := " "
		if citedSet[src.Number] {
			marker = "*"
		}
		label := fmt.Sprintf("[%d]%s ", src.Number, marker)
		pdf.Write(4.8, label)
		if src.URL != "" {
			pdf.SetTextColor(0, 0, 200)
			pdf.WriteLinkString(4.8, src.Text, src.URL)
			pdf.SetTextColor(0, 0, 0)
		} else {
			pdf.Write(4.8, src.Text)
		}
		pdf.Ln(4.8)
	}
}

// splitSources separates the trailing Sources section from the body and
// parses its entries.
func splitSources(markdown string) (string, []Source) {
	lower := strings.ToLower(markdown)
	idx := strings.LastIndex(lower, "## sources")
	if idx < 0 {
		return markdown, nil
	}
	body := markdown[:idx]
	section := markdown[idx:]

	var sources []Source
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		m := sourceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		numText := m[1]
		if numText == "" {
			numText = m[2]
		}
		var n int
		fmt.Sscanf(numText, "%d", &n)

		entry := m[3]
		text, url := entry, ""
		if lm := linkPattern.FindStringSubmatch(entry); lm != nil {
			text, url = lm[1], lm[2]
		} else if strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://") {
			url = strings.Fields(entry)[0]
		}
		sources = append(sources, Source{Number: n, Text: text, URL: url})
	}
	return body, sources
}

func citedNumbers(body string) []int {
	var numbers []int
	seen := map[int]bool{}
	for _, m := range citationRef.FindAllStringSubmatch(body, -1) {
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		if n > 0 && !seen[n] {
			seen[n] = true
			numbers = append(numbers, n)
		}
	}
	return numbers
}

// plainText strips inline markdown the renderer does not style.
func plainText(s string) string {
	s = boldPattern.ReplaceAllString(s, "$1")
	s = italicPattern.ReplaceAllString(s, "$1")
	s = inlineCode.ReplaceAllString(s, "$1")
	return s
}
