package agentfs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var chapterTitlePattern = regexp.MustCompile(`^Chapter\s+(\d+):\s*(.+)$`)

// WriteMode selects how a draft chapter write is applied.
type WriteMode string

const (
	// WriteAppend adds a new chapter at the end.
	WriteAppend WriteMode = "append"
	// WriteReplaceChapter replaces the body of the chapter with the same
	// title, appending when none matches.
	WriteReplaceChapter WriteMode = "replace_chapter"
)

// ReadDraft returns the draft's chapters, renumbered sequentially from 1
// and deduplicated by lowercased title. A missing draft returns no
// chapters.
func (fs *SessionFS) ReadDraft() ([]Chapter, error) {
	fs.draftMu.Lock()
	defer fs.draftMu.Unlock()
	return fs.readDraftLocked()
}

// WriteDraftChapter adds or replaces one chapter and rewrites the draft in
// normalised form.
func (fs *SessionFS) WriteDraftChapter(title, content string, mode WriteMode) error {
	fs.draftMu.Lock()
	defer fs.draftMu.Unlock()

	chapters, err := fs.readDraftLocked()
	if err != nil {
		return err
	}

	replaced := false
	if mode == WriteReplaceChapter {
		for i := range chapters {
			if strings.EqualFold(chapters[i].Title, title) {
				chapters[i].Content = strings.TrimSpace(content)
				replaced = true
				break
			}
		}
	}
	if !replaced {
		chapters = append(chapters, Chapter{
			Number:  len(chapters) + 1,
			Title:   strings.TrimSpace(title),
			Content: strings.TrimSpace(content),
		})
	}

	chapters = normalizeChapters(chapters)
	return writeFileAtomic(filepath.Join(fs.dir, draftFile), []byte(renderDraft(chapters)))
}

// DraftMarkdown renders the normalised draft as one markdown document.
func (fs *SessionFS) DraftMarkdown() (string, error) {
	chapters, err := fs.ReadDraft()
	if err != nil {
		return "", err
	}
	return renderDraft(chapters), nil
}

func (fs *SessionFS) readDraftLocked() ([]Chapter, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, draftFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}
	return normalizeChapters(parseChapters(data)), nil
}

// parseChapters walks the markdown AST collecting level-2 chapter
// headings. Level-2 sections that are not chapters are dropped.
func parseChapters(source []byte) []Chapter {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	type headingLoc struct {
		number     int
		title      string
		lineStart  int
		contentPos int
		isChapter  bool
	}
	var headings []headingLoc

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 2 || heading.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		line := heading.Lines().At(0)
		headingText := strings.TrimSpace(string(source[line.Start:line.Stop]))

		lineStart := line.Start
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}

		loc := headingLoc{lineStart: lineStart, contentPos: line.Stop}
		if m := chapterTitlePattern.FindStringSubmatch(headingText); m != nil {
			loc.isChapter = true
			fmt.Sscanf(m[1], "%d", &loc.number)
			loc.title = strings.TrimSpace(m[2])
		}
		headings = append(headings, loc)
		return ast.WalkSkipChildren, nil
	})

	var chapters []Chapter
	for i, h := range headings {
		if !h.isChapter {
			continue
		}
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].lineStart
		}
		chapters = append(chapters, Chapter{
			Number:  h.number,
			Title:   h.title,
			Content: strings.TrimSpace(string(source[h.contentPos:end])),
		})
	}
	return chapters
}

// normalizeChapters drops duplicate titles (first occurrence wins) and
// renumbers the remainder contiguously from 1.
func normalizeChapters(chapters []Chapter) []Chapter {
	seen := make(map[string]bool, len(chapters))
	out := make([]Chapter, 0, len(chapters))
	for _, ch := range chapters {
		key := strings.ToLower(strings.TrimSpace(ch.Title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		ch.Number = len(out) + 1
		out = append(out, ch)
	}
	return out
}

func renderDraft(chapters []Chapter) string {
	var sb strings.Builder
	sb.WriteString("# Draft Report\n")
	for _, ch := range chapters {
		sb.WriteString(fmt.Sprintf("\n## Chapter %d: %s\n\n%s\n", ch.Number, ch.Title, ch.Content))
	}
	return sb.String()
}
