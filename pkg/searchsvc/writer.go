package searchsvc

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/we11as22/deepresearch/pkg/agents"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
)

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// write synthesises the markdown answer from gathered sources. Citations
// use the source numbers assigned during gathering; a Sources section is
// appended when the model leaves it out.
func (s *Service) write(ctx context.Context, query, language string, gathered *GatherResult) (string, llms.Usage, error) {
	messages := []protocol.Message{
		protocol.SystemMessage(writerSystemPrompt(language)),
		protocol.UserMessage(writerUserPrompt(query, gathered)),
	}
	resp, err := s.llm.Generate(ctx, messages, nil)
	if err != nil {
		return "", llms.Usage{}, fmt.Errorf("writer call failed: %w", err)
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		answer = fallbackAnswer(gathered)
	}
	answer = ensureSourcesSection(answer, gathered.Sources)
	return answer, resp.Usage, nil
}

func writerSystemPrompt(language string) string {
	return fmt.Sprintf(`You write concise, well-structured markdown answers from research notes.

Rules:
- Answer in %s.
- Every factual claim carries an inline citation [n] referring to the numbered sources.
- End with a "## Sources" section listing every cited source as "[n] [Title](URL)".
- Do not invent sources or cite numbers you were not given.`, language)
}

func writerUserPrompt(query string, gathered *GatherResult) string {
	var sb strings.Builder
	sb.WriteString("Query: " + query + "\n")
	if gathered.Text != "" {
		sb.WriteString("\nResearch summary:\n" + gathered.Text + "\n")
	}
	if len(gathered.Notes) > 0 {
		sb.WriteString("\nResearch notes:\n")
		for _, note := range gathered.Notes {
			sb.WriteString("- " + note + "\n")
		}
	}
	sb.WriteString("\nNumbered sources:\n")
	if len(gathered.Sources) == 0 {
		sb.WriteString("(none gathered - answer from general knowledge and say so)\n")
	}
	for i, src := range gathered.Sources {
		sb.WriteString(fmt.Sprintf("[%d] %s - %s\n", i+1, src.Title, src.URL))
		if src.Snippet != "" {
			sb.WriteString("    " + src.Snippet + "\n")
		}
	}
	sb.WriteString("\nWrite the answer now.")
	return sb.String()
}

// ensureSourcesSection appends a Sources section listing the cited
// sources when the model omitted one.
func ensureSourcesSection(answer string, sources []agents.Source) string {
	if len(sources) == 0 || strings.Contains(strings.ToLower(answer), "## sources") {
		return answer
	}
	cited := map[int]bool{}
	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		var n int
		fmt.Sscanf(match[1], "%d", &n)
		if n >= 1 && n <= len(sources) {
			cited[n] = true
		}
	}
	if len(cited) == 0 {
		return answer
	}

	var sb strings.Builder
	sb.WriteString(answer)
	sb.WriteString("\n\n## Sources\n\n")
	for n := 1; n <= len(sources); n++ {
		if !cited[n] {
			continue
		}
		src := sources[n-1]
		title := src.Title
		if title == "" {
			title = src.URL
		}
		sb.WriteString(fmt.Sprintf("[%d] [%s](%s)\n", n, title, src.URL))
	}
	return sb.String()
}

func fallbackAnswer(gathered *GatherResult) string {
	if gathered.Text != "" {
		return gathered.Text
	}
	var sb strings.Builder
	sb.WriteString("The search did not produce a written answer. Gathered sources:\n\n")
	for i, src := range gathered.Sources {
		sb.WriteString(fmt.Sprintf("[%d] %s - %s\n", i+1, src.Title, src.URL))
	}
	return sb.String()
}
