package orchestrator

import (
	"fmt"
	"strings"

	"github.com/we11as22/deepresearch/pkg/llms"
)

var defaultClarificationQuestions = []string{
	"What aspects of this topic matter most to you?",
	"Is there a time period or region you want the research to focus on?",
	"How will you use the results (overview, decision, deep technical detail)?",
}

func clarificationSystemPrompt(language string) string {
	return fmt.Sprintf(`You decide whether a research query needs clarification before a multi-agent deep research run.

Ask 2-3 short questions ONLY about the query itself: scope, focus, depth, time period. Never ask about unrelated topics. Write the questions in %s.

Respond with JSON: {"needed": true|false, "questions": ["..."], "reasoning": "..."}`, language)
}

func clarificationBlock(questions []string, language string) string {
	var sb strings.Builder
	if language == "russian" {
		sb.WriteString("Прежде чем начать глубокое исследование, уточните, пожалуйста:\n\n")
	} else {
		sb.WriteString("Before I start the deep research, please clarify:\n\n")
	}
	for i, q := range questions {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, q))
	}
	return sb.String()
}

const analyzeSystemPrompt = `You analyze research queries for a multi-agent system.

Break the query into 2-6 distinct research topics, judge its complexity (simple, moderate, complex) and estimate how many specialist agents it needs (1-5).

Respond with JSON: {"topics": ["..."], "complexity": "...", "estimated_agents": N, "reasoning": "..."}`

func analyzeUserPrompt(state *SessionState) string {
	var sb strings.Builder
	sb.WriteString("Query: " + state.OriginalQuery + "\n")
	if state.ClarificationAnswers != "" {
		sb.WriteString("\nUser clarification: " + state.ClarificationAnswers + "\n")
	}
	if state.MemoryContext != "" {
		sb.WriteString("\nPast research context:\n" + shortenText(state.MemoryContext, 1000) + "\n")
	}
	if state.DeepSearchResult != "" {
		sb.WriteString("\nInitial search findings:\n" + shortenText(state.DeepSearchResult, 2000) + "\n")
	}
	return sb.String()
}

func planSystemPrompt(language string) string {
	return fmt.Sprintf(`You plan multi-agent research. Produce a prioritised topic list covering the query from distinct angles, with a short description per topic and a coordination strategy. Plan in %s.

Respond with JSON: {"reasoning": "...", "topics": [{"name": "...", "description": "...", "priority": "low|medium|high", "estimated_sources": N}], "coordination_strategy": "..."}`, language)
}

func planUserPrompt(state *SessionState) string {
	var sb strings.Builder
	sb.WriteString("Query: " + state.OriginalQuery + "\n")
	if state.ClarificationAnswers != "" {
		sb.WriteString("User clarification: " + state.ClarificationAnswers + "\n")
	}
	sb.WriteString("\nAnalyzed topics:\n")
	for _, topic := range state.ResearchTopics {
		sb.WriteString("- " + topic + "\n")
	}
	return sb.String()
}

func profilesSystemPrompt(language string, n int) string {
	return fmt.Sprintf(`You design a team of exactly %d specialist research agents.

Rules:
- Each agent covers a distinct angle; no two agents overlap.
- Each agent gets 2-3 concrete todos with unique titles across the whole team.
- Every todo objective must restate the research query it serves.
- Write roles and todos in %s.

Respond with JSON: {"agents": [{"agent_id": "...", "role": "...", "expertise": "...", "personality": "...", "todos": [{"title": "...", "objective": "...", "expected_output": "...", "priority": "low|medium|high|critical", "reasoning": "..."}]}]}`, n, language)
}

func profilesUserPrompt(state *SessionState, n int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Create %d agents for this research.\n\n", n))
	sb.WriteString("Query: " + state.OriginalQuery + "\n")
	if state.ClarificationAnswers != "" {
		sb.WriteString("User clarification: " + state.ClarificationAnswers + "\n")
	}
	if state.ResearchPlan != "" {
		sb.WriteString("\nResearch plan:\n" + state.ResearchPlan + "\n")
	}
	return sb.String()
}

func compressSystemPrompt(language string) string {
	return fmt.Sprintf(`You compress research findings into an 800-1200 word synthesis for a report writer, in %s. Keep the concrete facts, numbers and source URLs; drop process chatter.

Respond with JSON: {"synthesis": "...", "key_themes": ["..."], "important_sources": ["..."]}`, language)
}

func compressUserPrompt(state *SessionState, draft string) string {
	var sb strings.Builder
	sb.WriteString("Query: " + state.OriginalQuery + "\n\nFindings:\n")
	for _, f := range state.AgentFindings {
		sb.WriteString(fmt.Sprintf("\n[%s] %s (confidence %s)\n%s\n", f.AgentID, f.Topic, f.Confidence, shortenText(f.Summary, 1500)))
		for _, src := range f.Sources {
			sb.WriteString("  - " + src.URL + "\n")
		}
	}
	if draft != "" {
		sb.WriteString("\nDraft report:\n" + llms.TruncateTokens(draft, 1500) + "\n")
	}
	return sb.String()
}

func reportSystemPrompt(language string) string {
	return fmt.Sprintf(`You write the final research report, in %s.

Structure: an executive summary (200-400 words), at least 3 body sections (300-800 words each), a conclusion (200-400 words) and the source list. Ground every section in the provided research; do not invent facts.

Respond with JSON: {"executive_summary": "...", "sections": [{"title": "...", "content": "..."}], "conclusion": "...", "sources": ["..."], "confidence": "low|medium|high"}`, language)
}

func reportUserPrompt(state *SessionState) string {
	var sb strings.Builder
	sb.WriteString("Query: " + state.OriginalQuery + "\n")
	if state.ClarificationAnswers != "" {
		sb.WriteString("User clarification: " + state.ClarificationAnswers + "\n")
	}
	if state.ResearchPlan != "" {
		sb.WriteString("\nResearch plan:\n" + state.ResearchPlan + "\n")
	}
	if state.CompressedResearch != "" {
		sb.WriteString("\nCompressed research:\n" + state.CompressedResearch + "\n")
	}
	return sb.String()
}
