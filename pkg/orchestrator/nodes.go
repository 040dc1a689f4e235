package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/we11as22/deepresearch/pkg/agentfs"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/protocol"
	"github.com/we11as22/deepresearch/pkg/session"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

const (
	structuredRetries    = 2
	clarificationTimeout = 30 * time.Second
	reportLengthFloor    = 1500
)

// searchMemory attaches past-research context from the vector store.
func (o *Orchestrator) searchMemory(ctx context.Context, state *SessionState, _ *agentfs.SessionFS, gen *streaming.Generator) error {
	if o.memory == nil || state.MemoryContext != "" {
		return nil
	}
	gen.Emit(streaming.EventStatus, map[string]any{"status": "memory"})

	entries, err := o.memory.SearchRelevant(ctx, state.ChatID, state.Query, 3)
	if err != nil {
		o.logger.Warn("memory search failed", "error", err)
		return nil
	}
	gen.Emit(streaming.EventMemorySearch, map[string]any{"results": len(entries)})
	if len(entries) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("Past research (%s): %s\n%s\n\n", e.CreatedAt, e.Query, shortenText(e.Summary, 500)))
	}
	state.MemoryContext = strings.TrimSpace(sb.String())
	return nil
}

// runDeepSearch produces the deep-search prelude. When the result
// already exists the node is a no-op, which makes resume after
// clarification idempotent.
func (o *Orchestrator) runDeepSearch(ctx context.Context, state *SessionState, _ *agentfs.SessionFS, gen *streaming.Generator) error {
	if state.DeepSearchResult != "" {
		return nil
	}
	gen.Emit(streaming.EventStatus, map[string]any{"status": "deep_search"})

	answer, err := o.searchSvc.Run(ctx, state.Query, session.ModeDeepSearch, gen)
	if err != nil {
		// The prelude is context, not the deliverable. Research proceeds
		// without it.
		o.logger.Warn("deep search prelude failed", "session_id", state.SessionID, "error", err)
		gen.EmitError(fmt.Sprintf("deep search failed: %v", err))
		return nil
	}
	state.DeepSearchResult = answer.Report
	state.addUsage(answer.Usage)
	gen.EmitReportChunks(ctx, answer.Report)

	if err := o.sessions.SaveDeepSearchResult(ctx, state.SessionID, answer.Report); err != nil {
		o.logger.Warn("deep search result save failed", "session_id", state.SessionID, "error", err)
	}
	return nil
}

// clarifyWithUser asks 2-3 questions about the query, interrupts the
// graph, and on resume captures the user's answer. Re-running without a
// new user message is a no-op.
func (o *Orchestrator) clarifyWithUser(ctx context.Context, state *SessionState, _ *agentfs.SessionFS, gen *streaming.Generator) error {
	if state.ClarificationAnswers != "" {
		return nil
	}

	if state.ClarificationSent {
		answer := latestUserMessage(state.ChatHistory)
		if answer == "" || answer == state.OriginalQuery {
			return errWaitingClarification
		}
		state.ClarificationAnswers = answer
		if err := o.sessions.SaveClarificationAnswers(ctx, state.SessionID, answer); err != nil {
			o.logger.Warn("clarification answers save failed", "session_id", state.SessionID, "error", err)
		}
		if err := o.sessions.UpdateStatus(ctx, state.SessionID, session.StatusResearching); err != nil {
			o.logger.Warn("status update failed", "session_id", state.SessionID, "error", err)
		}
		gen.Emit(streaming.EventStatus, map[string]any{"status": "clarification_answered"})
		return nil
	}

	gen.Emit(streaming.EventStatus, map[string]any{"status": "clarification"})

	needs := o.clarificationNeeds(ctx, state)
	if !needs.Needed {
		return nil
	}
	state.ClarificationNeeded = true
	state.ClarificationQuestions = needs.Questions

	var sb strings.Builder
	if state.DeepSearchResult != "" {
		sb.WriteString(strings.TrimRight(state.DeepSearchResult, "\n"))
		sb.WriteString(streaming.DeepSearchSeparator)
	}
	sb.WriteString(clarificationBlock(needs.Questions, state.UserLanguage))
	combined := sb.String()

	gen.EmitReportChunks(ctx, combined)
	gen.AccumulateFinal(combined)
	state.ClarificationSent = true

	if err := o.sessions.UpdateStatus(ctx, state.SessionID, session.StatusWaitingClarification); err != nil {
		o.logger.Warn("status update failed", "session_id", state.SessionID, "error", err)
	}
	return errWaitingClarification
}

// clarificationNeeds runs the structured call under a hard timeout and
// falls back to canned questions when the model cannot answer in time.
func (o *Orchestrator) clarificationNeeds(ctx context.Context, state *SessionState) *ClarificationNeeds {
	cctx, cancel := context.WithTimeout(ctx, clarificationTimeout)
	defer cancel()

	messages := []protocol.Message{
		protocol.SystemMessage(clarificationSystemPrompt(state.UserLanguage)),
		protocol.UserMessage("Research query: " + state.OriginalQuery),
	}
	needs, resp, err := llms.Structured[ClarificationNeeds](cctx, o.llm, messages, "clarification_needs", 1)
	if resp != nil {
		state.addUsage(resp.Usage)
	}
	if err != nil {
		o.logger.Warn("clarification call failed, using default questions", "error", err)
		return &ClarificationNeeds{Needed: true, Questions: defaultClarificationQuestions}
	}
	if needs.Needed && len(needs.Questions) < 2 {
		needs.Questions = defaultClarificationQuestions
	}
	if len(needs.Questions) > 3 {
		needs.Questions = needs.Questions[:3]
	}
	return needs
}

// analyzeQuery extracts topics and sizes the agent pool.
func (o *Orchestrator) analyzeQuery(ctx context.Context, state *SessionState, _ *agentfs.SessionFS, gen *streaming.Generator) error {
	if len(state.ResearchTopics) > 0 {
		return nil
	}
	gen.Emit(streaming.EventStatus, map[string]any{"status": "analyzing"})

	messages := []protocol.Message{
		protocol.SystemMessage(analyzeSystemPrompt),
		protocol.UserMessage(analyzeUserPrompt(state)),
	}
	analysis, resp, err := llms.Structured[QueryAnalysis](ctx, o.llm, messages, "query_analysis", structuredRetries)
	if resp != nil {
		state.addUsage(resp.Usage)
	}
	if err != nil || len(analysis.Topics) == 0 {
		o.logger.Warn("query analysis failed, single-topic fallback", "error", err)
		analysis = &QueryAnalysis{Topics: []string{state.OriginalQuery}, Complexity: "moderate", EstimatedAgents: 1}
	}

	state.ResearchTopics = analysis.Topics
	state.EstimatedAgentCount = analysis.EstimatedAgents
	if state.EstimatedAgentCount < 1 {
		state.EstimatedAgentCount = 1
	}
	return nil
}

// planResearch produces the research plan and records it in main.md.
func (o *Orchestrator) planResearch(ctx context.Context, state *SessionState, fs *agentfs.SessionFS, gen *streaming.Generator) error {
	if state.ResearchPlan != "" {
		return nil
	}

	messages := []protocol.Message{
		protocol.SystemMessage(planSystemPrompt(state.UserLanguage)),
		protocol.UserMessage(planUserPrompt(state)),
	}
	plan, resp, err := llms.Structured[ResearchPlan](ctx, o.llm, messages, "research_plan", structuredRetries)
	if resp != nil {
		state.addUsage(resp.Usage)
	}
	if err != nil || len(plan.Topics) == 0 {
		o.logger.Warn("planning failed, topic-list fallback", "error", err)
		plan = fallbackPlan(state)
	}

	state.ResearchPlan = renderPlan(plan)
	gen.Emit(streaming.EventPlanning, map[string]any{
		"topics":   len(plan.Topics),
		"strategy": plan.CoordinationStrategy,
	})
	if err := fs.AppendMainSection("Research Plan", state.ResearchPlan); err != nil {
		o.logger.Warn("plan persistence failed", "session_id", state.SessionID, "error", err)
	}
	return nil
}

func fallbackPlan(state *SessionState) *ResearchPlan {
	plan := &ResearchPlan{Reasoning: "Direct plan from the analyzed topics."}
	for _, topic := range state.ResearchTopics {
		plan.Topics = append(plan.Topics, PlanTopic{Name: topic, Description: topic, Priority: "medium"})
	}
	return plan
}

func renderPlan(plan *ResearchPlan) string {
	var sb strings.Builder
	sb.WriteString(plan.Reasoning + "\n\n")
	for i, topic := range plan.Topics {
		sb.WriteString(fmt.Sprintf("%d. **%s** (%s): %s\n", i+1, topic.Name, topic.Priority, topic.Description))
	}
	if plan.CoordinationStrategy != "" {
		sb.WriteString("\nCoordination: " + plan.CoordinationStrategy + "\n")
	}
	return sb.String()
}

// compressFindings synthesises the findings and draft into 800-1200
// words handed to the report writer.
func (o *Orchestrator) compressFindings(ctx context.Context, state *SessionState, fs *agentfs.SessionFS, gen *streaming.Generator) error {
	gen.Emit(streaming.EventCompression, map[string]any{"findings": len(state.AgentFindings)})

	draft, err := fs.DraftMarkdown()
	if err != nil {
		o.logger.Warn("draft unreadable", "session_id", state.SessionID, "error", err)
	}
	if len(state.AgentFindings) == 0 && draft == "" {
		state.CompressedResearch = ""
		return nil
	}

	messages := []protocol.Message{
		protocol.SystemMessage(compressSystemPrompt(state.UserLanguage)),
		protocol.UserMessage(compressUserPrompt(state, draft)),
	}
	compressed, resp, err := llms.Structured[CompressedFindings](ctx, o.llm, messages, "compressed_findings", structuredRetries)
	if resp != nil {
		state.addUsage(resp.Usage)
	}
	if err != nil || compressed.Synthesis == "" {
		o.logger.Warn("compression failed, concatenating findings", "error", err)
		state.CompressedResearch = concatFindings(state)
		return nil
	}

	var sb strings.Builder
	sb.WriteString(compressed.Synthesis)
	if len(compressed.KeyThemes) > 0 {
		sb.WriteString("\n\nKey themes: " + strings.Join(compressed.KeyThemes, "; "))
	}
	if len(compressed.ImportantSources) > 0 {
		sb.WriteString("\n\nImportant sources:\n")
		for _, src := range compressed.ImportantSources {
			sb.WriteString("- " + src + "\n")
		}
	}
	state.CompressedResearch = sb.String()
	return nil
}

func concatFindings(state *SessionState) string {
	var sb strings.Builder
	for _, f := range state.AgentFindings {
		sb.WriteString(fmt.Sprintf("## %s\n%s\n\n", f.Topic, f.Summary))
	}
	return sb.String()
}

// generateReport writes the final report, falling back to the draft when
// the structured output comes back under the length floor.
func (o *Orchestrator) generateReport(ctx context.Context, state *SessionState, fs *agentfs.SessionFS, gen *streaming.Generator) error {
	gen.Emit(streaming.EventStatus, map[string]any{"status": "writing_report"})

	messages := []protocol.Message{
		protocol.SystemMessage(reportSystemPrompt(state.UserLanguage)),
		protocol.UserMessage(reportUserPrompt(state)),
	}
	report, resp, err := llms.Structured[FinalReport](ctx, o.llm, messages, "final_report", structuredRetries)
	if resp != nil {
		state.addUsage(resp.Usage)
	}

	rendered := ""
	if err == nil {
		rendered = renderReport(state.OriginalQuery, report)
	} else {
		o.logger.Warn("report generation failed", "session_id", state.SessionID, "error", err)
	}

	if len(rendered) < reportLengthFloor {
		draft, derr := fs.DraftMarkdown()
		if derr == nil && len(draft) > len(rendered) {
			o.logger.Warn("report under length floor, using draft", "report_chars", len(rendered))
			rendered = draft
		}
	}
	if strings.TrimSpace(rendered) == "" {
		rendered = fallbackReport(state)
	}

	state.FinalReport = rendered
	if err := o.sessions.SaveDraftReport(ctx, state.SessionID, rendered); err != nil {
		o.logger.Warn("draft report save failed", "session_id", state.SessionID, "error", err)
	}
	return nil
}

func renderReport(query string, report *FinalReport) string {
	var sb strings.Builder
	sb.WriteString("# " + query + "\n\n")
	sb.WriteString("## Executive Summary\n\n" + report.ExecutiveSummary + "\n\n")
	for _, section := range report.Sections {
		sb.WriteString("## " + section.Title + "\n\n" + section.Content + "\n\n")
	}
	sb.WriteString("## Conclusion\n\n" + report.Conclusion + "\n")
	if len(report.Sources) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for i, src := range report.Sources {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, src))
		}
	}
	return sb.String()
}

func fallbackReport(state *SessionState) string {
	var sb strings.Builder
	sb.WriteString("# " + state.OriginalQuery + "\n\n")
	sb.WriteString("The research run ended before a full report could be written.\n\n")
	if state.CompressedResearch != "" {
		sb.WriteString(state.CompressedResearch + "\n")
	} else if state.DeepSearchResult != "" {
		sb.WriteString(state.DeepSearchResult + "\n")
	} else {
		sb.WriteString("No findings were collected for this query.\n")
	}
	return sb.String()
}

func latestUserMessage(history []session.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}
