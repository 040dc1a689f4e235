// Package orchestrator drives a research session through its node graph:
// memory lookup, deep-search prelude, clarification, query analysis,
// planning, agent creation, the parallel executor, compression and the
// final report. State is checkpointed after every node so the graph can
// interrupt for user clarification and resume.
package orchestrator

import (
	"github.com/we11as22/deepresearch/pkg/agents"
	"github.com/we11as22/deepresearch/pkg/config"
	"github.com/we11as22/deepresearch/pkg/llms"
	"github.com/we11as22/deepresearch/pkg/session"
)

// AgentCharacteristic is one specialist profile created for a session.
type AgentCharacteristic struct {
	Role        string `json:"role"`
	Expertise   string `json:"expertise"`
	Personality string `json:"personality,omitempty"`
}

// SessionState is the working state of one research session. Nodes
// mutate it in place; the checkpointer persists it after every node.
type SessionState struct {
	SessionID     string            `json:"session_id"`
	ChatID        string            `json:"chat_id"`
	Query         string            `json:"query"`
	OriginalQuery string            `json:"original_query"`
	UserLanguage  string            `json:"user_language,omitempty"`
	ChatHistory   []session.Message `json:"chat_history,omitempty"`
	Mode          session.Mode      `json:"mode"`
	ModeConfig    config.ModeBudget `json:"mode_config"`

	Iteration           int `json:"iteration"`
	MaxIterations       int `json:"max_iterations"`
	SupervisorCallCount int `json:"supervisor_call_count"`
	MaxSupervisorCalls  int `json:"max_supervisor_calls"`

	MemoryContext    string `json:"memory_context,omitempty"`
	DeepSearchResult string `json:"deep_search_result,omitempty"`

	ClarificationNeeded    bool     `json:"clarification_needed"`
	ClarificationQuestions []string `json:"clarification_questions,omitempty"`
	ClarificationAnswers   string   `json:"clarification_answers,omitempty"`
	ClarificationSent      bool     `json:"clarification_sent"`

	ResearchPlan         string                         `json:"research_plan,omitempty"`
	ResearchTopics       []string                       `json:"research_topics,omitempty"`
	EstimatedAgentCount  int                            `json:"estimated_agent_count,omitempty"`
	AgentCharacteristics map[string]AgentCharacteristic `json:"agent_characteristics,omitempty"`

	AgentFindings []agents.Finding `json:"agent_findings,omitempty"`

	CompressedResearch string `json:"compressed_research,omitempty"`
	FinalReport        string `json:"final_report,omitempty"`

	ShouldContinue   bool `json:"should_continue"`
	ReplanningNeeded bool `json:"replanning_needed"`

	// Degraded marks sessions where a budget forced an early finish.
	Degraded bool `json:"degraded,omitempty"`

	Usage llms.Usage `json:"usage"`

	// CompletedNode is the last node that finished, for resume.
	CompletedNode string `json:"completed_node,omitempty"`
}

func (s *SessionState) addUsage(u llms.Usage) {
	s.Usage.Add(u)
}

// Structured LLM outputs used by the nodes.

// ClarificationNeeds is the clarification node's structured output.
type ClarificationNeeds struct {
	Needed    bool     `json:"needed"`
	Questions []string `json:"questions"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// QueryAnalysis is the analyze_query node's structured output.
type QueryAnalysis struct {
	Topics          []string `json:"topics"`
	Complexity      string   `json:"complexity"`
	EstimatedAgents int      `json:"estimated_agents"`
	Reasoning       string   `json:"reasoning,omitempty"`
}

// PlanTopic is one planned research direction.
type PlanTopic struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	EstimatedSources int    `json:"estimated_sources,omitempty"`
}

// ResearchPlan is the plan_research node's structured output.
type ResearchPlan struct {
	Reasoning            string      `json:"reasoning"`
	Topics               []PlanTopic `json:"topics"`
	CoordinationStrategy string      `json:"coordination_strategy,omitempty"`
}

// ProfileTodo is one initial task inside a generated agent profile.
type ProfileTodo struct {
	Reasoning      string `json:"reasoning,omitempty"`
	Title          string `json:"title"`
	Objective      string `json:"objective"`
	ExpectedOutput string `json:"expected_output,omitempty"`
	Priority       string `json:"priority,omitempty"`
}

// AgentProfile is one generated specialist with its initial todos.
type AgentProfile struct {
	AgentID     string        `json:"agent_id"`
	Role        string        `json:"role"`
	Expertise   string        `json:"expertise"`
	Personality string        `json:"personality,omitempty"`
	Todos       []ProfileTodo `json:"todos"`
}

// AgentProfiles is the create_agent_characteristics structured output.
type AgentProfiles struct {
	Agents []AgentProfile `json:"agents"`
}

// CompressedFindings is the compress_findings node's structured output.
type CompressedFindings struct {
	Synthesis        string   `json:"synthesis"`
	KeyThemes        []string `json:"key_themes"`
	ImportantSources []string `json:"important_sources,omitempty"`
}

// ReportSection is one body section of the final report.
type ReportSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// FinalReport is the generate_report node's structured output.
type FinalReport struct {
	ExecutiveSummary string          `json:"executive_summary"`
	Sections         []ReportSection `json:"sections"`
	Conclusion       string          `json:"conclusion"`
	Sources          []string        `json:"sources,omitempty"`
	Confidence       string          `json:"confidence,omitempty"`
}
