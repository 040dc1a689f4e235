// Package agents contains the researcher workers, the supervisor agent and
// the review queue that connects them.
package agents

import "time"

// Confidence of a finding.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Source is one web source backing a finding.
type Source struct {
	URL            string  `json:"url"`
	Title          string  `json:"title,omitempty"`
	Snippet        string  `json:"snippet,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// Finding is the immutable result of one researcher completing one todo.
type Finding struct {
	AgentID     string     `json:"agent_id"`
	Topic       string     `json:"topic"`
	Summary     string     `json:"summary"`
	KeyFindings []string   `json:"key_findings,omitempty"`
	Sources     []Source   `json:"sources,omitempty"`
	Confidence  Confidence `json:"confidence"`

	// NoTasks marks a run that found no pending todo to work on.
	NoTasks bool `json:"no_tasks,omitempty"`

	// Degraded marks findings forced out of an exhausted ReAct loop.
	Degraded bool `json:"degraded,omitempty"`
}

// QueueAction names the event kinds on the review queue.
type QueueAction string

const (
	ActionTaskCompleted QueueAction = "task_completed"
	ActionNoTasks       QueueAction = "no_tasks"
	ActionAgentFailed   QueueAction = "agent_failed"
)

// QueueEvent is one entry on the supervisor review queue.
type QueueEvent struct {
	AgentID   string      `json:"agent_id"`
	Action    QueueAction `json:"action"`
	Finding   *Finding    `json:"finding,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`

	// Retried marks an event re-queued after a failed review; such events
	// are dropped on a second failure.
	Retried bool `json:"retried,omitempty"`
}

// DecisionKind is the supervisor's verdict for a review cycle.
type DecisionKind string

const (
	DecisionContinue DecisionKind = "continue"
	DecisionReplan   DecisionKind = "replan"
	DecisionFinish   DecisionKind = "finish"
)

// Decision is the structured outcome of one supervisor call.
type Decision struct {
	Reasoning string       `json:"reasoning"`
	Decision  DecisionKind `json:"decision"`

	// MutatedTodos reports whether the call created or updated any todo.
	// Only such calls count against the supervisor call budget.
	MutatedTodos bool `json:"-"`
}
