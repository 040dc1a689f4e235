// Package agentfs is the file-backed working memory of a research session:
// per-agent todo files, shared notes, the supervisor's key-insight file and
// the chapter-structured draft report, all stored as markdown under the
// session's memory directory.
package agentfs

import (
	"errors"
	"strings"
)

// ErrTodoNotFound is returned by title-matched todo updates when no todo
// with the given title exists. Callers decide whether to create instead.
var ErrTodoNotFound = errors.New("todo not found")

// Priority of a todo. Ordering: critical > high > medium > low.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// TodoStatus of a todo.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoDone       TodoStatus = "done"
)

// Todo is one unit of research work. Titles are unique within an agent's
// list and updates are matched by title.
type Todo struct {
	Reasoning      string     `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
	Title          string     `yaml:"title" json:"title"`
	Objective      string     `yaml:"objective,omitempty" json:"objective,omitempty"`
	ExpectedOutput string     `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
	SourcesNeeded  []string   `yaml:"sources_needed,omitempty" json:"sources_needed,omitempty"`
	Priority       Priority   `yaml:"priority,omitempty" json:"priority,omitempty"`
	Status         TodoStatus `yaml:"status,omitempty" json:"status,omitempty"`
	Note           string     `yaml:"note,omitempty" json:"note,omitempty"`
	URL            string     `yaml:"url,omitempty" json:"url,omitempty"`
	Guidance       string     `yaml:"guidance,omitempty" json:"guidance,omitempty"`
}

// TodoPatch is a partial todo update. Nil fields are left untouched.
type TodoPatch struct {
	Status         *TodoStatus
	Note           *string
	Objective      *string
	ExpectedOutput *string
	SourcesNeeded  *[]string
	Priority       *Priority
	URL            *string
}

// Character describes an agent's specialist profile.
type Character struct {
	Role        string `yaml:"role,omitempty" json:"role,omitempty"`
	Expertise   string `yaml:"expertise,omitempty" json:"expertise,omitempty"`
	Personality string `yaml:"personality,omitempty" json:"personality,omitempty"`
}

// AgentFile is the parsed form of agents/<agent_id>.md.
type AgentFile struct {
	AgentID     string
	Character   Character
	Preferences string
	Todos       []Todo
	// NoteSlugs lists the item files this agent has written, in order.
	NoteSlugs []string
}

// NextPending returns the highest-priority pending todo, breaking ties by
// creation order, or nil when none remain.
func (f *AgentFile) NextPending() *Todo {
	var best *Todo
	for i := range f.Todos {
		t := &f.Todos[i]
		if t.Status != TodoPending {
			continue
		}
		if best == nil || t.Priority.rank() > best.Priority.rank() {
			best = t
		}
	}
	return best
}

// FindTodo locates a todo by case-insensitive title match.
func (f *AgentFile) FindTodo(title string) *Todo {
	for i := range f.Todos {
		if strings.EqualFold(f.Todos[i].Title, title) {
			return &f.Todos[i]
		}
	}
	return nil
}

// CountByStatus tallies todos per status.
func (f *AgentFile) CountByStatus() map[TodoStatus]int {
	counts := make(map[TodoStatus]int, 3)
	for _, t := range f.Todos {
		counts[t.Status]++
	}
	return counts
}

// Note is one saved research note. Shared notes are visible to sibling
// agents.
type Note struct {
	Title   string   `yaml:"title" json:"title"`
	Summary string   `yaml:"summary,omitempty" json:"summary,omitempty"`
	URLs    []string `yaml:"urls,omitempty" json:"urls,omitempty"`
	Tags    []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Shared  bool     `yaml:"shared,omitempty" json:"shared,omitempty"`
	AgentID string   `yaml:"agent_id,omitempty" json:"agent_id,omitempty"`
}

// Chapter is one `## Chapter N: Title` section of the draft report.
type Chapter struct {
	Number  int
	Title   string
	Content string
}

// QualifyTitle prefixes a duplicate todo title with the agent's role so it
// stays unique across the research plan.
func QualifyTitle(role, title string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return title
	}
	return role + ": " + title
}
