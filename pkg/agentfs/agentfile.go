package agentfs

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Agent files are markdown with fenced yaml blocks for the structured
// parts, so they stay readable in any editor while reads return parsed
// objects.
//
//	# Agent: researcher_1
//
//	## Character
//	```yaml
//	role: ...
//	```
//
//	## Preferences
//	free text
//
//	## Todos
//	```yaml
//	- title: ...
//	```
//
//	## Notes
//	- note-slug

var sectionPattern = regexp.MustCompile(`(?m)^## (\w+)\s*$`)

func renderAgentFile(f *AgentFile) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString("# Agent: " + f.AgentID + "\n")

	characterYAML, err := yaml.Marshal(f.Character)
	if err != nil {
		return nil, fmt.Errorf("marshal character: %w", err)
	}
	sb.WriteString("\n## Character\n```yaml\n")
	sb.Write(characterYAML)
	sb.WriteString("```\n")

	if f.Preferences != "" {
		sb.WriteString("\n## Preferences\n" + strings.TrimSpace(f.Preferences) + "\n")
	}

	todosYAML, err := yaml.Marshal(f.Todos)
	if err != nil {
		return nil, fmt.Errorf("marshal todos: %w", err)
	}
	sb.WriteString("\n## Todos\n```yaml\n")
	if len(f.Todos) > 0 {
		sb.Write(todosYAML)
	}
	sb.WriteString("```\n")

	if len(f.NoteSlugs) > 0 {
		sb.WriteString("\n## Notes\n")
		for _, slug := range f.NoteSlugs {
			sb.WriteString("- " + slug + "\n")
		}
	}
	return []byte(sb.String()), nil
}

func parseAgentFile(agentID string, data []byte) (*AgentFile, error) {
	f := &AgentFile{AgentID: agentID}
	sections := splitSections(string(data))

	if raw, ok := sections["Character"]; ok {
		if block := fencedYAML(raw); block != "" {
			if err := yaml.Unmarshal([]byte(block), &f.Character); err != nil {
				return nil, fmt.Errorf("parse character block: %w", err)
			}
		}
	}
	if raw, ok := sections["Preferences"]; ok {
		f.Preferences = strings.TrimSpace(raw)
	}
	if raw, ok := sections["Todos"]; ok {
		if block := fencedYAML(raw); block != "" {
			if err := yaml.Unmarshal([]byte(block), &f.Todos); err != nil {
				return nil, fmt.Errorf("parse todos block: %w", err)
			}
		}
	}
	if raw, ok := sections["Notes"]; ok {
		for _, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(line)
			if slug := strings.TrimPrefix(line, "- "); slug != line && slug != "" {
				f.NoteSlugs = append(f.NoteSlugs, slug)
			}
		}
	}
	return f, nil
}

func splitSections(content string) map[string]string {
	sections := make(map[string]string)
	locations := sectionPattern.FindAllStringSubmatchIndex(content, -1)
	for i, loc := range locations {
		name := content[loc[2]:loc[3]]
		start := loc[1]
		end := len(content)
		if i+1 < len(locations) {
			end = locations[i+1][0]
		}
		sections[name] = content[start:end]
	}
	return sections
}

var yamlFencePattern = regexp.MustCompile("(?s)```yaml\n(.*?)```")

func fencedYAML(section string) string {
	m := yamlFencePattern.FindStringSubmatch(section)
	if m == nil {
		return ""
	}
	return m[1]
}

// ReadAgentFile parses agents/<agent_id>.md. A missing file returns an
// empty AgentFile rather than an error.
func (fs *SessionFS) ReadAgentFile(agentID string) (*AgentFile, error) {
	data, err := os.ReadFile(fs.agentPath(agentID))
	if os.IsNotExist(err) {
		return &AgentFile{AgentID: agentID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read agent file: %w", err)
	}
	return parseAgentFile(agentID, data)
}

// WriteAgentFile replaces agents/<agent_id>.md atomically. Duplicate todo
// titles within the file are qualified with the agent role before writing.
func (fs *SessionFS) WriteAgentFile(f *AgentFile) error {
	lock := fs.agentLock(f.AgentID)
	lock.Lock()
	defer lock.Unlock()

	qualifyDuplicates(f)
	data, err := renderAgentFile(f)
	if err != nil {
		return err
	}
	return writeFileAtomic(fs.agentPath(f.AgentID), data)
}

// AddTodos appends todos to an agent file, qualifying titles that would
// collide with existing ones. It returns the titles as stored.
func (fs *SessionFS) AddTodos(agentID string, todos []Todo) ([]string, error) {
	lock := fs.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	f, err := fs.readAgentFileLocked(agentID)
	if err != nil {
		return nil, err
	}

	stored := make([]string, 0, len(todos))
	for _, todo := range todos {
		if todo.Status == "" {
			todo.Status = TodoPending
		}
		if todo.Priority == "" {
			todo.Priority = PriorityMedium
		}
		if f.FindTodo(todo.Title) != nil {
			todo.Title = uniqueTitle(f, QualifyTitle(f.Character.Role, todo.Title))
		}
		f.Todos = append(f.Todos, todo)
		stored = append(stored, todo.Title)
	}

	data, err := renderAgentFile(f)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(fs.agentPath(agentID), data); err != nil {
		return nil, err
	}
	return stored, nil
}

// UpdateAgentTodo patches the todo matched by title. Absent titles return
// ErrTodoNotFound so the caller can decide whether to create instead.
func (fs *SessionFS) UpdateAgentTodo(agentID, title string, patch TodoPatch) error {
	lock := fs.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	f, err := fs.readAgentFileLocked(agentID)
	if err != nil {
		return err
	}
	todo := f.FindTodo(title)
	if todo == nil {
		return fmt.Errorf("agent %s, title %q: %w", agentID, title, ErrTodoNotFound)
	}

	if patch.Status != nil {
		todo.Status = *patch.Status
	}
	if patch.Note != nil {
		todo.Note = *patch.Note
	}
	if patch.Objective != nil {
		todo.Objective = *patch.Objective
	}
	if patch.ExpectedOutput != nil {
		todo.ExpectedOutput = *patch.ExpectedOutput
	}
	if patch.SourcesNeeded != nil {
		todo.SourcesNeeded = *patch.SourcesNeeded
	}
	if patch.Priority != nil {
		todo.Priority = *patch.Priority
	}
	if patch.URL != nil {
		todo.URL = *patch.URL
	}

	data, err := renderAgentFile(f)
	if err != nil {
		return err
	}
	return writeFileAtomic(fs.agentPath(agentID), data)
}

// DeleteAgentFile removes agents/<agent_id>.md.
func (fs *SessionFS) DeleteAgentFile(agentID string) error {
	lock := fs.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()
	err := os.Remove(fs.agentPath(agentID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ListAgentIDs returns ids of agent files, excluding the supervisor.
func (fs *SessionFS) ListAgentIDs() ([]string, error) {
	matches, err := fs.ListFiles(agentsDir + "/*.md")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.TrimSuffix(strings.TrimPrefix(m, agentsDir+"/"), ".md")
		if id != supervisorName {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (fs *SessionFS) readAgentFileLocked(agentID string) (*AgentFile, error) {
	data, err := os.ReadFile(fs.agentPath(agentID))
	if os.IsNotExist(err) {
		return &AgentFile{AgentID: agentID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read agent file: %w", err)
	}
	return parseAgentFile(agentID, data)
}

func qualifyDuplicates(f *AgentFile) {
	seen := make(map[string]bool, len(f.Todos))
	for i := range f.Todos {
		key := strings.ToLower(f.Todos[i].Title)
		if seen[key] {
			f.Todos[i].Title = uniqueTitle(f, QualifyTitle(f.Character.Role, f.Todos[i].Title))
			key = strings.ToLower(f.Todos[i].Title)
		}
		seen[key] = true
	}
}

// uniqueTitle appends a counter until the title is unique in the file.
func uniqueTitle(f *AgentFile, title string) string {
	candidate := title
	for n := 2; f.FindTodo(candidate) != nil; n++ {
		candidate = fmt.Sprintf("%s (%d)", title, n)
	}
	return candidate
}
