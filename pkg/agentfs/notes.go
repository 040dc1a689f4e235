package agentfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveNote writes the note to items/<slug>.md and records the slug in the
// owning agent's file. The stored slug is returned.
func (fs *SessionFS) SaveNote(note Note) (string, error) {
	slug := fs.uniqueSlug(slugify(note.Title))

	data, err := renderNote(note)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(fs.dir, itemsDir, slug+".md"), data); err != nil {
		return "", err
	}

	if note.AgentID != "" {
		lock := fs.agentLock(note.AgentID)
		lock.Lock()
		defer lock.Unlock()
		f, err := fs.readAgentFileLocked(note.AgentID)
		if err != nil {
			return "", err
		}
		f.NoteSlugs = append(f.NoteSlugs, slug)
		fileData, err := renderAgentFile(f)
		if err != nil {
			return "", err
		}
		if err := writeFileAtomic(fs.agentPath(note.AgentID), fileData); err != nil {
			return "", err
		}
	}
	return slug, nil
}

// ReadNote loads one note by slug.
func (fs *SessionFS) ReadNote(slug string) (*Note, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, itemsDir, sanitizeName(slug)+".md"))
	if err != nil {
		return nil, fmt.Errorf("read note %q: %w", slug, err)
	}
	return parseNote(data)
}

// SharedNotes returns notes marked shared, newest last, optionally
// filtered by a keyword over title, summary and tags.
func (fs *SessionFS) SharedNotes(keyword string, limit int) ([]Note, error) {
	matches, err := fs.ListFiles(itemsDir + "/*.md")
	if err != nil {
		return nil, err
	}
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	var notes []Note
	for _, rel := range matches {
		data, err := os.ReadFile(filepath.Join(fs.dir, rel))
		if err != nil {
			continue
		}
		note, err := parseNote(data)
		if err != nil || !note.Shared {
			continue
		}
		if keyword != "" && !noteMatches(note, keyword) {
			continue
		}
		notes = append(notes, *note)
		if limit > 0 && len(notes) >= limit {
			break
		}
	}
	return notes, nil
}

func noteMatches(note *Note, keyword string) bool {
	haystack := strings.ToLower(note.Title + " " + note.Summary + " " + strings.Join(note.Tags, " "))
	return strings.Contains(haystack, keyword)
}

func renderNote(note Note) ([]byte, error) {
	meta := note
	summary := strings.TrimSpace(note.Summary)
	meta.Summary = ""
	metaYAML, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal note: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("# " + note.Title + "\n\n```yaml\n")
	sb.Write(metaYAML)
	sb.WriteString("```\n\n" + summary + "\n")
	return []byte(sb.String()), nil
}

func parseNote(data []byte) (*Note, error) {
	content := string(data)
	var note Note
	if block := fencedYAML(content); block != "" {
		if err := yaml.Unmarshal([]byte(block), &note); err != nil {
			return nil, fmt.Errorf("parse note metadata: %w", err)
		}
	}
	if idx := strings.Index(content, "```\n"); idx >= 0 {
		if end := strings.LastIndex(content, "```"); end >= 0 && end+3 < len(content) {
			note.Summary = strings.TrimSpace(content[end+3:])
		}
	}
	return &note, nil
}

func slugify(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	var sb strings.Builder
	lastDash := false
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && sb.Len() > 0 {
				sb.WriteRune('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if slug == "" {
		slug = "note"
	}
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	return slug
}

func (fs *SessionFS) uniqueSlug(slug string) string {
	candidate := slug
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(fs.dir, itemsDir, candidate+".md")); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", slug, n)
	}
}
