package agentfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	mainFile       = "main.md"
	draftFile      = "draft_report.md"
	agentsDir      = "agents"
	itemsDir       = "items"
	supervisorName = "supervisor"
)

// Store hands out session-scoped filesystems under a common memory root.
type Store struct {
	root string

	mu       sync.Mutex
	sessions map[string]*SessionFS
}

func NewStore(root string) *Store {
	return &Store{root: root, sessions: make(map[string]*SessionFS)}
}

// Session returns the filesystem for one session, creating its directory
// tree on first use.
func (s *Store) Session(sessionID string) (*SessionFS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.sessions[sessionID]; ok {
		return fs, nil
	}

	dir := filepath.Join(s.root, sessionID)
	for _, sub := range []string{agentsDir, itemsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	fs := &SessionFS{dir: dir, locks: make(map[string]*sync.Mutex)}
	s.sessions[sessionID] = fs
	return fs, nil
}

// Remove deletes a session's tree from disk.
func (s *Store) Remove(sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return os.RemoveAll(filepath.Join(s.root, sessionID))
}

// SessionFS is the artifact tree of one research session. Writes to a
// single agent file are serialised by a per-agent lock; whole-file writes
// are atomic via temp file and rename.
type SessionFS struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	draftMu sync.Mutex
	mainMu  sync.Mutex
}

func (fs *SessionFS) Dir() string { return fs.dir }

func (fs *SessionFS) agentLock(agentID string) *sync.Mutex {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	lock, ok := fs.locks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		fs.locks[agentID] = lock
	}
	return lock
}

// writeFileAtomic writes via a temp file in the same directory and renames
// into place so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (fs *SessionFS) agentPath(agentID string) string {
	return filepath.Join(fs.dir, agentsDir, sanitizeName(agentID)+".md")
}

// ListFiles returns session files matching the glob, relative to the
// session directory.
func (fs *SessionFS) ListFiles(pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(fs.dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(fs.dir, m)
		if err != nil {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// ReadMain returns the shared key-insights file, empty when absent.
func (fs *SessionFS) ReadMain() (string, error) {
	data, err := os.ReadFile(filepath.Join(fs.dir, mainFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read main: %w", err)
	}
	return string(data), nil
}

// WriteMain replaces the shared key-insights file.
func (fs *SessionFS) WriteMain(content string) error {
	fs.mainMu.Lock()
	defer fs.mainMu.Unlock()
	return writeFileAtomic(filepath.Join(fs.dir, mainFile), []byte(content))
}

// AppendMainSection appends a `## <title>` section to main.md.
func (fs *SessionFS) AppendMainSection(title, content string) error {
	fs.mainMu.Lock()
	defer fs.mainMu.Unlock()
	existing, err := os.ReadFile(filepath.Join(fs.dir, mainFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read main: %w", err)
	}
	var sb strings.Builder
	sb.Write(existing)
	if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("\n## " + title + "\n\n" + strings.TrimSpace(content) + "\n")
	return writeFileAtomic(filepath.Join(fs.dir, mainFile), []byte(sb.String()))
}

// ReadSupervisorNotebook returns the supervisor's private notebook.
func (fs *SessionFS) ReadSupervisorNotebook() (string, error) {
	data, err := os.ReadFile(fs.agentPath(supervisorName))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read supervisor notebook: %w", err)
	}
	return string(data), nil
}

// WriteSupervisorNotebook replaces the supervisor's private notebook.
func (fs *SessionFS) WriteSupervisorNotebook(content string) error {
	lock := fs.agentLock(supervisorName)
	lock.Lock()
	defer lock.Unlock()
	return writeFileAtomic(fs.agentPath(supervisorName), []byte(content))
}

// sanitizeName keeps file names inside the session tree.
func sanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "unnamed"
	}
	return sb.String()
}
