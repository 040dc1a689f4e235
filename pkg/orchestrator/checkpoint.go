package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileCheckpointer persists SessionState as JSON inside the session's
// memory directory, one file per session.
type FileCheckpointer struct {
	path string
}

func NewFileCheckpointer(sessionDir string) *FileCheckpointer {
	return &FileCheckpointer{path: filepath.Join(sessionDir, "state.json")}
}

// Save writes the state atomically.
func (c *FileCheckpointer) Save(state *SessionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".state-*")
	if err != nil {
		return fmt.Errorf("checkpoint session state: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("checkpoint session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("checkpoint session state: %w", err)
	}
	return os.Rename(name, c.path)
}

// Load returns the checkpointed state, or nil when none exists.
func (c *FileCheckpointer) Load() (*SessionState, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse session state: %w", err)
	}
	return &state, nil
}
