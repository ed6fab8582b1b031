package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State tracks progress for resumable import runs. Lines are keyed by
// source file and 1-based line number.
type State struct {
	StartedAt       time.Time         `json:"started_at"`
	LastProcessedAt time.Time         `json:"last_processed_at"`
	Processed       map[string][]int `json:"processed"`
	Imported        int              `json:"imported"`
	Failed          int              `json:"failed"`
	Errors          []string         `json:"errors"`

	path string
}

// LoadState loads the import state at path, or starts a new one.
func LoadState(path string) (*State, error) {
	if path == "" {
		return &State{StartedAt: time.Now().UTC(), Processed: map[string][]int{}}, nil
	}
	p := expandHome(path)

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{
				StartedAt: time.Now().UTC(),
				Processed: map[string][]int{},
				path:      p,
			}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Processed == nil {
		s.Processed = map[string][]int{}
	}
	s.path = p
	return &s, nil
}

// Save persists the state to disk. A state without a path is kept in memory.
func (s *State) Save() error {
	s.LastProcessedAt = time.Now().UTC()
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

func (s *State) IsProcessed(file string, line int) bool {
	for _, n := range s.Processed[file] {
		if n == line {
			return true
		}
	}
	return false
}

func (s *State) MarkProcessed(file string, line int) {
	if s.Processed == nil {
		s.Processed = map[string][]int{}
	}
	s.Processed[file] = append(s.Processed[file], line)
}

func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
