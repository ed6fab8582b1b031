package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryLog is a TabularLog held in process memory.
type MemoryLog struct {
	mu   sync.Mutex
	rows [][]string
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) AppendRow(_ context.Context, cells []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, slices.Clone(cells))
	return nil
}

func (m *MemoryLog) ReadAllRows(_ context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = slices.Clone(r)
	}
	return out, nil
}

func (m *MemoryLog) DeleteRowAt(_ context.Context, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 1 || index > len(m.rows) {
		return ErrRowNotFound
	}
	m.rows = slices.Delete(m.rows, index-1, index)
	return nil
}
