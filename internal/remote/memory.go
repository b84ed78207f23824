package remote

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store used by tests and dry runs. The hook fields
// let a test inject failures at precise points, e.g. to force a partial move.
type Memory struct {
	mu         sync.RWMutex
	containers map[string]map[string]FileRecord

	ListHook   func(containerID string) error
	WriteHook  func(containerID, name string) error
	DeleteHook func(containerID, name string) error

	writes  int
	deletes int
}

func NewMemory() *Memory {
	return &Memory{containers: make(map[string]map[string]FileRecord)}
}

// Seed installs a file without counting it as a mutation.
func (m *Memory) Seed(containerID string, rec FileRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.container(containerID)[rec.Name] = rec
}

// Mutations returns how many writes and deletes have been applied. Tests use
// this to prove that compute phases and failed applies touched nothing.
func (m *Memory) Mutations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes + m.deletes
}

func (m *Memory) List(_ context.Context, containerID string) ([]FileRecord, error) {
	if m.ListHook != nil {
		if err := m.ListHook(containerID); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	files := m.containers[containerID]
	recs := make([]FileRecord, 0, len(files))
	for _, rec := range files {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	return recs, nil
}

func (m *Memory) Read(_ context.Context, containerID, name string) (FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.containers[containerID][name]
	if !ok {
		return FileRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Write(_ context.Context, containerID string, rec FileRecord) error {
	if m.WriteHook != nil {
		if err := m.WriteHook(containerID, rec.Name); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.container(containerID)[rec.Name] = rec
	m.writes++
	return nil
}

func (m *Memory) Delete(_ context.Context, containerID, name string) error {
	if m.DeleteHook != nil {
		if err := m.DeleteHook(containerID, name); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.containers[containerID][name]; !ok {
		return ErrNotFound
	}
	delete(m.containers[containerID], name)
	m.deletes++
	return nil
}

func (m *Memory) ReplaceAll(_ context.Context, containerID string, recs []FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := make(map[string]FileRecord, len(recs))
	for _, rec := range recs {
		files[rec.Name] = rec
	}
	m.containers[containerID] = files
	m.writes++
	return nil
}

func (m *Memory) container(containerID string) map[string]FileRecord {
	files, ok := m.containers[containerID]
	if !ok {
		files = make(map[string]FileRecord)
		m.containers[containerID] = files
	}
	return files
}
