package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by the CLI and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	videos map[string]Video
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{videos: make(map[string]Video), now: time.Now}
}

func (m *MemoryStore) Add(_ context.Context, v Video) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.videos[v.Name]; ok {
		return false, nil
	}
	now := m.now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	m.videos[v.Name] = v
	return true, nil
}

func (m *MemoryStore) GetByName(_ context.Context, name string) (*Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.videos[name]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *MemoryStore) Update(_ context.Context, name string, u Update) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.videos[name]
	if !ok {
		return false, nil
	}
	if u.Category != nil {
		v.Category = *u.Category
	}
	if u.Suitability != nil {
		v.Suitability = *u.Suitability
	}
	if u.Summarized != nil {
		v.Summarized = *u.Summarized
	}
	v.UpdatedAt = m.now().UTC()
	m.videos[name] = v
	return true, nil
}

func (m *MemoryStore) ClaimSummarized(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.videos[name]
	if !ok || v.Summarized {
		return false, nil
	}
	v.Summarized = true
	v.UpdatedAt = m.now().UTC()
	m.videos[name] = v
	return true, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Video, 0, len(m.videos))
	for _, v := range m.videos {
		if f.matches(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.videos[name]; !ok {
		return false, nil
	}
	delete(m.videos, name)
	return true, nil
}

func (m *MemoryStore) Names(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.videos))
	for name := range m.videos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
