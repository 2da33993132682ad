package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local KV. Several progress stores sharing one Memory
// behave like browser tabs sharing one storage area.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	watchers map[string]map[int]func(Entry)
	nextID   int
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[string]Entry),
		watchers: make(map[string]map[int]func(Entry)),
	}
}

// Get implements KV
func (m *Memory) Get(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return copyEntry(e), nil
}

// Put implements KV
func (m *Memory) Put(ctx context.Context, key string, value []byte, expectVersion int64, origin string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	cur := m.entries[key]
	if expectVersion != AnyVersion && cur.Version != expectVersion {
		m.mu.Unlock()
		return 0, ErrVersionConflict
	}
	e := Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Version:   cur.Version + 1,
		Origin:    origin,
		UpdatedAt: time.Now(),
	}
	m.entries[key] = e

	fns := make([]func(Entry), 0, len(m.watchers[key]))
	for _, fn := range m.watchers[key] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(copyEntry(e))
	}
	return e.Version, nil
}

// Watch implements KV. Callbacks run synchronously on the writer's goroutine.
func (m *Memory) Watch(key string, fn func(Entry)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[int]func(Entry))
	}
	m.watchers[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.watchers[key], id)
		})
	}
}

func copyEntry(e Entry) Entry {
	e.Value = append([]byte(nil), e.Value...)
	return e
}
