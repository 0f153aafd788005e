package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is a thread-safe in-process Store. When capacity is positive the
// least recently used row is evicted once the store is full.
type Memory struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*list.Element
	evictList *list.List
}

// NewMemory creates an in-memory store. capacity <= 0 means unbounded.
func NewMemory(capacity int) *Memory {
	return &Memory{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the row for hash.
func (m *Memory) Get(_ context.Context, hash string) (Row, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[hash]
	if !ok {
		return Row{}, false, nil
	}
	m.evictList.MoveToFront(elem)
	return *elem.Value.(*Row), true, nil
}

// Put inserts or replaces the row keyed by row.Hash.
func (m *Memory) Put(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[row.Hash]; ok {
		m.evictList.MoveToFront(elem)
		*elem.Value.(*Row) = row
		return nil
	}

	if m.capacity > 0 && m.evictList.Len() >= m.capacity {
		m.removeOldest()
	}

	r := row
	m.items[row.Hash] = m.evictList.PushFront(&r)
	return nil
}

// Delete removes the row for hash.
func (m *Memory) Delete(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[hash]; ok {
		m.removeElement(elem)
	}
	return nil
}

// DeleteBefore removes every row stored strictly before cutoff.
func (m *Memory) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for elem := m.evictList.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*Row).StoredAt.Before(cutoff) {
			m.removeElement(elem)
			n++
		}
		elem = next
	}
	return n, nil
}

// Len returns the number of rows.
func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictList.Len(), nil
}

// Clear removes all rows.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.evictList.Init()
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) removeOldest() {
	elem := m.evictList.Back()
	if elem != nil {
		m.removeElement(elem)
	}
}

func (m *Memory) removeElement(elem *list.Element) {
	m.evictList.Remove(elem)
	delete(m.items, elem.Value.(*Row).Hash)
}
