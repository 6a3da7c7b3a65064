package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps rows in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Row
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Row)}
}

func (m *MemoryStore) Load(_ context.Context, id string, now time.Time) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	if !ok || !row.Live(now) {
		return Row{}, ErrNoRow
	}
	return copyRow(row), nil
}

func (m *MemoryStore) Save(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.ID] = copyRow(row)
	return nil
}

func (m *MemoryStore) Insert(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[row.ID]; ok {
		return ErrRowExists
	}
	m.rows[row.ID] = copyRow(row)
	return nil
}

func (m *MemoryStore) Rename(_ context.Context, oldID, newID string, keepOld bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[oldID]
	if !ok {
		return ErrNoRow
	}
	if oldID == newID {
		return nil
	}
	row.ID = newID
	m.rows[newID] = copyRow(row)
	if !keepOld {
		delete(m.rows, oldID)
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, row := range m.rows {
		if row.Expire.Before(now) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func copyRow(r Row) Row {
	r.Data = append([]byte(nil), r.Data...)
	return r
}
