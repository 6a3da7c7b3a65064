package server

import (
	"sync"
	"time"
)

type slot struct {
	level    uint32
	subLevel uint32
	key      string
}

type entry struct {
	value  []byte
	expire time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expire.IsZero() && !now.Before(e.expire)
}

// Memory is the server's namespaced in-memory table. Expired entries are
// dropped lazily when they are touched and by Sweep.
type Memory struct {
	mu   sync.RWMutex
	data map[slot]entry
	now  func() time.Time
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{data: make(map[slot]entry), now: now}
}

func expiry(now time.Time, seconds uint32) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (m *Memory) Put(level, subLevel uint32, key string, value []byte, expire uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[slot{level, subLevel, key}] = entry{value: clone(value), expire: expiry(m.now(), expire)}
}

// Get returns the value under key. A renew above zero resets the TTL.
func (m *Memory) Get(level, subLevel uint32, key string, renew uint32) ([]byte, bool) {
	s := slot{level, subLevel, key}
	now := m.now()

	if renew == 0 {
		m.mu.RLock()
		e, ok := m.data[s]
		m.mu.RUnlock()
		if ok && !e.expired(now) {
			return clone(e.value), true
		}
		if !ok {
			return nil, false
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[s]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(m.data, s)
		return nil, false
	}
	if renew > 0 {
		e.expire = expiry(now, renew)
		m.data[s] = e
	}
	return clone(e.value), true
}

// Delete reports whether a live entry was removed.
func (m *Memory) Delete(level, subLevel uint32, key string) bool {
	s := slot{level, subLevel, key}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[s]
	if !ok {
		return false
	}
	delete(m.data, s)
	return !e.expired(m.now())
}

// TTL returns the remaining lifetime of key. Zero means no expiry.
func (m *Memory) TTL(level, subLevel uint32, key string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[slot{level, subLevel, key}]
	now := m.now()
	if !ok || e.expired(now) {
		return 0, false
	}
	if e.expire.IsZero() {
		return 0, true
	}
	return e.expire.Sub(now), true
}

// Sweep drops every expired entry and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for s, e := range m.data {
		if e.expired(now) {
			delete(m.data, s)
			n++
		}
	}
	return n
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
