package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value    []byte
	deadline time.Time // zero means no expiry
}

// Memory is an in-process Cache. Batch keys live in their own LRU table so
// certificate traffic cannot evict the header or items of an in-flight
// batch. Each table holds up to size entries; each entry carries its own
// deadline so callers can mix TTLs.
type Memory struct {
	records *expirable.LRU[string, memoryEntry]
	batches *expirable.LRU[string, memoryEntry]
	now     func() time.Time
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{
		records: expirable.NewLRU[string, memoryEntry](size, nil, 0),
		batches: expirable.NewLRU[string, memoryEntry](size, nil, 0),
		now:     time.Now,
	}
}

func (m *Memory) table(key string) *expirable.LRU[string, memoryEntry] {
	if strings.HasPrefix(key, batchPrefix) {
		return m.batches
	}
	return m.records
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	lru := m.table(key)
	e, ok := lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.deadline.IsZero() && !m.now().Before(e.deadline) {
		lru.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.deadline = m.now().Add(ttl)
	}
	m.table(key).Add(key, e)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.table(key).Remove(key)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Len returns the number of entries, including expired ones not yet evicted.
func (m *Memory) Len() int { return m.records.Len() + m.batches.Len() }
