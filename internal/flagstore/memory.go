package flagstore

import (
	"context"
	"sync"
	"time"

	"plantmart/internal/update"
)

// Memory is an in-process backend. It exists for tests and for embedding
// the bus in tools that don't need durability.
type Memory struct {
	mu    sync.Mutex
	flags map[string]update.Record
}

func NewMemory() *Memory {
	return &Memory{flags: map[string]update.Record{}}
}

func (m *Memory) Put(ctx context.Context, key string, rec update.Record) error {
	_ = ctx
	m.mu.Lock()
	m.flags[key] = rec
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (update.Record, bool, error) {
	_ = ctx
	m.mu.Lock()
	rec, ok := m.flags[key]
	m.mu.Unlock()
	return rec, ok, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	delete(m.flags, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	_ = ctx
	m.mu.Lock()
	keys := make([]string, 0, len(m.flags))
	for k := range m.flags {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	return keys, nil
}

func (m *Memory) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx
	ms := cutoff.UnixMilli()
	m.mu.Lock()
	var n int
	for k, rec := range m.flags {
		if rec.Timestamp < ms {
			delete(m.flags, k)
			n++
		}
	}
	m.mu.Unlock()
	return n, nil
}

func (m *Memory) Close() error { return nil }
