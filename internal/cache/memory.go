package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/d60-Lab/solcials-sync/internal/model"
)

// Memory 进程内存储，过期条目在读取时惰性清除
type Memory struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]model.CachedEntry[[]byte]
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{clock: clock, entries: make(map[string]model.CachedEntry[[]byte])}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.Fresh(m.clock.Now()) {
		delete(m.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.Value))
	copy(out, e.Value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	m.entries[key] = model.CachedEntry[[]byte]{Value: v, CapturedAt: m.clock.Now(), TTL: ttl}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) RemovePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len counts entries including ones that expired but were not read yet.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
