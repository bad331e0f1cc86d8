package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Store. It backs single-node deployments without
// Redis and doubles as a deterministic fake in tests: expiry follows the
// injected clock and SetUnavailable simulates an outage.
type Memory struct {
	clock       clock.Clock
	entries     map[string]entry
	unavailable bool
	mu          sync.Mutex
}

// NewMemory creates an empty store. A nil clock uses wall time.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.New()
	}
	return &Memory{
		clock:   clk,
		entries: make(map[string]entry),
	}
}

// SetUnavailable makes every subsequent call fail with ErrUnavailable until
// it is switched back off.
func (m *Memory) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, fmt.Errorf("%w: get %s", ErrUnavailable, key)
	}
	return m.load(key), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return fmt.Errorf("%w: set %s", ErrUnavailable, key)
	}
	m.store(key, value, ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return fmt.Errorf("%w: delete %s", ErrUnavailable, key)
	}
	delete(m.entries, key)
	return nil
}

// Update holds the store lock for the whole read-modify-write.
func (m *Memory) Update(_ context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return fmt.Errorf("%w: update %s", ErrUnavailable, key)
	}
	next, err := fn(m.load(key))
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.entries, key)
		return nil
	}
	m.store(key, next, ttl)
	return nil
}

// load returns a copy of the live value for key. Caller holds mu.
func (m *Memory) load(key string) []byte {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		return nil
	}
	return append([]byte(nil), e.value...)
}

// store writes a copy of value. Caller holds mu.
func (m *Memory) store(key string, value []byte, ttl time.Duration) {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.clock.Now().Add(ttl)
	}
	m.entries[key] = e
}
