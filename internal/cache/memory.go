package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements an in-process Store with lazy TTL expiry
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]memoryItem
	config Config
	now    func() time.Time
}

type memoryItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithConfig(DefaultConfig())
}

// NewMemoryStoreWithConfig creates a new in-memory store with custom configuration
func NewMemoryStoreWithConfig(config Config) *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]memoryItem),
		config: config,
		now:    time.Now,
	}
}

// Get retrieves a value from the store
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, ok := m.load(m.config.Prefix + key)
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}

	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

// Set stores a copy of value
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.data[m.config.Prefix+key] = memoryItem{
		value:      stored,
		expiration: expiry(m.now(), ttl, m.config.DefaultTTL),
	}
	m.mu.Unlock()
	return nil
}

// Delete removes a value from the store
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.data, m.config.Prefix+key)
	m.mu.Unlock()
	return nil
}

// Clear removes every value under the configured prefix
func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, m.config.Prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

// Exists checks if a live value is stored under key
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, ok := m.load(m.config.Prefix + key)
	return ok, nil
}

// load returns the item at fullKey, dropping it if it has expired
func (m *MemoryStore) load(fullKey string) (memoryItem, bool) {
	m.mu.RLock()
	item, ok := m.data[fullKey]
	m.mu.RUnlock()
	if !ok {
		return memoryItem{}, false
	}

	if !item.expiration.IsZero() && m.now().After(item.expiration) {
		m.mu.Lock()
		if cur, ok := m.data[fullKey]; ok && cur.expiration.Equal(item.expiration) {
			delete(m.data, fullKey)
		}
		m.mu.Unlock()
		return memoryItem{}, false
	}
	return item, true
}
