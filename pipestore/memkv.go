package pipestore

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// MemKV is an in-memory KeyValue implementation with the same revision
// semantics as a JetStream bucket. It backs unit tests and headless runs
// where no NATS server is available.
type MemKV struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	rev     uint64
}

// NewMemKV creates an empty in-memory bucket
func NewMemKV() *MemKV {
	return &MemKV{entries: make(map[string]*memEntry)}
}

// Get retrieves the latest entry for a key
func (m *MemKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return entry, nil
}

// Put stores a value unconditionally
func (m *MemKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(key, value), nil
}

// Create stores a value only if the key does not exist
func (m *MemKV) Create(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		return 0, jetstream.ErrKeyExists
	}
	return m.put(key, value), nil
}

// Update stores a value only if the key's current revision matches
func (m *MemKV) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return 0, jetstream.ErrKeyNotFound
	}
	if entry.revision != revision {
		return 0, jetstream.ErrKeyExists
	}
	return m.put(key, value), nil
}

// Delete removes a key
func (m *MemKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(m.entries, key)
	return nil
}

// Keys lists all keys in the bucket
func (m *MemKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

// put stores an entry under the next bucket revision. Caller holds the lock.
func (m *MemKV) put(key string, value []byte) uint64 {
	m.rev++
	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = &memEntry{
		key:      key,
		value:    stored,
		revision: m.rev,
		created:  time.Now(),
	}
	return m.rev
}

type memEntry struct {
	key      string
	value    []byte
	revision uint64
	created  time.Time
}

func (e *memEntry) Bucket() string                  { return DefaultBucket }
func (e *memEntry) Key() string                     { return e.key }
func (e *memEntry) Value() []byte                   { return e.value }
func (e *memEntry) Revision() uint64                { return e.revision }
func (e *memEntry) Created() time.Time              { return e.created }
func (e *memEntry) Delta() uint64                   { return 0 }
func (e *memEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }
