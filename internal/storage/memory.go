package storage

import (
	"context"
	"maps"
	"sync"

	"github.com/mailru/easyjson"

	"bitmex_orderbook/internal/domain"
)

// MemoryKeyStore is a process-local KeyStore, used for dry runs and tests.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{data: make(map[string]string)}
}

func (m *MemoryKeyStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryKeyStore) FlushAll(context.Context) error {
	m.mu.Lock()
	clear(m.data)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKeyStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryKeyStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// MemoryAuditStore keeps audit records in memory as JSON payloads.
type MemoryAuditStore struct {
	mu          sync.RWMutex
	collections map[string][][]byte
	drops       map[string]int
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{
		collections: make(map[string][][]byte),
		drops:       make(map[string]int),
	}
}

func (m *MemoryAuditStore) InsertOne(_ context.Context, collection string, rec domain.Record) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	payload, err := easyjson.Marshal(rec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.collections[collection] = append(m.collections[collection], payload)
	m.mu.Unlock()
	return nil
}

func (m *MemoryAuditStore) DropIfExists(_ context.Context, collection string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.collections, collection)
	m.drops[collection]++
	m.mu.Unlock()
	return nil
}

// Records returns the JSON payloads of collection in insertion order.
func (m *MemoryAuditStore) Records(collection string) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]byte(nil), m.collections[collection]...)
}

// Drops reports how many times each collection was dropped.
func (m *MemoryAuditStore) Drops() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.drops)
}
