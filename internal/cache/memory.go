package cache

import (
	"context"
	"sync"
	"time"

	"riskai/internal/artifact"
)

// MemoryBackend is a map-backed Backend for tests and cache-disabled runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]*Record)}
}

func (m *MemoryBackend) Get(_ context.Context, itemID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[itemID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryBackend) Upsert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ItemID] = rec.Clone()
	return nil
}

func (m *MemoryBackend) FindByContentHash(_ context.Context, kind artifact.Kind, contentHash string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Record
	for _, rec := range m.records {
		if rec.Kind() == kind && rec.ContentHash == contentHash {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *MemoryBackend) DeleteAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.records)
	m.records = make(map[string]*Record)
	return n, nil
}

func (m *MemoryBackend) DeleteLastUsedBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for id, rec := range m.records {
		if rec.LastUsed.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryBackend) Close() error { return nil }
